package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+5511999000001", "+5511999000001"},
		{"5511999000001", "+5511999000001"},
		{"11 99900-0001", "+5511999000001"},
		{"(11) 99900-0001", "+5511999000001"},
		{"0051 11 99900 0001", "+5111999000001"},
		{"  +55 11 99900-0001 ", "+5511999000001"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePhone(c.in), "input %q", c.in)
	}
}

func TestNormalizePhoneLeavesUnrecognizedInput(t *testing.T) {
	// Too short to be a Brazilian subscriber number; returned stripped
	// but otherwise untouched.
	assert.Equal(t, "12345", NormalizePhone("123-45"))
}
