package main

import "github.com/zapflow/campaignd/cmd"

func main() {
	cmd.Execute()
}
