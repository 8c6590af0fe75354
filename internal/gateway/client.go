package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnavailable means the messaging account has no usable session right
// now. Callers treat this as a terminal send failure for the shipment; the
// campaign keeps going for the remaining contacts.
var ErrUnavailable = errors.New("gateway: connection unavailable")

// Registry resolves messaging accounts to live connections.
type Registry interface {
	Connection(ctx context.Context, accountID int64) (Connection, error)
}

// Connection is one established messaging session. Both sends return the
// provider-assigned message id; an empty id means the provider did not
// accept the message.
type Connection interface {
	SendText(ctx context.Context, number, body string) (string, error)
	SendMedia(ctx context.Context, number, path, name, caption string) (string, error)
}

// HTTPRegistry talks to the gateway's HTTP API. A shared breaker shields
// the pipeline from a flapping gateway host.
type HTTPRegistry struct {
	baseURL string
	token   string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPRegistry(baseURL, token string, timeoutMs, failThreshold, openForMs int) *HTTPRegistry {
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPRegistry{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

var _ Registry = (*HTTPRegistry)(nil)

func (r *HTTPRegistry) Connection(ctx context.Context, accountID int64) (Connection, error) {
	if !r.br.TryAcquire() {
		return nil, ErrUnavailable
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := r.do(ctx, http.MethodGet, fmt.Sprintf("/api/connections/%d", accountID), nil, &status); err != nil {
		r.br.OnFailure()
		return nil, ErrUnavailable
	}

	r.br.OnSuccess()

	if status.Status != "CONNECTED" {
		return nil, ErrUnavailable
	}

	return &httpConnection{registry: r, accountID: accountID}, nil
}

type httpConnection struct {
	registry  *HTTPRegistry
	accountID int64
}

func (c *httpConnection) SendText(ctx context.Context, number, body string) (string, error) {
	return c.send(ctx, "/messages", map[string]string{
		"number": number,
		"body":   body,
	})
}

func (c *httpConnection) SendMedia(ctx context.Context, number, path, name, caption string) (string, error) {
	return c.send(ctx, "/media", map[string]string{
		"number":  number,
		"path":    path,
		"name":    name,
		"caption": caption,
	})
}

func (c *httpConnection) send(ctx context.Context, path string, body map[string]string) (string, error) {
	var res struct {
		MessageID string `json:"messageId"`
	}
	err := c.registry.do(ctx, http.MethodPost,
		fmt.Sprintf("/api/connections/%d%s", c.accountID, path), body, &res)
	if err != nil {
		c.registry.br.OnFailure()
		return "", err
	}

	c.registry.br.OnSuccess()

	return res.MessageID, nil
}

func (r *HTTPRegistry) do(ctx context.Context, method, path string, body, out any) error {
	var buf *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, buf)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("gateway: path=%s status=%d", path, res.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}

	return nil
}
