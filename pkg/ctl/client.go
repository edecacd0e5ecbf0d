package ctl

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Client talks to a running daemon over its control socket.
type Client struct {
	http *http.Client
}

func NewClient(path string) *Client {
	var d net.Dialer
	return &Client{http: &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				return d.DialContext(ctx, "unix", path)
			},
		},
	}}
}

// Dump returns the daemon's cache dump, as text or, with asJSON, as JSON.
func (c *Client) Dump(ctx context.Context, asJSON bool) (string, error) {
	url := "http://l2macd/dump"
	if asJSON {
		url += "?format=json"
	}
	return c.do(ctx, http.MethodGet, url)
}

// Exit asks the daemon to shut down.
func (c *Client) Exit(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "http://l2macd/exit")
	return err
}

func (c *Client) do(ctx context.Context, method, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("daemon returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
