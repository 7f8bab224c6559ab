package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"standx-mm-bot/internal/standx/auth"
)

var ErrUnauthenticated = errors.New("standx session is not authenticated")

// HTTPError carries a non-2xx response.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	geoURL  string
	http    *http.Client
	log     *zap.Logger

	mu      sync.RWMutex
	session *auth.Session
}

func New(baseURL, geoURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		geoURL:  strings.TrimRight(geoURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

func (c *Client) SetSession(session *auth.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

func (c *Client) Session() *auth.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

type access int

const (
	public access = iota
	authed
	signed
)

func (c *Client) get(ctx context.Context, path string, query url.Values, mode access) (any, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(req, nil, mode); err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, target string, body any, mode access) (any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(req, payload, mode); err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) authorize(req *http.Request, body []byte, mode access) error {
	if mode == public {
		return nil
	}
	session := c.Session()
	if !session.Valid() {
		return ErrUnauthenticated
	}
	req.Header.Set("Authorization", "Bearer "+session.Token)
	if mode == signed {
		session.Signer.Apply(req.Header, body)
	}
	return nil
}

func (c *Client) do(req *http.Request) (any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	var data any
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	c.log.Debug("standx response", zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Int("status", resp.StatusCode))
	return data, nil
}

func asMap(v any, path string) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected response %T", path, v)
	}
	return m, nil
}
