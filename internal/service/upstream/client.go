package upstream

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

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	maxErrorBody = 64 << 10
	readBufSize  = 4 << 10
)

var ErrMissingAPIKey = errors.New("upstream api key is not configured")

func logger() *zap.SugaredLogger {
	return zap.S().Named("upstream")
}

// Client calls the streaming generation endpoint of the upstream API.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewClient builds a client. httpClient may be nil.
// No client-side timeout is set; the caller's context bounds each call.
func NewClient(baseURL, model, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Model returns the fixed model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) endpoint() string {
	q := url.Values{}
	q.Set("alt", "sse")
	q.Set("key", c.apiKey)
	return fmt.Sprintf("%s/models/%s:streamGenerateContent?%s", c.baseURL, url.PathEscape(c.model), q.Encode())
}

// Stream starts a streaming generation and returns a reader of text fragments.
// The reader yields io.EOF when the upstream stream ends. Closing the reader
// early stops the pump; cancelling ctx aborts the upstream request.
func (c *Client) Stream(ctx context.Context, contents []Content) (*schema.StreamReader[string], error) {
	if !c.Configured() {
		return nil, ErrMissingAPIKey
	}

	payload, err := json.Marshal(GenerateRequest{Contents: contents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	sr, sw := schema.Pipe[string](16)
	go pump(resp.Body, sw)
	return sr, nil
}

// pump reads the upstream body and sends every extracted fragment to sw.
func pump(body io.ReadCloser, sw *schema.StreamWriter[string]) {
	defer sw.Close()
	defer body.Close()

	parser := NewParser()
	buf := make([]byte, readBufSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, fragment := range parser.Feed(buf[:n]) {
				if closed := sw.Send(fragment, nil); closed {
					return
				}
			}
		}
		if errors.Is(err, io.EOF) {
			for _, fragment := range parser.Flush() {
				if closed := sw.Send(fragment, nil); closed {
					return
				}
			}
			return
		}
		if err != nil {
			sw.Send("", fmt.Errorf("read upstream stream: %w", err))
			return
		}
	}
}
