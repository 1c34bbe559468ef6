package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4096

// transport is the HTTP boundary shared by all provider variants.
// Every failure leaving it is an *Error with its kind already decided.
type transport struct {
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	apiKey  string
}

func newTransport(cfg Config) *transport {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &transport{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.RequestTimeout,
		apiKey:  cfg.OpenAIAPIKey,
	}
}

// get issues a GET and discards a successful body.
func (t *transport) get(ctx context.Context, op, url string) error {
	return t.roundTrip(ctx, op, http.MethodGet, url, nil, nil)
}

// postJSON posts in as JSON and decodes a successful response into out.
func (t *transport) postJSON(ctx context.Context, op, url string, in, out any) error {
	return t.roundTrip(ctx, op, http.MethodPost, url, in, out)
}

func (t *transport) roundTrip(ctx context.Context, op, method, url string, in, out any) error {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	resp, err := t.send(ctx, op, method, url, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return &Error{Kind: ErrorKindTransient, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return &Error{Kind: ErrorKindPermanent, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// stream posts in as JSON and returns the response body for the caller to
// consume. Only ctx bounds the request; the per-request timeout does not apply.
func (t *transport) stream(ctx context.Context, op, url string, in any) (io.ReadCloser, error) {
	resp, err := t.send(ctx, op, http.MethodPost, url, in)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(op, resp)
	}
	return resp.Body, nil
}

func (t *transport) send(ctx context.Context, op, method, url string, in any) (*http.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: ErrorKindPermanent, Op: op, Err: fmt.Errorf("waiting for rate limiter: %w", err)}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, &Error{Kind: ErrorKindPermanent, Op: op, Err: fmt.Errorf("marshaling request: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &Error{Kind: ErrorKindPermanent, Op: op, Err: fmt.Errorf("creating request: %w", err)}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrorKindTransient, Op: op, Err: err}
	}
	return resp, nil
}

// statusError reads the error body and classifies the failure.
func statusError(op string, resp *http.Response) *Error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := errorMessage(raw)
	return &Error{
		Kind:       classifyStatus(resp.StatusCode, msg),
		Op:         op,
		StatusCode: resp.StatusCode,
		Err:        errors.New(msg),
	}
}

// errorMessage extracts the provider's message from an error body.
// Ollama sends {"error": "..."}; OpenAI-compatible servers send
// {"error": {"message": "..."}}.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if m := gjson.GetBytes(body, "error.message"); m.Exists() {
			return m.String()
		}
		if m := gjson.GetBytes(body, "error"); m.Type == gjson.String {
			return m.String()
		}
		if m := gjson.GetBytes(body, "message"); m.Type == gjson.String {
			return m.String()
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
