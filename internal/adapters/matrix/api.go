package matrix

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
	"time"
)

const (
	clientPrefix     = "/_matrix/client/v3"
	maxResponseBytes = 16 << 20

	defaultRequestTimeout = 30 * time.Second
)

// api is the authenticated HTTP plumbing shared by Connector and Client.
type api struct {
	baseURL        string
	accessToken    string
	httpClient     *http.Client
	requestTimeout time.Duration
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// extra is added to the request timeout, for long polls.
	extra time.Duration
}

func newAPI(baseURL string, accessToken string, httpClient *http.Client, requestTimeout time.Duration) (*api, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("base url host is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &api{
		baseURL:        strings.TrimRight(baseURL, "/"),
		accessToken:    accessToken,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
	}, nil
}

// do sends req and decodes a 2xx JSON body into out when out is non-nil.
// out may be a *json.RawMessage to keep the raw body.
func (a *api) do(ctx context.Context, req request, out any) error {
	requestCtx, cancel := a.requestContext(ctx, req.extra)
	defer cancel()

	endpoint := a.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", req.path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(requestCtx, req.method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if a.accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.accessToken)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

func (a *api) requestContext(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.requestTimeout+extra)
}

func clientPath(segments ...string) string {
	var b strings.Builder
	b.WriteString(clientPrefix)
	for _, segment := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(segment))
	}
	return b.String()
}
