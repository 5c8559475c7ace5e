package remote

import (
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

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/adapters/node/httpapi"
	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const (
	maxResponseBytes      = 1 << 20
	defaultRequestTimeout = 10 * time.Second
	defaultReconnectDelay = time.Second
)

// Client drives a node supervisor served by httpapi.
type Client struct {
	BaseURL        string
	HTTPClient     *http.Client
	Dialer         *websocket.Dialer
	RequestTimeout time.Duration
	ReconnectDelay time.Duration
	Logger         zerolog.Logger
}

var (
	_ ports.NodeProbe     = (*Client)(nil)
	_ ports.NodeLogSource = (*Client)(nil)
)

func (c *Client) Status(ctx context.Context) (domain.NodeStatus, error) {
	var status domain.NodeStatus
	if err := c.do(ctx, http.MethodGet, httpapi.PathStatus, &status); err != nil {
		return domain.NodeStatus{}, fmt.Errorf("query node status: %w", err)
	}
	status.State = domain.ParseNodeState(string(status.State))
	return status, nil
}

func (c *Client) Start(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, httpapi.PathStart, nil); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	return nil
}

func (c *Client) Stop(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, httpapi.PathStop, nil); err != nil {
		return fmt.Errorf("stop node: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method string, path string, out any) error {
	endpoint, err := c.endpoint("http", path)
	if err != nil {
		return err
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr httpapi.ErrorBody
		_ = json.NewDecoder(body).Decode(&apiErr)
		switch apiErr.Code {
		case httpapi.CodeAlreadyRunning:
			return domain.ErrNodeAlreadyRunning
		case httpapi.CodeNotRunning:
			return domain.ErrNodeNotRunning
		}
		if apiErr.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// FetchBacklog returns the supervisor's recent log events without following
// the stream.
func (c *Client) FetchBacklog(ctx context.Context) ([]domain.NodeLogEvent, error) {
	var events []domain.NodeLogEvent
	if err := c.do(ctx, http.MethodGet, httpapi.PathLogs, &events); err != nil {
		return nil, fmt.Errorf("fetch node logs: %w", err)
	}
	return events, nil
}

// SubscribeLogs follows the supervisor's event stream until the
// subscription is closed, redialing after failures. A redial replays the
// supervisor's backlog.
func (c *Client) SubscribeLogs(handler func(domain.NodeLogEvent)) ports.Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.follow(ctx, handler)
	}()

	return ports.NewSubscription(func() {
		cancel()
		wg.Wait()
	})
}

func (c *Client) follow(ctx context.Context, handler func(domain.NodeLogEvent)) {
	for {
		err := c.stream(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		c.Logger.Debug().Err(err).Msg("node event stream dropped")

		timer := time.NewTimer(c.reconnectDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) stream(ctx context.Context, handler func(domain.NodeLogEvent)) error {
	endpoint, err := c.endpoint("ws", httpapi.PathEvents)
	if err != nil {
		return err
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	for {
		var ev domain.NodeLogEvent
		if err := conn.ReadJSON(&ev); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				continue
			}
			return err
		}
		handler(ev)
	}
}

// endpoint maps path onto BaseURL, switching to ws/wss when scheme is "ws".
func (c *Client) endpoint(scheme string, path string) (string, error) {
	if c.BaseURL == "" {
		return "", errors.New("supervisor url is required")
	}
	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse supervisor url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("supervisor url must use http or https")
	}
	if scheme == "ws" {
		parsed.Scheme = strings.Replace(parsed.Scheme, "http", "ws", 1)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + path
	return parsed.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) reconnectDelay() time.Duration {
	if c.ReconnectDelay > 0 {
		return c.ReconnectDelay
	}
	return defaultReconnectDelay
}
