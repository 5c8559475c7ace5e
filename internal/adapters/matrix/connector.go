package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const (
	loginTypePassword = "m.login.password"
	authTypeDummy     = "m.login.dummy"

	DefaultSyncTimeout    = 30 * time.Second
	DefaultSyncRetryDelay = 2 * time.Second
	DeviceDisplayName     = "swarmchat"
)

// Connector talks to a Matrix homeserver's client-server API.
type Connector struct {
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	SyncTimeout    time.Duration
	SyncRetryDelay time.Duration
	Logger         zerolog.Logger
}

var _ ports.ChatConnector = (*Connector)(nil)

type versionsResponse struct {
	Versions []string `json:"versions"`
}

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginRequest struct {
	Type                     string          `json:"type"`
	Identifier               loginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

type registerAuth struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
}

type registerRequest struct {
	Username                 string        `json:"username"`
	Password                 string        `json:"password"`
	Auth                     *registerAuth `json:"auth,omitempty"`
	InitialDeviceDisplayName string        `json:"initial_device_display_name,omitempty"`
}

type credentialsResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

func (c *Connector) Probe(ctx context.Context, baseURL string) error {
	api, err := c.api(baseURL, "")
	if err != nil {
		return err
	}

	var payload versionsResponse
	if err := api.do(ctx, request{method: http.MethodGet, path: "/_matrix/client/versions"}, &payload); err != nil {
		return fmt.Errorf("query versions: %w", err)
	}
	if len(payload.Versions) == 0 {
		return errors.New("query versions: server reported no versions")
	}
	return nil
}

func (c *Connector) Login(ctx context.Context, baseURL, username, password string) (domain.Credentials, error) {
	api, err := c.api(baseURL, "")
	if err != nil {
		return domain.Credentials{}, err
	}

	body := loginRequest{
		Type:                     loginTypePassword,
		Identifier:               loginIdentifier{Type: "m.id.user", User: username},
		Password:                 password,
		InitialDeviceDisplayName: DeviceDisplayName,
	}
	var payload credentialsResponse
	if err := api.do(ctx, request{method: http.MethodPost, path: clientPath("login"), body: body}, &payload); err != nil {
		return domain.Credentials{}, fmt.Errorf("login %s: %w", username, err)
	}
	return payload.credentials()
}

// Register creates an account, completing the dummy auth stage when the
// server asks for one.
func (c *Connector) Register(ctx context.Context, baseURL, username, password string) (domain.Credentials, error) {
	api, err := c.api(baseURL, "")
	if err != nil {
		return domain.Credentials{}, err
	}

	body := registerRequest{
		Username:                 username,
		Password:                 password,
		Auth:                     &registerAuth{Type: authTypeDummy},
		InitialDeviceDisplayName: DeviceDisplayName,
	}
	req := request{method: http.MethodPost, path: clientPath("register"), body: &body}

	var payload credentialsResponse
	err = api.do(ctx, req, &payload)

	var challenge *Error
	if errors.As(err, &challenge) && challenge.StatusCode == http.StatusUnauthorized && challenge.Session != "" {
		body.Auth.Session = challenge.Session
		err = api.do(ctx, req, &payload)
	}
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("register %s: %w", username, err)
	}
	return payload.credentials()
}

// Open builds a client for baseURL. A nil creds gives an anonymous client
// that never syncs.
func (c *Connector) Open(baseURL string, creds *domain.Credentials) (ports.ChatClient, error) {
	token := ""
	if creds != nil {
		if !creds.Complete() {
			return nil, errors.New("credentials need an access token and a user id")
		}
		token = creds.AccessToken
	}

	api, err := c.api(baseURL, token)
	if err != nil {
		return nil, err
	}
	return newClient(api, creds, c.syncTimeout(), c.syncRetryDelay(), c.Logger), nil
}

func (c *Connector) api(baseURL string, token string) (*api, error) {
	return newAPI(baseURL, token, c.HTTPClient, c.RequestTimeout)
}

func (c *Connector) syncTimeout() time.Duration {
	if c.SyncTimeout > 0 {
		return c.SyncTimeout
	}
	return DefaultSyncTimeout
}

func (c *Connector) syncRetryDelay() time.Duration {
	if c.SyncRetryDelay > 0 {
		return c.SyncRetryDelay
	}
	return DefaultSyncRetryDelay
}

func (p credentialsResponse) credentials() (domain.Credentials, error) {
	creds := domain.Credentials{AccessToken: p.AccessToken, UserID: p.UserID, DeviceID: p.DeviceID}
	if !creds.Complete() {
		return domain.Credentials{}, errors.New("server response is missing the access token or user id")
	}
	return creds, nil
}
