package jamf

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/metal-toolbox/devicesync/internal/configuration"
	"github.com/metal-toolbox/devicesync/internal/model"
)

// Token is a Jamf bearer token.
type Token struct {
	Value    string
	IssuedAt time.Time
	// Expires is the expiry reported by Jamf, zero when not reported.
	Expires time.Time
	// Lifetime is the validity reported with the token, zero when unknown.
	Lifetime time.Duration
}

// Age returns how long ago the token was issued.
func (t *Token) Age(now time.Time) time.Duration {
	return now.Sub(t.IssuedAt)
}

// renewAfter returns the age at which the token is renewed, the threshold
// or five sixths of a shorter reported lifetime.
func (t *Token) renewAfter(threshold time.Duration) time.Duration {
	if t.Lifetime <= 0 {
		return threshold
	}

	if early := t.Lifetime - t.Lifetime/6; early < threshold {
		return early
	}

	return threshold
}

func (t *Token) oauth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.Value,
		TokenType:   "Bearer",
		Expiry:      t.Expires,
	}
}

// Exchanger exchanges API credentials for a short-lived bearer token.
type Exchanger interface {
	Exchange(ctx context.Context) (*Token, error)
}

// Exchanger returns the exchanger for the configured auth mode.
func (c *Client) Exchanger() (Exchanger, error) {
	switch c.opts.AuthMode {
	case configuration.AuthModeBasic, "":
		return c.BasicExchanger(model.Credentials{
			Username: c.opts.Username,
			Password: c.opts.Password,
		})
	case configuration.AuthModeClientCredentials:
		return c.ClientCredentialsExchanger(c.opts.ClientID, c.opts.ClientSecret)
	default:
		return nil, errors.Wrap(ErrConfig, "unknown auth mode: "+c.opts.AuthMode)
	}
}

type basicExchanger struct {
	client      *Client
	credentials model.Credentials
}

type tokenResponse struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// BasicExchanger exchanges a username and password over HTTP basic auth.
func (c *Client) BasicExchanger(credentials model.Credentials) (Exchanger, error) {
	if credentials.Username == "" || credentials.Password == "" {
		return nil, errors.Wrap(ErrConfig, "username and password are required")
	}

	return &basicExchanger{client: c, credentials: credentials}, nil
}

func (e *basicExchanger) Exchange(ctx context.Context) (*Token, error) {
	slog.Debug("exchanging credentials for a token", e.credentials.AsLogFields()...)

	req := &request{
		kind:        EndpointAuth,
		method:      http.MethodPost,
		path:        tokenPath,
		accept:      mimeJSON,
		credentials: &e.credentials,
	}

	resp, err := e.client.do(ctx, req)
	if err != nil {
		return nil, errors.Wrap(ErrAuth, err.Error())
	}

	if err := classify(req.method, req.kind, resp); err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, "token response: "+err.Error())
	}

	if strings.TrimSpace(tr.Token) == "" {
		return nil, errors.Wrap(ErrMalformedResponse, "token response has no token")
	}

	token := &Token{
		Value:    tr.Token,
		IssuedAt: e.client.clock.Now(),
	}

	if tr.Expires != "" {
		if expires, err := time.Parse(time.RFC3339, tr.Expires); err == nil {
			token.Expires = expires
		}
	}

	return token, nil
}

type clientCredentialsExchanger struct {
	client *Client
	config *clientcredentials.Config
}

// ClientCredentialsExchanger exchanges a Jamf API client id and secret
// through the OAuth client credentials grant.
func (c *Client) ClientCredentialsExchanger(clientID, clientSecret string) (Exchanger, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.Wrap(ErrConfig, "client id and client secret are required")
	}

	return &clientCredentialsExchanger{
		client: c,
		config: &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     c.baseURL + oauthTokenPath,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
	}, nil
}

func (e *clientCredentialsExchanger) Exchange(ctx context.Context) (*Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.client.client.StandardClient())

	tok, err := e.config.Token(ctx)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return nil, &ResponseError{
				Kind:       EndpointAuth,
				Method:     http.MethodPost,
				URL:        e.config.TokenURL,
				StatusCode: rerr.Response.StatusCode,
				Err:        ErrAuth,
			}
		}

		return nil, errors.Wrap(ErrAuth, err.Error())
	}

	token := &Token{
		Value:    tok.AccessToken,
		IssuedAt: e.client.clock.Now(),
	}

	// oauth2 stamps Expiry from the wall clock, only the lifetime is kept.
	if !tok.Expiry.IsZero() {
		token.Lifetime = time.Until(tok.Expiry).Round(time.Second)
		token.Expires = token.IssuedAt.Add(token.Lifetime)
	}

	return token, nil
}
