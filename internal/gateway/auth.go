package gateway

import (
	"context"
	"net/http"

	"github.com/franz/prms-console/internal/model"
)

// AuthAPI groups the /auth endpoints
type AuthAPI struct {
	c *Client
}

// Auth returns the auth method group
func (c *Client) Auth() AuthAPI {
	return AuthAPI{c: c}
}

// Login exchanges credentials for a bearer token. Storing it is the caller's job.
func (a AuthAPI) Login(ctx context.Context, username, password string) (model.Token, error) {
	var tok model.Token
	err := a.c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", nil,
		model.LoginRequest{Username: username, Password: password}, &tok)
	return tok, err
}

// Me returns the operator the current token belongs to
func (a AuthAPI) Me(ctx context.Context) (model.User, error) {
	var u model.User
	err := a.c.getJSON(ctx, "/api/v1/auth/me", nil, &u)
	return u, err
}

// Logout ends the server session
func (a AuthAPI) Logout(ctx context.Context) error {
	return a.c.doJSON(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, nil)
}

// Health checks the unauthenticated /health endpoint
func (c *Client) Health(ctx context.Context) error {
	_, err := c.send(ctx, request{method: http.MethodGet, path: "/health"})
	return err
}
