package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/render"
)

// ErrNotFound is returned when the server has no user with the requested id
var ErrNotFound = errors.New("user not found")

// Client reads users from a server exposing the NewRouter API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client for baseURL using http.DefaultClient
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: http.DefaultClient}
}

// FetchAll returns every user
func (c *Client) FetchAll(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.get(ctx, "/users", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// FetchUser returns the user with the given id
func (c *Client) FetchUser(ctx context.Context, id string) (User, error) {
	var u User
	if err := c.get(ctx, "/users/"+url.PathEscape(id), &u); err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := render.DecodeJSON(resp.Body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}
