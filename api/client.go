// Package api is the typed client for the REST collaborator behind the
// verification flows. It owns the wire details — paths, query parameters,
// body shapes, and the verbatim Authorization header — and surfaces server
// rejections with the server's own message.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// genericRejection is the fallback message when a non-2xx response carries
// no usable message of its own.
const genericRejection = "request rejected"

// Error is a server-side rejection: a non-2xx status, carrying the server's
// message verbatim when one was provided. The flow engine surfaces Message
// to the user unaltered.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Unauthorized reports whether the rejection means the bearer token is
// missing, invalid, or expired. 419 is the non-standard "session expired"
// status some deployments return instead of 401.
func (e *Error) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Status == 419
}

// Profile is the server's view of the current user.
type Profile struct {
	FullName string    `json:"name"`
	Photo    string    `json:"photo,omitempty"`
	Bindings []Binding `json:"bindings,omitempty"`
}

// Binding is one external-provider association on the profile. Bindings are
// read-only projections; they only change through a confirmed bind call
// followed by a wholesale profile reload.
type Binding struct {
	Provider string `json:"provider"`
	Bound    bool   `json:"bound"`
	Identity string `json:"identity,omitempty"`
}

// Client issues the fixed set of exchanges the flows consume. The bearer
// token is opaque to the client and sent verbatim as the Authorization
// header value, without any scheme prefix.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient validates baseURL and returns a Client over it. A nil hc falls
// back to a client with a 15s timeout; per-call deadlines beyond that are
// the caller's context's business.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}, nil
}

// BaseURL returns the configured base origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type loginBody struct {
	Login    string `json:"login"`
	Password string `json:"password,omitempty"`
}

type confirmEmailResponse struct {
	Data struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

type profileResponse struct {
	Profile Profile `json:"profile"`
}

// ConfirmEmail requests dispatch of a one-time recovery code when code is
// empty, and validates the code against the login when it is not. On code
// validation the server responds with data.hash, the guard token for the
// final recovery step; the empty-code exchange returns "".
func (c *Client) ConfirmEmail(ctx context.Context, login, code string) (string, error) {
	q := url.Values{}
	q.Set("recovery", "true")
	if code != "" {
		q.Set("code", code)
	}
	var resp confirmEmailResponse
	if err := c.do(ctx, http.MethodPost, "/auth/confirm_email", q, "", loginBody{Login: login}, &resp); err != nil {
		return "", err
	}
	return resp.Data.Hash, nil
}

// RecoverPassword completes password recovery: the new password, the login,
// and the guard hash obtained from ConfirmEmail.
func (c *Client) RecoverPassword(ctx context.Context, login, password, guardHash string) error {
	q := url.Values{}
	q.Set("guard_hash", guardHash)
	return c.do(ctx, http.MethodPost, "/auth/password_recovery", q, "", loginBody{Login: login, Password: password}, nil)
}

// BindLogin associates an email/password pair with the authenticated
// session. With an empty code the server dispatches a one-time code; with a
// code it confirms the bind.
func (c *Client) BindLogin(ctx context.Context, token, login, password, code string) error {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	return c.do(ctx, http.MethodPost, "/user/bind_login", q, token, loginBody{Login: login, Password: password}, nil)
}

// BindIdentity associates an externally-asserted identity with the session.
// The widget payload is forwarded untouched; its shape is the identity
// provider's contract with the server, not ours.
func (c *Client) BindIdentity(ctx context.Context, token string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "/user/bind_login", nil, token, payload, nil)
}

// FetchProfile returns the current profile under the given token.
func (c *Client) FetchProfile(ctx context.Context, token string) (Profile, error) {
	var resp profileResponse
	if err := c.do(ctx, http.MethodGet, "/user/profile", nil, token, nil, &resp); err != nil {
		return Profile{}, err
	}
	return resp.Profile, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		// Raw token value, not "Bearer <token>". The collaborator expects
		// the opaque string verbatim.
		req.Header.Set("Authorization", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Status: resp.StatusCode, Message: rejectionMessage(data)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response body: %w", err)
		}
	}
	return nil
}

// rejectionMessage extracts the server-provided message from an error body,
// falling back to a generic message.
func rejectionMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return genericRejection
}
