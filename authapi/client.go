package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/users"
	"github.com/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Client is a typed client for the auth endpoints of the support desk API.
// It deliberately runs on a plain transport: credential issue and refresh
// must never recurse through the authorising request interceptor. The
// refresh credential travels in an http-only cookie held by the cookie jar,
// mirroring how a browser carries it - callers never see it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// attached when the supplied client has none; without one the refresh
// cookie is lost between calls.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}

	client := &Client{baseURL: strings.TrimRight(baseURL, "/")}
	for _, option := range options {
		option(client)
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "[New] creating cookie jar")
		}
		client.httpClient.Jar = jar
	}

	return client, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Login exchanges email and password for a credential. The response sets
// the refresh cookie on the jar as a side effect.
func (c *Client) Login(ctx context.Context, email, password string) (TokenResponse, error) {
	var tokenResponse TokenResponse
	status, message, err := c.doJSON(ctx, http.MethodPost, RouteLogin, LoginRequest{Email: email, Password: password}, "", &tokenResponse)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "[Login] login request")
	}

	switch status {
	case http.StatusOK:
		return tokenResponse, nil
	case http.StatusUnauthorized:
		return TokenResponse{}, ErrInvalidCredentials
	case http.StatusBadRequest:
		return TokenResponse{}, wrapSentinel(ErrInvalidRequest, message)
	default:
		return TokenResponse{}, &APIError{StatusCode: status, Message: message}
	}
}

// Register creates an account and signs it in
func (c *Client) Register(ctx context.Context, registration RegisterRequest) (TokenResponse, error) {
	var tokenResponse TokenResponse
	status, message, err := c.doJSON(ctx, http.MethodPost, RouteRegister, registration, "", &tokenResponse)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "[Register] register request")
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return tokenResponse, nil
	case http.StatusConflict:
		return TokenResponse{}, ErrEmailTaken
	case http.StatusBadRequest:
		return TokenResponse{}, wrapSentinel(ErrInvalidRequest, message)
	default:
		return TokenResponse{}, &APIError{StatusCode: status, Message: message}
	}
}

// Refresh exchanges the cookie-borne refresh credential for a new access
// token. No body is sent: the cookie jar supplies everything.
func (c *Client) Refresh(ctx context.Context) (TokenResponse, error) {
	var tokenResponse TokenResponse
	status, message, err := c.doJSON(ctx, http.MethodPost, RouteRefresh, nil, "", &tokenResponse)
	if err != nil {
		return TokenResponse{}, errors.Wrap(err, "[Refresh] refresh request")
	}

	switch status {
	case http.StatusOK:
		return tokenResponse, nil
	case http.StatusUnauthorized:
		return TokenResponse{}, ErrUnauthorized
	default:
		return TokenResponse{}, &APIError{StatusCode: status, Message: message}
	}
}

// Me fetches the profile of the credential's owner
func (c *Client) Me(ctx context.Context, accessToken string) (*users.User, error) {
	var user users.User
	status, message, err := c.doJSON(ctx, http.MethodGet, RouteMe, nil, accessToken, &user)
	if err != nil {
		return nil, errors.Wrap(err, "[Me] profile request")
	}

	switch status {
	case http.StatusOK:
		return &user, nil
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	default:
		return nil, &APIError{StatusCode: status, Message: message}
	}
}

// Logout asks the server to invalidate the credential and its refresh
// session. Callers treat failures as best-effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	status, message, err := c.doJSON(ctx, http.MethodPost, RouteLogout, nil, accessToken, nil)
	if err != nil {
		return errors.Wrap(err, "[Logout] logout request")
	}

	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return &APIError{StatusCode: status, Message: message}
	}
}

// doJSON sends one request and decodes a 2xx response into out. Non-2xx
// statuses are not errors here - the caller classifies them - but the
// server's error body is surfaced as the message.
func (c *Client) doJSON(ctx context.Context, method, route string, body any, accessToken string, out any) (int, string, error) {
	var requestBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, "", errors.Wrap(err, "[doJSON] marshalling request")
		}
		requestBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, requestBody)
	if err != nil {
		return 0, "", errors.Wrap(err, "[doJSON] creating request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", errors.Wrap(err, "[doJSON] sending request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, "", errors.Wrap(err, "[doJSON] decoding response")
			}
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
		}
		return resp.StatusCode, "", nil
	}

	var errResp errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	message := errResp.Error
	if errResp.ErrorDescription != "" {
		message = fmt.Sprintf("%s: %s", errResp.Error, errResp.ErrorDescription)
	}
	return resp.StatusCode, message, nil
}

func wrapSentinel(sentinel error, message string) error {
	if message == "" {
		return sentinel
	}
	return errors.Wrap(sentinel, message)
}
