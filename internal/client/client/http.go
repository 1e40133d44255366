package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/geopresence/internal/client/models"
	"github.com/dmitrijs2005/geopresence/internal/common"
	"github.com/dmitrijs2005/geopresence/internal/logging"
)

const maxErrorBody = 4 << 10

// HTTPClient talks JSON to the backend. It keeps a cookie jar so the
// HTTP-only refresh cookie set at login is replayed on refresh and logout.
type HTTPClient struct {
	base *url.URL
	http *http.Client
	log  logging.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &HTTPClient{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
		log:  log,
	}, nil
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", "", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("login: response has no access token")
	}
	return &resp, nil
}

func (c *HTTPClient) Register(ctx context.Context, fullName, email, password string) error {
	return c.do(ctx, http.MethodPost, "/register", "", registerRequest{FullName: fullName, Email: email, Password: password}, nil)
}

func (c *HTTPClient) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

func (c *HTTPClient) RefreshWithCookie(ctx context.Context) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/refresh", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) RefreshWithBearer(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/refresh", refreshToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Profile(ctx context.Context, accessToken string) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/profile", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *HTTPClient) TokenExpiry(ctx context.Context, accessToken string) (time.Time, error) {
	var resp tokenExpiryResponse
	if err := c.do(ctx, http.MethodGet, "/token-expiry", accessToken, nil, &resp); err != nil {
		return time.Time{}, err
	}
	if resp.AccessExp.IsZero() {
		return time.Time{}, fmt.Errorf("token-expiry: response has no access_exp")
	}
	return resp.AccessExp.Time, nil
}

func (c *HTTPClient) Call(ctx context.Context, accessToken, method, path string, in, out any) error {
	return c.do(ctx, method, path, accessToken, in, out)
}

func (c *HTTPClient) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	target := c.base.JoinPath(ref.Path)
	target.RawQuery = ref.RawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set(common.AuthorizationHeader, common.BearerPrefix+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug(ctx, "api call", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Msg     string `json:"msg"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Error != "":
			apiErr.Message = payload.Error
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Msg != "":
			apiErr.Message = payload.Msg
		}
	}
	return apiErr
}
