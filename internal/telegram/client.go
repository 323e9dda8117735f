package telegram

import (
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

const DefaultBaseURL = "https://api.telegram.org"

var ErrNotConfigured = errors.New("telegram not configured")

// Client talks to the Bot API. Only getMe is used; it tells whether the
// token is valid and the API is reachable.
type Client struct {
	Token   string
	BaseURL string
	HTTP    *http.Client
}

func NewClient(token string) *Client {
	return &Client{
		Token:   token,
		BaseURL: DefaultBaseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Enabled() bool {
	return c.Token != ""
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (c *Client) GetMe(ctx context.Context) (User, error) {
	var u User
	if !c.Enabled() {
		return u, ErrNotConfigured
	}
	endpoint := fmt.Sprintf("%s/bot%s/getMe", strings.TrimRight(c.BaseURL, "/"), c.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return u, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		// *url.Error prints the url, which carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return u, fmt.Errorf("telegram getMe: %w", uerr.Err)
		}
		return u, err
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode >= 300 {
		return u, fmt.Errorf("telegram status %d: %s", res.StatusCode, string(body))
	}
	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return u, fmt.Errorf("decode getMe response: %w", err)
	}
	if !out.OK {
		return u, fmt.Errorf("telegram error %d: %s", out.ErrorCode, out.Description)
	}
	if err := json.Unmarshal(out.Result, &u); err != nil {
		return u, fmt.Errorf("decode bot user: %w", err)
	}
	return u, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.GetMe(ctx)
	return err
}
