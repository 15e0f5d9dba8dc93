package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"starkcron/internal/model"
)

// PageSize is the number of events requested per page.
const PageSize = 10

// DefaultBaseURL is the explorer events endpoint.
const DefaultBaseURL = "https://sepolia-api.voyager.online/beta/events"

const maxBodyBytes = 10 << 20

// ErrStatus is wrapped by errors for non-2xx responses.
var ErrStatus = errors.New("unexpected status")

// Client fetches pages of contract events from the explorer API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient builds a Client. A zero timeout leaves requests unbounded.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// FetchPage returns one page of events for contract. Pages are 1-indexed.
func (c *Client) FetchPage(ctx context.Context, contract string, page int) (model.Page, error) {
	if page < 1 {
		return model.Page{}, fmt.Errorf("invalid page %d", page)
	}
	u, err := c.pageURL(contract, page)
	if err != nil {
		return model.Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return model.Page{}, fmt.Errorf("fetch page %d: %w", page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return model.Page{}, fmt.Errorf("read page %d: %w", page, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Page{}, fmt.Errorf("fetch page %d: %w: http %d: %s", page, ErrStatus, resp.StatusCode, snippet(body))
	}

	var out model.Page
	if err := json.Unmarshal(body, &out); err != nil {
		return model.Page{}, fmt.Errorf("decode page %d: %w", page, err)
	}
	if out.LastPage < 0 {
		return model.Page{}, fmt.Errorf("decode page %d: negative lastPage %d", page, out.LastPage)
	}
	for i, event := range out.Items {
		if err := event.Validate(); err != nil {
			return model.Page{}, fmt.Errorf("decode page %d item %d: %w", page, i, err)
		}
	}
	return out, nil
}

func (c *Client) pageURL(contract string, page int) (string, error) {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("ps", strconv.Itoa(PageSize))
	q.Set("p", strconv.Itoa(page))
	q.Set("contract", contract)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256] + "..."
	}
	return s
}
