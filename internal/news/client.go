// Package news fetches crypto headlines used to decorate volatility alerts.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxHeadlines = 7

// Headline is one cleaned news item.
type Headline struct {
	Title       string
	URL         string
	Source      string
	PublishedAt string
}

// Source fetches headlines for a coin symbol.
type Source interface {
	Headlines(ctx context.Context, symbol string) ([]Headline, error)
}

// Options parameterise the CryptoPanic client.
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client fetches posts from CryptoPanic.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs a news client.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://cryptopanic.com/api/v1"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "news_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Headlines returns up to seven recent news items for a symbol.
func (c *Client) Headlines(ctx context.Context, symbol string) ([]Headline, error) {
	if c.opts.APIKey == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("auth_token", c.opts.APIKey)
	params.Set("currencies", strings.ToUpper(symbol))
	params.Set("kind", "news")
	params.Set("public", "true")

	endpoint := c.baseURL + "/posts/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptopanic api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result struct {
		Results []struct {
			ID          int64           `json:"id"`
			Title       string          `json:"title"`
			URL         string          `json:"url"`
			Slug        string          `json:"slug"`
			Domain      json.RawMessage `json:"domain"`
			PublishedAt string          `json:"published_at"`
		} `json:"results"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode posts response: %w", err)
	}

	headlines := make([]Headline, 0, maxHeadlines)
	for _, post := range result.Results {
		if len(headlines) >= maxHeadlines {
			break
		}

		title := strings.Join(strings.Fields(post.Title), " ")
		if title == "" {
			title = "No Title"
		}

		postURL := post.URL
		if postURL == "" && post.ID != 0 {
			slug := post.Slug
			if slug == "" {
				slug = "news"
			}
			postURL = fmt.Sprintf("https://cryptopanic.com/news/%d/%s/", post.ID, slug)
		}
		if postURL == "" {
			postURL = "https://cryptopanic.com"
		}

		headlines = append(headlines, Headline{
			Title:       title,
			URL:         postURL,
			Source:      parseDomain(post.Domain),
			PublishedAt: post.PublishedAt,
		})
	}
	return headlines, nil
}

// parseDomain tolerates the API returning either a string or an object.
func parseDomain(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "CryptoPanic"
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		return asString
	}
	var asObject struct {
		Domain string `json:"domain"`
	}
	if err := json.Unmarshal(raw, &asObject); err == nil && asObject.Domain != "" {
		return asObject.Domain
	}
	return "CryptoPanic"
}

var _ Source = (*Client)(nil)
