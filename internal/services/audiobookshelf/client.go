package audiobookshelf

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

	"github.com/rs/zerolog/log"

	"github.com/raygan/mam-audiofinder-sub001/pkg/httphelpers"
)

const (
	defaultHTTPTimeout       = 15 * time.Second
	defaultSearchLimit       = 10
	maxSearchBytes     int64 = 4 << 20
	maxCoverBytes      int64 = 8 << 20
)

var (
	// ErrNotConfigured is returned when no server URL, token or library is set.
	ErrNotConfigured = errors.New("audiobookshelf is not configured")
	// ErrUnreachable wraps transport failures and server errors.
	ErrUnreachable = errors.New("audiobookshelf unreachable")
	// ErrCoverNotFound is returned when the item has no cover.
	ErrCoverNotFound = errors.New("cover not found")
)

// Config holds the connection settings for an Audiobookshelf server.
type Config struct {
	BaseURL        string
	Token          string
	LibraryID      string
	TimeoutSeconds int
}

// StatusError is a non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("audiobookshelf %s: http %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// Unwrap maps server-side failures to ErrUnreachable.
func (e *StatusError) Unwrap() error {
	if e.StatusCode >= http.StatusInternalServerError {
		return ErrUnreachable
	}
	return nil
}

// Item is a library item as returned by search.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Author   string `json:"author"`
	HasCover bool   `json:"has_cover"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			LibraryID:      strings.TrimSpace(cfg.LibraryID),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has everything needed to call the server.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != "" && c.cfg.Token != "" && c.cfg.LibraryID != ""
}

type searchResponse struct {
	Book []struct {
		LibraryItem libraryItem `json:"libraryItem"`
	} `json:"book"`
}

type libraryItem struct {
	ID    string `json:"id"`
	Media struct {
		CoverPath string `json:"coverPath"`
		Metadata  struct {
			Title      string `json:"title"`
			Subtitle   string `json:"subtitle"`
			AuthorName string `json:"authorName"`
		} `json:"metadata"`
	} `json:"media"`
}

// Search queries the configured library by title, narrowing by author when given.
func (c *Client) Search(ctx context.Context, title, author string) ([]Item, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	query := strings.TrimSpace(title)
	if query == "" {
		query = strings.TrimSpace(author)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(defaultSearchLimit))
	endpoint := fmt.Sprintf("%s/api/libraries/%s/search?%s", c.cfg.BaseURL, url.PathEscape(c.cfg.LibraryID), params.Encode())

	resp, err := c.do(ctx, endpoint, "application/json")
	if err != nil {
		return nil, err
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Op: "search", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var payload searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSearchBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]Item, 0, len(payload.Book))
	for _, b := range payload.Book {
		li := b.LibraryItem
		items = append(items, Item{
			ID:       li.ID,
			Title:    li.Media.Metadata.Title,
			Subtitle: li.Media.Metadata.Subtitle,
			Author:   li.Media.Metadata.AuthorName,
			HasCover: li.Media.CoverPath != "",
		})
	}

	log.Trace().Str("query", query).Int("results", len(items)).Msg("Audiobookshelf search")
	return items, nil
}

// CoverURL is the server URL of an item's cover image.
func (c *Client) CoverURL(itemID string) string {
	return fmt.Sprintf("%s/api/items/%s/cover", c.cfg.BaseURL, url.PathEscape(itemID))
}

// FetchCover downloads the cover image bytes and their content type.
func (c *Client) FetchCover(ctx context.Context, itemID string) ([]byte, string, error) {
	if !c.Configured() {
		return nil, "", ErrNotConfigured
	}

	resp, err := c.do(ctx, c.CoverURL(itemID), "image/*")
	if err != nil {
		return nil, "", err
	}
	defer httphelpers.DrainAndClose(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrCoverNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, "", &StatusError{Op: "cover", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCoverBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read cover: %v", ErrUnreachable, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(ctx context.Context, endpoint, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return resp, nil
}
