package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"reelfeed/models"
	"reelfeed/pager"
)

var ErrUnexpectedStatus = errors.New("unexpected status")

// HTTP fetches feed pages from a reelfeed server. A page without a next
// offset ends the feed.
type HTTP struct {
	baseURL string
	feed    string
	client  *http.Client
}

func NewHTTP(baseURL string, feed string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTP{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		feed:    feed,
		client:  client,
	}
}

func (h *HTTP) FetchPage(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
	u := fmt.Sprintf("%s/api/feeds/%s?%s", h.baseURL, url.PathEscape(h.feed), url.Values{
		"offset": []string{strconv.Itoa(offset)},
		"limit":  []string{strconv.Itoa(limit)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	var page models.FeedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode feed page: %w", err)
	}
	if page.NextOffset == nil {
		return page.Items, pager.ErrEndOfFeed
	}
	return page.Items, nil
}

var _ pager.Source = (*HTTP)(nil)
