// Package games is a thin passthrough to the RAWG game metadata API. Every
// call runs through the shared key rotator.
package games

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/repack-aggregator/internal/apikey"
	"github.com/JakeFAU/repack-aggregator/internal/crawler"
)

// DefaultBaseURL is the public RAWG API root.
const DefaultBaseURL = "https://api.rawg.io/api"

const listPageSize = 10

// Client fetches raw JSON documents from the metadata API.
type Client struct {
	fetcher crawler.Fetcher
	rotator *apikey.Rotator
	baseURL string
}

// NewClient builds a Client. An empty baseURL means DefaultBaseURL.
func NewClient(fetcher crawler.Fetcher, rotator *apikey.Rotator, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		fetcher: fetcher,
		rotator: rotator,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// List returns one page of desktop games.
func (c *Client) List(ctx context.Context, page int) (json.RawMessage, error) {
	return c.get(ctx, "/games", url.Values{
		"page":            {strconv.Itoa(max(page, 1))},
		"page_size":       {strconv.Itoa(listPageSize)},
		"play_on_desktop": {"true"},
	})
}

// Search looks games up by free-text query.
func (c *Client) Search(ctx context.Context, query string) (json.RawMessage, error) {
	return c.get(ctx, "/games", url.Values{"search": {query}})
}

// Details returns one game by id or slug.
func (c *Client) Details(ctx context.Context, id string) (json.RawMessage, error) {
	return c.get(ctx, "/games/"+url.PathEscape(id), nil)
}

// Screenshots returns one page of a game's screenshots.
func (c *Client) Screenshots(ctx context.Context, id string, page int) (json.RawMessage, error) {
	return c.get(ctx, "/games/"+url.PathEscape(id)+"/screenshots", url.Values{"page": {strconv.Itoa(max(page, 1))}})
}

// Movies returns one page of a game's trailers.
func (c *Client) Movies(ctx context.Context, id string, page int) (json.RawMessage, error) {
	return c.get(ctx, "/games/"+url.PathEscape(id)+"/movies", url.Values{"page": {strconv.Itoa(max(page, 1))}})
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return apikey.Call(ctx, c.rotator, func(ctx context.Context, key string) (json.RawMessage, error) {
		q := url.Values{}
		for k, v := range params {
			q[k] = v
		}
		q.Set("key", key)
		resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{
			URL: c.baseURL + path + "?" + q.Encode(),
		})
		if err != nil {
			return nil, fmt.Errorf("games api %s: %w", path, err)
		}
		if !json.Valid(resp.Body) {
			return nil, fmt.Errorf("games api %s: response is not json", path)
		}
		return json.RawMessage(resp.Body), nil
	})
}
