package audiodb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Client talks to The AudioDB API. The free tier uses API key "2"; a paid
// key raises rate limits and unlocks HQ images.
type Client struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

// NewClient creates an AudioDB client.
func NewClient(logger hclog.Logger, apiKey, userAgent string) *Client {
	if apiKey == "" {
		apiKey = "2"
	}
	return &Client{
		logger:     logger.Named("audiodb"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    fmt.Sprintf("https://www.theaudiodb.com/api/v1/json/%s", apiKey),
		userAgent:  userAgent,
	}
}

// SetBaseURL points the client at a different service root. Used by
// tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audiodb returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SearchArtist looks up an artist by name. Returns nil when AudioDB has
// no record.
func (c *Client) SearchArtist(ctx context.Context, name string) (*Artist, error) {
	var response ArtistResponse
	if err := c.get(ctx, "/search.php?s="+url.QueryEscape(name), &response); err != nil {
		return nil, err
	}
	if len(response.Artists) == 0 {
		return nil, nil
	}
	c.logger.Debug("artist found", "name", name, "id", response.Artists[0].IDArtist)
	return &response.Artists[0], nil
}

// SearchAlbum looks up an album by artist and album name. Returns nil
// when AudioDB has no record.
func (c *Client) SearchAlbum(ctx context.Context, artist, album string) (*Album, error) {
	path := fmt.Sprintf("/searchalbum.php?s=%s&a=%s", url.QueryEscape(artist), url.QueryEscape(album))
	var response AlbumResponse
	if err := c.get(ctx, path, &response); err != nil {
		return nil, err
	}
	if len(response.Album) == 0 {
		return nil, nil
	}
	c.logger.Debug("album found", "artist", artist, "album", album, "id", response.Album[0].IDAlbum)
	return &response.Album[0], nil
}
