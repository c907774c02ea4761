package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

// DefaultBaseURL is the MusicBrainz web service root.
const DefaultBaseURL = "https://musicbrainz.org/ws/2"

// Client talks to the MusicBrainz web service. Requests are serialized
// through a rate limiter; MusicBrainz allows one request per second for
// anonymous clients.
type Client struct {
	logger      hclog.Logger
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *rateLimiter
}

type rateLimiter struct {
	mu          sync.Mutex
	lastRequest time.Time
	interval    time.Duration
}

func (r *rateLimiter) wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elapsed := time.Since(r.lastRequest); elapsed < r.interval {
		time.Sleep(r.interval - elapsed)
	}
	r.lastRequest = time.Now()
}

// NewClient creates a MusicBrainz client. rateLimit is requests per
// second; values <= 0 fall back to 1.
func NewClient(logger hclog.Logger, userAgent string, rateLimit float64) *Client {
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &Client{
		logger:     logger.Named("musicbrainz"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  userAgent,
		rateLimiter: &rateLimiter{
			interval: time.Duration(float64(time.Second) / rateLimit),
		},
	}
}

// SetBaseURL points the client at a different service root. Used by
// tests.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

// get performs one rate-limited GET and decodes the JSON response into
// out. A 404 maps to the engine's not-found sentinel.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	c.rateLimiter.wait()

	query.Set("fmt", "json")
	requestURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return enrichmentmodule.ErrNotFound
	}
	if resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("musicbrainz rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("musicbrainz returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SearchArtists searches artists by name.
func (c *Client) SearchArtists(ctx context.Context, name string, limit int) ([]Artist, error) {
	query := url.Values{}
	query.Set("query", fmt.Sprintf("artist:%q", name))
	query.Set("limit", fmt.Sprintf("%d", limit))

	var response ArtistSearchResponse
	if err := c.get(ctx, "/artist", query, &response); err != nil {
		return nil, err
	}
	c.logger.Debug("artist search", "name", name, "results", len(response.Artists))
	return response.Artists, nil
}

// SearchReleaseGroups searches release groups by title and optional
// artist name.
func (c *Client) SearchReleaseGroups(ctx context.Context, title, artist string, limit int) ([]ReleaseGroup, error) {
	terms := []string{fmt.Sprintf("releasegroup:%q", title)}
	if artist != "" {
		terms = append(terms, fmt.Sprintf("artist:%q", artist))
	}

	query := url.Values{}
	query.Set("query", strings.Join(terms, " AND "))
	query.Set("limit", fmt.Sprintf("%d", limit))

	var response ReleaseGroupSearchResponse
	if err := c.get(ctx, "/release-group", query, &response); err != nil {
		return nil, err
	}
	c.logger.Debug("release group search", "title", title, "artist", artist, "results", len(response.ReleaseGroups))
	return response.ReleaseGroups, nil
}

// SearchRecordings searches recordings by title with optional artist and
// release constraints.
func (c *Client) SearchRecordings(ctx context.Context, title, artist, album string, limit int) ([]Recording, error) {
	terms := []string{fmt.Sprintf("recording:%q", title)}
	if artist != "" {
		terms = append(terms, fmt.Sprintf("artist:%q", artist))
	}
	if album != "" {
		terms = append(terms, fmt.Sprintf("release:%q", album))
	}

	query := url.Values{}
	query.Set("query", strings.Join(terms, " AND "))
	query.Set("limit", fmt.Sprintf("%d", limit))

	var response RecordingSearchResponse
	if err := c.get(ctx, "/recording", query, &response); err != nil {
		return nil, err
	}
	c.logger.Debug("recording search", "title", title, "results", len(response.Recordings))
	return response.Recordings, nil
}

// LookupArtist fetches one artist by MBID, including its tags.
func (c *Client) LookupArtist(ctx context.Context, mbid string) (*Artist, error) {
	query := url.Values{}
	query.Set("inc", "tags")

	var artist Artist
	if err := c.get(ctx, "/artist/"+url.PathEscape(mbid), query, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}
