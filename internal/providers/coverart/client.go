package coverart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/harmonia-media/harmonia/internal/modules/enrichmentmodule"
)

// DefaultBaseURL is the Cover Art Archive root.
const DefaultBaseURL = "https://coverartarchive.org"

// Image is one archive image with its size-tiered thumbnails.
type Image struct {
	ID         json.Number       `json:"id"`
	Image      string            `json:"image"`
	Front      bool              `json:"front"`
	Back       bool              `json:"back"`
	Types      []string          `json:"types"`
	Thumbnails map[string]string `json:"thumbnails"`
}

// Response is the archive's release-group envelope.
type Response struct {
	Images []Image `json:"images"`
}

// Source fetches album covers from the Cover Art Archive. Lookups are
// keyed by MusicBrainz release-group ID; an album without one cannot be
// matched here.
type Source struct {
	logger     hclog.Logger
	httpClient *http.Client
	baseURL    string
	userAgent  string
}

func NewSource(logger hclog.Logger, userAgent string) *Source {
	return &Source{
		logger:     logger.Named("coverart"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  userAgent,
	}
}

// SetBaseURL points the source at a different service root. Used by
// tests.
func (s *Source) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimRight(baseURL, "/")
}

// AlbumCover returns the front cover URLs for an album's release group.
func (s *Source) AlbumCover(ctx context.Context, title, artist, mbid string) (enrichmentmodule.CoverSet, error) {
	if mbid == "" {
		return enrichmentmodule.CoverSet{}, enrichmentmodule.ErrNotFound
	}

	requestURL := fmt.Sprintf("%s/release-group/%s", s.baseURL, mbid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return enrichmentmodule.CoverSet{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return enrichmentmodule.CoverSet{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return enrichmentmodule.CoverSet{}, enrichmentmodule.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return enrichmentmodule.CoverSet{}, fmt.Errorf("cover art archive returned status %d", resp.StatusCode)
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return enrichmentmodule.CoverSet{}, fmt.Errorf("failed to decode response: %w", err)
	}

	front := frontImage(response.Images)
	if front == nil {
		return enrichmentmodule.CoverSet{}, enrichmentmodule.ErrNotFound
	}

	s.logger.Debug("cover found", "release_group", mbid)
	return enrichmentmodule.CoverSet{
		Small:    front.Thumbnails["250"],
		Medium:   front.Thumbnails["500"],
		Large:    front.Thumbnails["1200"],
		Original: front.Image,
	}, nil
}

// frontImage selects the front cover, falling back to the first image.
func frontImage(images []Image) *Image {
	for i := range images {
		if images[i].Front {
			return &images[i]
		}
	}
	for i := range images {
		for _, t := range images[i].Types {
			if strings.EqualFold(t, "front") {
				return &images[i]
			}
		}
	}
	if len(images) > 0 {
		return &images[0]
	}
	return nil
}
