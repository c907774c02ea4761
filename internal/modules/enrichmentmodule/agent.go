package enrichmentmodule

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by providers when the remote source has no
// record for the entity. It is a result, not a failure: callers record it
// and move on instead of retrying.
var ErrNotFound = errors.New("entity not found")

// Capability identifies one operation an agent can perform. An agent
// declares its capability set as data at registration time; no runtime
// type probing is involved.
type Capability uint8

const (
	CapBiography Capability = 1 << iota
	CapImages
	CapCover
	CapCanonicalID
)

// String returns a readable capability list for logging.
func (c Capability) String() string {
	names := ""
	add := func(name string) {
		if names != "" {
			names += "|"
		}
		names += name
	}
	if c&CapBiography != 0 {
		add("biography")
	}
	if c&CapImages != 0 {
		add("images")
	}
	if c&CapCover != 0 {
		add("cover")
	}
	if c&CapCanonicalID != 0 {
		add("canonical-id")
	}
	if names == "" {
		return "none"
	}
	return names
}

// TagCount is a genre or folksonomy tag with its occurrence count.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CandidateMatch is one canonical-ID search result. Score is a 0-100
// fuzzy-match quality score.
type CandidateMatch struct {
	ExternalID     string     `json:"external_id"`
	Name           string     `json:"name"`
	Score          float64    `json:"score"`
	Disambiguation string     `json:"disambiguation,omitempty"`
	Tags           []TagCount `json:"tags,omitempty"`
}

// TrackSearchParams are the inputs for a track canonical-ID search.
type TrackSearchParams struct {
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// ImageSet holds the four artist asset slots. Providers may fill only some
// slots; sets from multiple providers are merged in priority order.
type ImageSet struct {
	Profile    string `json:"profile,omitempty"`
	Background string `json:"background,omitempty"`
	Banner     string `json:"banner,omitempty"`
	Logo       string `json:"logo,omitempty"`
}

// Merge fills empty slots from other, never overwriting a filled slot.
func (s *ImageSet) Merge(other ImageSet) {
	if s.Profile == "" {
		s.Profile = other.Profile
	}
	if s.Background == "" {
		s.Background = other.Background
	}
	if s.Banner == "" {
		s.Banner = other.Banner
	}
	if s.Logo == "" {
		s.Logo = other.Logo
	}
}

// Complete reports whether every slot is filled.
func (s ImageSet) Complete() bool {
	return s.Profile != "" && s.Background != "" && s.Banner != "" && s.Logo != ""
}

// Empty reports whether no slot is filled.
func (s ImageSet) Empty() bool {
	return s == ImageSet{}
}

// CoverSet holds album cover URLs by size. Providers may fill only some
// sizes; sets are merged across providers like ImageSet.
type CoverSet struct {
	Small    string `json:"small,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Large    string `json:"large,omitempty"`
	Original string `json:"original,omitempty"`
}

// Merge fills empty sizes from other, never overwriting a filled size.
func (s *CoverSet) Merge(other CoverSet) {
	if s.Small == "" {
		s.Small = other.Small
	}
	if s.Medium == "" {
		s.Medium = other.Medium
	}
	if s.Large == "" {
		s.Large = other.Large
	}
	if s.Original == "" {
		s.Original = other.Original
	}
}

// Complete reports whether every size is filled.
func (s CoverSet) Complete() bool {
	return s.Small != "" && s.Medium != "" && s.Large != "" && s.Original != ""
}

// Empty reports whether no size is filled.
func (s CoverSet) Empty() bool {
	return s == CoverSet{}
}

// Best returns the largest available cover URL.
func (s CoverSet) Best() string {
	for _, url := range []string{s.Original, s.Large, s.Medium, s.Small} {
		if url != "" {
			return url
		}
	}
	return ""
}

// BiographyProvider fetches free-text descriptions from one source.
type BiographyProvider interface {
	ArtistBiography(ctx context.Context, name, mbid string) (string, error)
	AlbumDescription(ctx context.Context, title, artist, mbid string) (string, error)
}

// ImageProvider fetches artist image URLs from one source.
type ImageProvider interface {
	ArtistImages(ctx context.Context, name, mbid string) (ImageSet, error)
}

// CoverProvider fetches album cover URLs from one source.
type CoverProvider interface {
	AlbumCover(ctx context.Context, title, artist, mbid string) (CoverSet, error)
}

// CanonicalIDSearcher searches a canonical metadata database for stable
// external identifiers.
type CanonicalIDSearcher interface {
	SearchArtist(ctx context.Context, name string, limit int) ([]CandidateMatch, error)
	SearchAlbum(ctx context.Context, title, artist string, limit int) ([]CandidateMatch, error)
	SearchTrack(ctx context.Context, params TrackSearchParams, limit int) ([]CandidateMatch, error)
	ByID(ctx context.Context, externalID string) (*CandidateMatch, error)
}

// TagProvider fetches genre tags from one source. Optional: not part of
// the capability set, looked up by configured source name.
type TagProvider interface {
	ArtistTags(ctx context.Context, name string) ([]TagCount, error)
	AlbumTags(ctx context.Context, title, artist string) ([]TagCount, error)
}

// Agent is one registered external metadata source. Immutable after
// registration.
type Agent struct {
	Name         string
	Priority     int // lower = higher precedence
	Enabled      bool
	Capabilities Capability

	Biography BiographyProvider
	Images    ImageProvider
	Cover     CoverProvider
	Search    CanonicalIDSearcher
	Tags      TagProvider
}

// Has reports whether the agent declares the capability.
func (a *Agent) Has(c Capability) bool {
	return a.Capabilities&c != 0
}

// validate checks every declared capability is backed by an implementation.
func (a *Agent) validate() error {
	if a.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if a.Has(CapBiography) && a.Biography == nil {
		return fmt.Errorf("agent %s declares biography capability without implementation", a.Name)
	}
	if a.Has(CapImages) && a.Images == nil {
		return fmt.Errorf("agent %s declares image capability without implementation", a.Name)
	}
	if a.Has(CapCover) && a.Cover == nil {
		return fmt.Errorf("agent %s declares cover capability without implementation", a.Name)
	}
	if a.Has(CapCanonicalID) && a.Search == nil {
		return fmt.Errorf("agent %s declares canonical-id capability without implementation", a.Name)
	}
	return nil
}
