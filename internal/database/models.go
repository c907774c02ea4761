package database

import (
	"time"

	"github.com/google/uuid"
)

// Artist represents a catalogued music artist.
type Artist struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name          string    `gorm:"not null;index" json:"name"`
	SortName      string    `json:"sort_name,omitempty"`
	MusicBrainzID *string   `gorm:"index" json:"musicbrainz_id,omitempty"`
	Biography     string    `gorm:"type:text" json:"biography,omitempty"`

	// Relative asset paths under the artist storage root.
	ImagePath      string `json:"image_path,omitempty"`
	BackgroundPath string `json:"background_path,omitempty"`
	BannerPath     string `json:"banner_path,omitempty"`
	LogoPath       string `json:"logo_path,omitempty"`

	// MbidSearchedAt is set once a canonical-ID search has been attempted so
	// the artist is not retried every sweep, regardless of outcome.
	MbidSearchedAt *time.Time `json:"mbid_searched_at,omitempty"`
	// EnrichedAt is set after every enrichment run, successful or not.
	EnrichedAt *time.Time `json:"enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Album represents a catalogued album (release group).
type Album struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ArtistID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"artist_id"`
	Title         string     `gorm:"not null;index" json:"title"`
	MusicBrainzID *string    `gorm:"index" json:"musicbrainz_id,omitempty"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	CoverPath     string     `json:"cover_path,omitempty"`
	ReleaseDate   *time.Time `json:"release_date,omitempty"`

	MbidSearchedAt *time.Time `json:"mbid_searched_at,omitempty"`
	EnrichedAt     *time.Time `json:"enriched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Artist *Artist `gorm:"foreignKey:ArtistID" json:"artist,omitempty"`
}

// Track represents a catalogued track.
type Track struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AlbumID       uuid.UUID `gorm:"type:uuid;not null;index" json:"album_id"`
	ArtistID      uuid.UUID `gorm:"type:uuid;not null;index" json:"artist_id"`
	Title         string    `gorm:"not null" json:"title"`
	TrackNumber   int       `json:"track_number,omitempty"`
	Duration      int       `json:"duration,omitempty"` // seconds
	Genre         string    `json:"genre,omitempty"`    // raw tag from file metadata
	Path          string    `gorm:"index" json:"path,omitempty"`
	MusicBrainzID *string   `gorm:"index" json:"musicbrainz_id,omitempty"`

	MbidSearchedAt *time.Time `json:"mbid_searched_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Genre is a normalized genre tag shared across artists and albums.
type Genre struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ArtistGenre links an artist to a genre.
type ArtistGenre struct {
	ArtistID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"artist_id"`
	GenreID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"genre_id"`
	CreatedAt time.Time `json:"created_at"`
}

// AlbumGenre links an album to a genre.
type AlbumGenre struct {
	AlbumID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"album_id"`
	GenreID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"genre_id"`
	CreatedAt time.Time `json:"created_at"`
}
