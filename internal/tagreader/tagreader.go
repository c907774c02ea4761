// Package tagreader reads embedded metadata from local audio files using
// dhowden/tag. It backs the genre aggregation fallback and the embedded
// cover-art fallback of the enrichment pipeline.
package tagreader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Reader reads tags from music files
type Reader struct {
	supportedFormats map[string]bool
}

// NewReader creates a new tag reader instance
func NewReader() *Reader {
	return &Reader{
		supportedFormats: map[string]bool{
			"mp3":  true,
			"flac": true,
			"m4a":  true,
			"aac":  true,
			"ogg":  true,
			"wav":  true,
			"wma":  true,
			"opus": true,
			"aiff": true,
		},
	}
}

// CanReadFile checks if the reader can handle the given file extension
func (r *Reader) CanReadFile(path string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return r.supportedFormats[ext]
}

// ReadGenre extracts the genre tag from a music file. Returns an empty
// string when the file carries no genre.
func (r *Reader) ReadGenre(path string) (string, error) {
	meta, err := r.read(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(meta.Genre()), nil
}

// ReadEmbeddedCover extracts embedded front-cover art from a music file.
// Returns the raw image bytes and their MIME type.
func (r *Reader) ReadEmbeddedCover(path string) ([]byte, string, error) {
	meta, err := r.read(path)
	if err != nil {
		return nil, "", err
	}

	pic := meta.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", fmt.Errorf("no embedded picture in %s", path)
	}

	mimeType := pic.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return pic.Data, mimeType, nil
}

func (r *Reader) read(path string) (tag.Metadata, error) {
	if !r.CanReadFile(path) {
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata from file: %w", err)
	}
	return meta, nil
}
