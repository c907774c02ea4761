package assetmodule

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Fetcher downloads remote images with size and content validation.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxSize     int64
	concurrency int
}

func NewFetcher(userAgent string, timeout time.Duration, maxSize int64, concurrency int) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	if concurrency <= 0 {
		concurrency = 3
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		userAgent:   userAgent,
		maxSize:     maxSize,
		concurrency: concurrency,
	}
}

// Fetch downloads one image URL. The declared Content-Length, the actual
// body size, the Content-Type, and the leading magic bytes are all
// checked; violations return a ValidationError. Data URIs are decoded in
// place, used by sources that carry image bytes instead of links.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "data:") {
		return f.decodeDataURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download of %s returned status %d", url, resp.StatusCode)
	}

	if resp.ContentLength > f.maxSize {
		return nil, "", &ValidationError{
			Field:  "content-length",
			Reason: fmt.Sprintf("declared size %d exceeds limit %d", resp.ContentLength, f.maxSize),
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		return nil, "", &ValidationError{
			Field:  "content-type",
			Reason: "response carries no Content-Type header",
		}
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", &ValidationError{
			Field:  "content-type",
			Reason: fmt.Sprintf("expected an image, got %s", contentType),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", &ValidationError{
			Field:  "body",
			Reason: fmt.Sprintf("body exceeds size limit %d", f.maxSize),
		}
	}

	format := DetectImageFormat(data)
	if format == "" {
		return nil, "", &ValidationError{Field: "body", Reason: "content is not a recognized image format"}
	}
	return data, format, nil
}

// decodeDataURL decodes a base64 data URI, applying the same size and
// format checks as a remote download.
func (f *Fetcher) decodeDataURL(url string) ([]byte, string, error) {
	_, encoded, found := strings.Cut(url, ";base64,")
	if !found {
		return nil, "", &ValidationError{Field: "url", Reason: "data URI is not base64 encoded"}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", &ValidationError{Field: "url", Reason: fmt.Sprintf("invalid base64 payload: %v", err)}
	}
	if int64(len(data)) > f.maxSize {
		return nil, "", &ValidationError{
			Field:  "body",
			Reason: fmt.Sprintf("body exceeds size limit %d", f.maxSize),
		}
	}

	format := DetectImageFormat(data)
	if format == "" {
		return nil, "", &ValidationError{Field: "body", Reason: "content is not a recognized image format"}
	}
	return data, format, nil
}

// EncodeDataURL wraps raw image bytes in a base64 data URI so they can
// travel through URL-shaped cover fields.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DetectImageFormat sniffs the image MIME type from leading magic bytes.
// Returns "" when the data is not a recognized image.
func DetectImageFormat(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return "image/png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return ""
	}
}

// FetchResult is one outcome from FetchBatch, in input order.
type FetchResult struct {
	URL    string
	Data   []byte
	Format string
	Err    error
}

// FetchBatch downloads several URLs with bounded concurrency. Failures
// are reported per URL, never aborting the batch.
func (f *Fetcher) FetchBatch(ctx context.Context, urls []string) []FetchResult {
	results := make([]FetchResult, len(urls))
	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			data, format, err := f.Fetch(ctx, url)
			results[i] = FetchResult{URL: url, Data: data, Format: format, Err: err}
		}(i, url)
	}
	wg.Wait()
	return results
}

// DownloadAndSave fetches one URL and stores it through the manager.
// Returns nil, nil when the URL is empty.
func (f *Fetcher) DownloadAndSave(ctx context.Context, manager *Manager, url string, entityType EntityType, entityID uuid.UUID, assetType AssetType, source string) (*AssetResponse, error) {
	if url == "" {
		return nil, nil
	}
	data, format, err := f.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	response, err := manager.SaveAsset(&AssetRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Type:       assetType,
		Source:     source,
		Data:       data,
		Format:     format,
		Preferred:  true,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Saved %s/%s asset for %s %s from %s (%dx%d)",
		entityType, assetType, entityType, entityID, source, response.Width, response.Height)
	return response, nil
}
