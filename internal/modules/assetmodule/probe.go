package assetmodule

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/chai2010/webp"

	"github.com/harmonia-media/harmonia/internal/logger"
)

// Dimensions are the pixel dimensions of a probed image. Known reports
// whether a probe actually determined them; a reachable but undecodable
// image yields Known=false with Reachable=true.
type Dimensions struct {
	Width     int
	Height    int
	Known     bool
	Reachable bool
}

// Area returns width*height, 0 when unknown.
func (d Dimensions) Area() int64 {
	if !d.Known {
		return 0
	}
	return int64(d.Width) * int64(d.Height)
}

// Prober determines remote image dimensions without downloading full
// files when it can avoid it.
type Prober struct {
	client    *http.Client
	userAgent string
}

const probePartialBytes = 50 * 1024

func NewProber(userAgent string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Prober{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// DimensionsFromBytes decodes image dimensions from in-memory data.
func DimensionsFromBytes(data []byte) (Dimensions, error) {
	dims, err := decodeConfig(bytes.NewReader(data), DetectImageFormat(data))
	if err != nil {
		return Dimensions{Reachable: true}, err
	}
	return dims, nil
}

// DimensionsFromFile decodes image dimensions from a stored file.
func DimensionsFromFile(path string) (Dimensions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return DimensionsFromBytes(data)
}

// DimensionsFromURL probes a remote image in three tiers: decode the
// header bytes from the streaming body, retry against a partial buffer
// when the streaming decode fails, and finally fall back to a HEAD
// request that only establishes reachability.
func (p *Prober) DimensionsFromURL(ctx context.Context, url string) Dimensions {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Dimensions{}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Dimensions{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Dimensions{}
	}

	partial, readErr := io.ReadAll(io.LimitReader(resp.Body, probePartialBytes))
	if readErr != nil && len(partial) == 0 {
		return p.headReachability(ctx, url)
	}

	format := DetectImageFormat(partial)
	if dims, err := decodeConfig(bytes.NewReader(partial), format); err == nil {
		return dims
	}

	logger.Debug("Partial probe could not decode %s, falling back to reachability check", url)
	return p.headReachability(ctx, url)
}

// headReachability issues a HEAD request; a 200 means the image exists
// even though its dimensions stay unknown.
func (p *Prober) headReachability(ctx context.Context, url string) Dimensions {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return Dimensions{}
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return Dimensions{}
	}
	defer resp.Body.Close()

	return Dimensions{Reachable: resp.StatusCode == http.StatusOK}
}

// decodeConfig reads dimensions from an image header. WebP needs its own
// decoder; the stdlib registry handles the rest.
func decodeConfig(r io.Reader, format string) (Dimensions, error) {
	if format == "image/webp" {
		cfg, err := webp.DecodeConfig(r)
		if err != nil {
			return Dimensions{Reachable: true}, err
		}
		return Dimensions{Width: cfg.Width, Height: cfg.Height, Known: true, Reachable: true}, nil
	}

	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return Dimensions{Reachable: true}, err
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height, Known: true, Reachable: true}, nil
}
