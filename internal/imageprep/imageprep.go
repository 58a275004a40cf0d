// Package imageprep normalizes QR photos before upload: it accepts PNG,
// JPEG, GIF and WebP, caps the long edge and re-encodes as PNG.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// DefaultMaxEdge caps the longest side when no limit is configured.
const DefaultMaxEdge = 2048

// MaxUploadBytes bounds what Normalize will read.
const MaxUploadBytes = 10 << 20

// MaxPixels bounds the decoded canvas. Headers are checked before any pixel
// buffer is allocated.
const MaxPixels = 40_000_000

var (
	// ErrUnsupported is returned for content that is not an accepted image type.
	ErrUnsupported = errors.New("imageprep: unsupported image type")
	// ErrTooLarge is returned for input over MaxUploadBytes.
	ErrTooLarge = errors.New("imageprep: image too large")
	// ErrTooManyPixels is returned when the declared dimensions exceed MaxPixels.
	ErrTooManyPixels = errors.New("imageprep: image dimensions too large")
)

// Result is a normalized image.
type Result struct {
	Data         []byte
	Filename     string
	ContentType  string
	SourceFormat string
	Width        int
	Height       int
}

// Normalize decodes r, scales it so neither side exceeds maxEdge and encodes PNG.
// A non-positive maxEdge selects DefaultMaxEdge. The filename keeps its stem
// and gets a .png extension.
func Normalize(filename string, r io.Reader, maxEdge int) (*Result, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(raw) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	if !allowedMIME(http.DetectContentType(raw)) {
		return nil, ErrUnsupported
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	decoded, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	scaled := fit(decoded, maxEdge)
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	b := scaled.Bounds()
	return &Result{
		Data:         buf.Bytes(),
		Filename:     pngName(filename),
		ContentType:  "image/png",
		SourceFormat: format,
		Width:        b.Dx(),
		Height:       b.Dy(),
	}, nil
}

func fit(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxEdge && h <= maxEdge {
		return src
	}
	scale := float64(maxEdge) / float64(max(w, h))
	nw := max(int(float64(w)*scale), 1)
	nh := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

func allowedMIME(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

func pngName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}
