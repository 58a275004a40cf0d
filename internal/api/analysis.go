package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"qrguard/internal/featureflags"
	"qrguard/internal/gateway"
	"qrguard/internal/imageprep"
	"qrguard/internal/models"
)

// AnalyzeURL asks the backend to classify a URL decoded from a QR code.
func (c *Client) AnalyzeURL(ctx context.Context, raw string) (*models.AnalysisRecord, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalid("url is required")
	}
	var out models.AnalysisRecord
	if err := c.gw.Post(ctx, "/api/analysis/url", models.URLAnalysisRequest{URL: raw}, &out); err != nil {
		return nil, fmt.Errorf("analyze url: %w", err)
	}
	return &out, nil
}

// AnalyzeImage normalizes a QR photo to PNG and uploads it for analysis.
func (c *Client) AnalyzeImage(ctx context.Context, filename string, r io.Reader) (*models.AnalysisRecord, error) {
	if !c.enabled(featureflags.ImageAnalysis) {
		return nil, fmt.Errorf("analyze image: %w", ErrFeatureDisabled)
	}
	img, err := imageprep.Normalize(filename, r, c.maxEdge)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	form := &gateway.Form{}
	form.Attach(gateway.File{Field: "file", Name: img.Filename, ContentType: img.ContentType, Content: bytes.NewReader(img.Data)})

	var out models.AnalysisRecord
	if err := c.gw.Upload(ctx, http.MethodPost, "/api/analysis/image", form, &out); err != nil {
		return nil, fmt.Errorf("analyze image: %w", err)
	}
	return &out, nil
}

// History lists the caller's past analyses, newest first.
func (c *Client) History(ctx context.Context, page, size int) (*models.Page[models.AnalysisRecord], error) {
	page, size = normalizePage(page, size)
	var out models.Page[models.AnalysisRecord]
	q := url.Values{"page": {strconv.Itoa(page)}, "size": {strconv.Itoa(size)}}
	if err := c.gw.Get(ctx, "/api/analysis/history", q, &out); err != nil {
		return nil, c.identityBound(ctx, "fetch history", err)
	}
	return &out, nil
}

// GetAnalysis fetches one of the caller's analyses.
func (c *Client) GetAnalysis(ctx context.Context, id uint) (*models.AnalysisRecord, error) {
	var out models.AnalysisRecord
	if err := c.gw.Get(ctx, "/api/analysis/"+itoa(id), nil, &out); err != nil {
		return nil, c.identityBound(ctx, "fetch analysis", err)
	}
	return &out, nil
}

// DeleteAnalysis removes one of the caller's analyses.
func (c *Client) DeleteAnalysis(ctx context.Context, id uint) error {
	return c.identityBound(ctx, "delete analysis", c.gw.Delete(ctx, "/api/analysis/"+itoa(id), nil))
}

// Page size bounds for listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	return page, min(size, MaxPageSize)
}
