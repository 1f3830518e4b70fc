package utils

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/setanarut/backdrop"
	"golang.org/x/image/webp"
)

// maxImageBytes caps a single image download.
const maxImageBytes = 32 << 20

// HTTPSource fetches images by URL. Identities are absolute URLs.
type HTTPSource struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPSource() *HTTPSource {
	return &HTTPSource{
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: "backdrop/1.0",
	}
}

// Load downloads and decodes the image at id. Every failure wraps
// backdrop.ErrSamplingUnavailable: transport errors, a refused request
// (401/403, the equivalent of a cross-origin denial), other non-2xx
// statuses and undecodable bodies. Transport errors keep their cause, so a
// cancelled ctx still matches context.Canceled.
func (s *HTTPSource) Load(ctx context.Context, id backdrop.ImageID) (image.Image, error) {
	body, err := s.fetch(ctx, string(id))
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", id, err, backdrop.ErrSamplingUnavailable)
	}
	return img, nil
}

func (s *HTTPSource) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", url, err, backdrop.ErrSamplingUnavailable)
	}
	req.Header.Set("Accept", "image/webp,image/png,image/jpeg,image/gif,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, br")
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", err, backdrop.ErrSamplingUnavailable)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: access denied (%s): %w", url, resp.Status, backdrop.ErrSamplingUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%s: unexpected status %s: %w", url, resp.Status, backdrop.ErrSamplingUnavailable)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w: %w", url, err, backdrop.ErrSamplingUnavailable)
	}
	return decompress(raw, resp.Header.Get("Content-Encoding"))
}

// decompress undoes gzip or brotli content encoding.
func decompress(body []byte, encoding string) ([]byte, error) {
	var r io.Reader
	switch {
	case len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b:
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case strings.EqualFold(strings.TrimSpace(encoding), "br"):
		r = brotli.NewReader(bytes.NewReader(body))
	default:
		return body, nil
	}
	out, err := io.ReadAll(io.LimitReader(r, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decompress %q: %w", encoding, err)
	}
	return out, nil
}

// detectImageFormat reads the magic bytes and returns the image format.
func detectImageFormat(data []byte) (string, error) {
	if len(data) < 12 {
		return "", errors.New("data too short to determine format")
	}
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "jpeg", nil
	}
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "png", nil
	}
	if string(data[0:6]) == "GIF87a" || string(data[0:6]) == "GIF89a" {
		return "gif", nil
	}
	if string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return "webp", nil
	}
	return "", errors.New("unknown image format")
}

func decodeImage(data []byte) (image.Image, error) {
	format, err := detectImageFormat(data)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)
	switch format {
	case "jpeg":
		return jpeg.Decode(r)
	case "png":
		return png.Decode(r)
	case "gif":
		return gif.Decode(r)
	default:
		return webp.Decode(r)
	}
}
