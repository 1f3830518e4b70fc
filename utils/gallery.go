package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/setanarut/backdrop"
)

// GalleryImage is one image of a gallery page.
type GalleryImage struct {
	ID    backdrop.ImageID
	Title string
}

// ParseGallery lists the images of an HTML gallery page in document order.
// Sources are resolved against base; duplicates and data: URLs are skipped.
func ParseGallery(r io.Reader, base *url.URL) ([]GalleryImage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse gallery: %w", err)
	}

	var out []GalleryImage
	seen := make(map[backdrop.ImageID]bool)
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			src, ok = s.Attr("data-src")
		}
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		ref, err := url.Parse(src)
		if err != nil {
			return
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		id := backdrop.ImageID(ref.String())
		if seen[id] {
			return
		}
		seen[id] = true
		title, _ := s.Attr("alt")
		out = append(out, GalleryImage{ID: id, Title: strings.TrimSpace(title)})
	})
	return out, nil
}

// FetchGallery downloads pageURL and parses it with ParseGallery.
func FetchGallery(ctx context.Context, client *http.Client, pageURL string) ([]GalleryImage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("gallery url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gallery %s: status %s", pageURL, resp.Status)
	}
	return ParseGallery(resp.Body, base)
}
