package utils

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/setanarut/backdrop"
	_ "golang.org/x/image/webp"
)

// ReadImage decodes the image at path, honoring EXIF orientation.
func ReadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, backdrop.ErrSamplingUnavailable)
	}
	return img, nil
}

// SaveImage encodes img in the format implied by the file extension.
func SaveImage(img image.Image, filename string) error {
	return imaging.Save(img, filename, imaging.JPEGQuality(90))
}

// SaveFrames writes frames as frame_000.png, frame_001.png, ... into dir.
func SaveFrames(frames []*image.RGBA, dir string) error {
	for i := range frames {
		name := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if err := SaveImage(frames[i], name); err != nil {
			return err
		}
	}
	return nil
}

// SavePalette writes one row of tileSize swatches per color set.
func SavePalette(sets []backdrop.ColorSet, tileSize int, filename string) error {
	if len(sets) == 0 {
		return fmt.Errorf("empty palette")
	}
	if tileSize <= 0 {
		tileSize = 64
	}

	w := tileSize * 3
	h := tileSize * len(sets)
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for row, set := range sets {
		for i, c := range set.Slots() {
			x0, y0 := i*tileSize, row*tileSize
			fill(img, image.Rect(x0, y0, x0+tileSize, y0+tileSize), c.RGBA())
		}
	}
	return SaveImage(img, filename)
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}
