package backdrop

import "errors"

var (
	// ErrSamplingUnavailable is returned when an image's pixels cannot be read,
	// e.g. a nil or empty image, an undecodable body or a denied fetch.
	ErrSamplingUnavailable = errors.New("pixel sampling unavailable")

	// ErrInsufficientPalette is returned when fewer than three color buckets
	// survive filtering.
	ErrInsufficientPalette = errors.New("too few distinct colors")

	// ErrEmptyVisibleSet is returned when no visible image has a color set.
	ErrEmptyVisibleSet = errors.New("no visible image with a color set")
)
