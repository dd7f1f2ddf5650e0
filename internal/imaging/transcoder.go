package imaging

import (
	"fmt"
)

// Options controls the rendered variants.
type Options struct {
	MaxDimension     uint // long edge bound of the gallery image
	MainQuality      int
	ThumbnailSize    uint // edge of the square thumbnail
	ThumbnailQuality int
	MaxPixels        int
}

// DefaultOptions returns the gallery defaults: 1920px at q85, 400px square
// thumbnails at q70.
func DefaultOptions() Options {
	return Options{
		MaxDimension:     1920,
		MainQuality:      85,
		ThumbnailSize:    400,
		ThumbnailQuality: 70,
		MaxPixels:        DefaultMaxPixels,
	}
}

// Result holds both encoded variants of one upload.
type Result struct {
	Main      []byte
	Thumbnail []byte
	Width     int // of Main
	Height    int
}

// Transcoder turns arbitrary image uploads into JPEG gallery variants.
// It is stateless and safe for concurrent use.
type Transcoder struct {
	opts Options
}

// NewTranscoder fills zero fields of opts with defaults.
func NewTranscoder(opts Options) *Transcoder {
	def := DefaultOptions()
	if opts.MaxDimension == 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.MainQuality <= 0 || opts.MainQuality > 100 {
		opts.MainQuality = def.MainQuality
	}
	if opts.ThumbnailSize == 0 {
		opts.ThumbnailSize = def.ThumbnailSize
	}
	if opts.ThumbnailQuality <= 0 || opts.ThumbnailQuality > 100 {
		opts.ThumbnailQuality = def.ThumbnailQuality
	}
	if opts.MaxPixels == 0 {
		opts.MaxPixels = def.MaxPixels
	}
	return &Transcoder{opts: opts}
}

// Options returns the effective options.
func (t *Transcoder) Options() Options { return t.opts }

// Transcode renders the gallery image (aspect preserved, never upscaled) and
// the center-cropped square thumbnail. Errors wrap ErrUnsupportedImage when
// the input cannot be decoded.
func (t *Transcoder) Transcode(buf []byte) (*Result, error) {
	img, _, err := Decode(buf, t.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	flat := Flatten(img)

	gallery := Fit(flat, t.opts.MaxDimension)
	mainBytes, err := EncodeJPEG(gallery, t.opts.MainQuality)
	if err != nil {
		return nil, fmt.Errorf("main variant: %w", err)
	}

	thumb := Cover(flat, t.opts.ThumbnailSize, t.opts.ThumbnailSize)
	thumbBytes, err := EncodeJPEG(thumb, t.opts.ThumbnailQuality)
	if err != nil {
		return nil, fmt.Errorf("thumbnail variant: %w", err)
	}

	mb := gallery.Bounds()
	return &Result{
		Main:      mainBytes,
		Thumbnail: thumbBytes,
		Width:     mb.Dx(),
		Height:    mb.Dy(),
	}, nil
}
