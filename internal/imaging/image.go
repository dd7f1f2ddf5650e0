// Package imaging decodes guest uploads and renders the gallery and thumbnail
// variants stored for every accepted photo.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for corrupt input or formats without a
// registered decoder.
var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// DefaultMaxPixels bounds the decoded canvas to protect against
// decompression bombs.
const DefaultMaxPixels = 50_000_000

// Decode decodes buf with any registered decoder. The header is inspected
// first so that oversized canvases are refused before allocation.
func Decode(buf []byte, maxPixels int) (image.Image, string, error) {
	if len(buf) == 0 {
		return nil, "", fmt.Errorf("%w: empty buffer", ErrUnsupportedImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(buf))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if maxPixels > 0 && cfg.Width*cfg.Height > maxPixels {
		return nil, format, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrUnsupportedImage, cfg.Width, cfg.Height, maxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, format, fmt.Errorf("%w: empty canvas", ErrUnsupportedImage)
	}
	return img, format, nil
}

// Cover scales img so that it covers a w×h box and crops the centre.
func Cover(img image.Image, w, h uint) image.Image {
	b := img.Bounds()
	sw, sh := float64(b.Dx()), float64(b.Dy())
	scale := float64(w) / sw
	if s := float64(h) / sh; s > scale {
		scale = s
	}
	nw := uint(sw*scale + 0.5)
	nh := uint(sh*scale + 0.5)
	if nw < w {
		nw = w
	}
	if nh < h {
		nh = h
	}
	scaled := resize.Resize(nw, nh, img, resize.Lanczos3)

	sb := scaled.Bounds()
	offset := image.Pt(sb.Min.X+(sb.Dx()-int(w))/2, sb.Min.Y+(sb.Dy()-int(h))/2)
	dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	draw.Draw(dst, dst.Bounds(), scaled, offset, draw.Src)
	return dst
}

// Fit scales img down so that neither edge exceeds max. Smaller images are
// returned unchanged.
func Fit(img image.Image, max uint) image.Image {
	return resize.Thumbnail(max, max, img, resize.Lanczos3)
}

// Flatten composites img over an opaque white background, dropping alpha.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
