package moderation

import (
	"context"
	"fmt"
	"image"

	"snaplive/internal/imaging"
)

// preprocess decodes buf and produces the square, opaque model input.
func (f *Filter) preprocess(buf []byte) (image.Image, error) {
	img, _, err := imaging.Decode(buf, imaging.DefaultMaxPixels)
	if err != nil {
		return nil, err
	}
	size := f.cfg.InputSize
	return imaging.Flatten(imaging.Cover(img, size, size)), nil
}

// preprocessBounded runs preprocess inside a CPU slot when a pool is set.
func (f *Filter) preprocessBounded(ctx context.Context, buf []byte) (image.Image, error) {
	if f.cfg.CPU == nil {
		return f.preprocess(buf)
	}
	if err := f.cfg.CPU.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("moderation: acquire cpu slot: %w", err)
	}
	defer f.cfg.CPU.Release(1)
	return f.preprocess(buf)
}
