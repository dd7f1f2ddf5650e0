package moderation

import (
	"context"
	"image"
)

// Prediction is the probability the model assigns to one class.
type Prediction struct {
	ClassName   string  `json:"className"`
	Probability float64 `json:"probability"`
}

// Model classifies an already preprocessed, opaque, square image.
type Model interface {
	Classify(ctx context.Context, img image.Image) ([]Prediction, error)
}

// ModelLoader produces a ready Model. Loading may be slow and may fail; the
// Filter calls it lazily and at most once at a time.
type ModelLoader interface {
	Load(ctx context.Context) (Model, error)
}

// LoaderFunc adapts a function to ModelLoader.
type LoaderFunc func(ctx context.Context) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Model, error) { return f(ctx) }
