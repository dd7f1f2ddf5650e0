// Package moderation screens uploads for explicit content before they are
// stored. Screening fails open: a broken classifier never blocks uploads.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"snaplive/internal/domain"
)

// RejectionReason is reported for files scored at or above the threshold.
const RejectionReason = "inappropriate content detected"

// DefaultExplicitLabels are the classes whose probabilities form the score.
var DefaultExplicitLabels = []string{"Porn", "Sexy", "Hentai"}

// Config tunes the filter.
type Config struct {
	Enabled        bool
	Threshold      float64
	ExplicitLabels []string
	InputSize      uint
	Timeout        time.Duration
	// CPU bounds the local decode and resize. The classifier call runs
	// outside of it. Nil means unbounded.
	CPU *semaphore.Weighted
}

// DefaultConfig returns an enabled filter with a 0.6 threshold over
// DefaultExplicitLabels at a 224px input size.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Threshold:      0.6,
		ExplicitLabels: DefaultExplicitLabels,
		InputSize:      224,
		Timeout:        10 * time.Second,
	}
}

// Filter is the process-wide content screen. Construct one per process and
// share it; the model is loaded on first use.
type Filter struct {
	cfg    Config
	loader ModelLoader
	log    *logrus.Entry

	group singleflight.Group
	mu    sync.RWMutex
	model Model
	loads atomic.Int64
}

// NewFilter creates a Filter. loader may be nil only when cfg.Enabled is false.
func NewFilter(cfg Config, loader ModelLoader) *Filter {
	if cfg.Enabled && loader == nil {
		panic("ModelLoader cannot be nil for an enabled moderation Filter")
	}
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if len(cfg.ExplicitLabels) == 0 {
		cfg.ExplicitLabels = def.ExplicitLabels
	}
	if cfg.InputSize == 0 {
		cfg.InputSize = def.InputSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Filter{
		cfg:    cfg,
		loader: loader,
		log:    logrus.WithField("component", "moderation"),
	}
}

// Enabled reports whether screening is active.
func (f *Filter) Enabled() bool { return f.cfg.Enabled }

// Loads returns how many times the model loader has been invoked.
func (f *Filter) Loads() int64 { return f.loads.Load() }

// Preload warms the model so the first upload does not pay for it.
func (f *Filter) Preload(ctx context.Context) error {
	if !f.cfg.Enabled {
		return nil
	}
	_, err := f.getModel(ctx)
	return err
}

// getModel returns the cached model or performs the single in-flight load
// shared by all concurrent callers. Failures are not cached.
func (f *Filter) getModel(ctx context.Context) (Model, error) {
	f.mu.RLock()
	m := f.model
	f.mu.RUnlock()
	if m != nil {
		return m, nil
	}

	ch := f.group.DoChan("model", func() (interface{}, error) {
		f.mu.RLock()
		cached := f.model
		f.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		// The load outlives the first caller's request.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.cfg.Timeout)
		defer cancel()

		f.loads.Add(1)
		f.log.Info("Loading moderation model")
		start := time.Now()
		loaded, err := f.loader.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		if loaded == nil {
			return nil, errors.New("moderation: loader returned nil model")
		}

		f.mu.Lock()
		f.model = loaded
		f.mu.Unlock()
		f.log.WithField("took_ms", time.Since(start).Milliseconds()).Info("Moderation model loaded")
		return loaded, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("moderation: load model: %w", res.Err)
		}
		return res.Val.(Model), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckImage screens one uploaded image. It never returns an unsafe verdict
// because of its own failure.
func (f *Filter) CheckImage(ctx context.Context, buf []byte) domain.ModerationVerdict {
	if !f.cfg.Enabled {
		return domain.ModerationVerdict{Safe: true}
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	input, err := f.preprocessBounded(ctx, buf)
	if err != nil {
		return f.failOpen(err)
	}

	model, err := f.getModel(ctx)
	if err != nil {
		return f.failOpen(err)
	}

	predictions, err := model.Classify(ctx, input)
	if err != nil {
		return f.failOpen(fmt.Errorf("moderation: classify: %w", err))
	}

	scores := make(map[string]float64, len(predictions))
	for _, p := range predictions {
		scores[p.ClassName] = p.Probability
	}
	var score float64
	for _, label := range f.cfg.ExplicitLabels {
		score += scores[label]
	}

	verdict := domain.ModerationVerdict{Safe: true, Scores: scores, Score: score}
	if score >= f.cfg.Threshold {
		verdict.Safe = false
		verdict.Reason = RejectionReason
		f.log.WithField("score", score).Info("Image rejected by moderation")
	}
	return verdict
}

func (f *Filter) failOpen(err error) domain.ModerationVerdict {
	f.log.WithError(err).Warn("Moderation check failed, allowing image")
	return domain.ModerationVerdict{Safe: true, Err: err}
}
