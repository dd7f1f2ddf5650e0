package moderation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"
)

type fakeModel struct {
	predictions []Prediction
	err         error
	calls       atomic.Int64
	lastSize    image.Rectangle
	mu          sync.Mutex
}

func (m *fakeModel) Classify(_ context.Context, img image.Image) ([]Prediction, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.lastSize = img.Bounds()
	m.mu.Unlock()
	return m.predictions, m.err
}

func loaderFor(m Model) LoaderFunc {
	return func(context.Context) (Model, error) { return m, nil }
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 90, 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCheckImage_ScoreSumsExplicitLabels(t *testing.T) {
	model := &fakeModel{predictions: []Prediction{
		{ClassName: "Neutral", Probability: 0.35},
		{ClassName: "Porn", Probability: 0.3},
		{ClassName: "Sexy", Probability: 0.2},
		{ClassName: "Hentai", Probability: 0.1},
		{ClassName: "Drawing", Probability: 0.05},
	}}
	f := NewFilter(DefaultConfig(), loaderFor(model))

	v := f.CheckImage(context.Background(), testPNG(t, 640, 480))
	assert.False(t, v.Safe)
	assert.Equal(t, RejectionReason, v.Reason)
	assert.InDelta(t, 0.6, v.Score, 1e-9)
	assert.NoError(t, v.Err)
	assert.Len(t, v.Scores, 5)
	assert.Equal(t, image.Rect(0, 0, 224, 224), model.lastSize)
}

func TestCheckImage_BelowThresholdIsSafe(t *testing.T) {
	model := &fakeModel{predictions: []Prediction{
		{ClassName: "Neutral", Probability: 0.45},
		{ClassName: "Sexy", Probability: 0.55},
	}}
	f := NewFilter(DefaultConfig(), loaderFor(model))

	v := f.CheckImage(context.Background(), testPNG(t, 50, 80))
	assert.True(t, v.Safe)
	assert.Empty(t, v.Reason)
	assert.InDelta(t, 0.55, v.Score, 1e-9)
}

func TestCheckImage_FailsOpen(t *testing.T) {
	t.Run("classifier error", func(t *testing.T) {
		model := &fakeModel{err: errors.New("gpu on fire")}
		f := NewFilter(DefaultConfig(), loaderFor(model))
		v := f.CheckImage(context.Background(), testPNG(t, 10, 10))
		assert.True(t, v.Safe)
		assert.Error(t, v.Err)
	})

	t.Run("load error", func(t *testing.T) {
		f := NewFilter(DefaultConfig(), LoaderFunc(func(context.Context) (Model, error) {
			return nil, errors.New("model server down")
		}))
		v := f.CheckImage(context.Background(), testPNG(t, 10, 10))
		assert.True(t, v.Safe)
		assert.Error(t, v.Err)
	})

	t.Run("undecodable input", func(t *testing.T) {
		model := &fakeModel{}
		f := NewFilter(DefaultConfig(), loaderFor(model))
		v := f.CheckImage(context.Background(), []byte("garbage"))
		assert.True(t, v.Safe)
		assert.Error(t, v.Err)
		assert.Zero(t, model.calls.Load())
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 20 * time.Millisecond
		f := NewFilter(cfg, LoaderFunc(func(ctx context.Context) (Model, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
		v := f.CheckImage(context.Background(), testPNG(t, 10, 10))
		assert.True(t, v.Safe)
		assert.Error(t, v.Err)
	})
}

func TestCheckImage_ConcurrentFirstCallsLoadOnce(t *testing.T) {
	model := &fakeModel{predictions: []Prediction{{ClassName: "Neutral", Probability: 1}}}
	release := make(chan struct{})
	f := NewFilter(DefaultConfig(), LoaderFunc(func(context.Context) (Model, error) {
		<-release
		return model, nil
	}))

	const callers = 16
	img := testPNG(t, 32, 32)
	var wg sync.WaitGroup
	verdicts := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			verdicts[i] = f.CheckImage(context.Background(), img).Safe
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), f.Loads())
	assert.Equal(t, int64(callers), model.calls.Load())
	for _, safe := range verdicts {
		assert.True(t, safe)
	}
}

func TestCheckImage_FailedLoadIsRetried(t *testing.T) {
	model := &fakeModel{predictions: []Prediction{{ClassName: "Porn", Probability: 0.9}}}
	var attempts atomic.Int64
	f := NewFilter(DefaultConfig(), LoaderFunc(func(context.Context) (Model, error) {
		if attempts.Add(1) == 1 {
			return nil, errors.New("cold start")
		}
		return model, nil
	}))
	img := testPNG(t, 16, 16)

	first := f.CheckImage(context.Background(), img)
	assert.True(t, first.Safe)
	assert.Error(t, first.Err)

	second := f.CheckImage(context.Background(), img)
	assert.False(t, second.Safe)
	assert.Equal(t, int64(2), f.Loads())

	f.CheckImage(context.Background(), img)
	assert.Equal(t, int64(2), f.Loads())
}

func TestCheckImage_DisabledNeverLoads(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	f := NewFilter(cfg, nil)

	v := f.CheckImage(context.Background(), []byte("anything"))
	assert.True(t, v.Safe)
	assert.NoError(t, v.Err)
	assert.NoError(t, f.Preload(context.Background()))
	assert.Zero(t, f.Loads())
}

func TestPreload(t *testing.T) {
	model := &fakeModel{}
	f := NewFilter(DefaultConfig(), loaderFor(model))
	require.NoError(t, f.Preload(context.Background()))
	require.NoError(t, f.Preload(context.Background()))
	assert.Equal(t, int64(1), f.Loads())
}

func TestNewFilter_PanicsWithoutLoader(t *testing.T) {
	assert.Panics(t, func() { NewFilter(DefaultConfig(), nil) })
}

type slotProbeModel struct {
	cpu          *semaphore.Weighted
	slotWasFree  bool
	classifyCall int
}

func (m *slotProbeModel) Classify(context.Context, image.Image) ([]Prediction, error) {
	m.classifyCall++
	if m.cpu.TryAcquire(1) {
		m.slotWasFree = true
		m.cpu.Release(1)
	}
	return []Prediction{{ClassName: "Neutral", Probability: 1}}, nil
}

func TestCheckImage_ClassifyRunsOutsideCPUSlot(t *testing.T) {
	cpu := semaphore.NewWeighted(1)
	model := &slotProbeModel{cpu: cpu}
	cfg := DefaultConfig()
	cfg.CPU = cpu
	f := NewFilter(cfg, loaderFor(model))

	v := f.CheckImage(context.Background(), testPNG(t, 64, 64))
	assert.True(t, v.Safe)
	assert.NoError(t, v.Err)
	assert.Equal(t, 1, model.classifyCall)
	assert.True(t, model.slotWasFree, "the only CPU slot must be free during the classifier call")
}

func TestCheckImage_PreprocessWaitsForCPUSlot(t *testing.T) {
	cpu := semaphore.NewWeighted(1)
	require.True(t, cpu.TryAcquire(1))
	defer cpu.Release(1)

	model := &fakeModel{}
	cfg := DefaultConfig()
	cfg.CPU = cpu
	cfg.Timeout = 50 * time.Millisecond
	f := NewFilter(cfg, loaderFor(model))

	v := f.CheckImage(context.Background(), testPNG(t, 64, 64))
	assert.True(t, v.Safe, "fails open")
	assert.ErrorIs(t, v.Err, context.DeadlineExceeded)
	assert.Zero(t, model.calls.Load())
}
