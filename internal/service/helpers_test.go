package service_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"snaplive/internal/domain"
	"snaplive/internal/imaging"
	"snaplive/internal/infra/storage"
)

// pngBytes returns a small valid PNG filled with c.
func pngBytes(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// scriptedScreener returns its verdicts in call order, safe once exhausted.
type scriptedScreener struct {
	mu       sync.Mutex
	verdicts []domain.ModerationVerdict
	calls    int
}

func (s *scriptedScreener) CheckImage(ctx context.Context, buf []byte) domain.ModerationVerdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.verdicts) == 0 {
		return domain.ModerationVerdict{Safe: true}
	}
	v := s.verdicts[0]
	s.verdicts = s.verdicts[1:]
	return v
}

func (s *scriptedScreener) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubTranscoder struct {
	err    error
	failOn int // 1-based call that fails, 0 for none
	calls  int
}

func (t *stubTranscoder) Transcode(buf []byte) (*imaging.Result, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	if t.failOn == t.calls {
		return nil, imaging.ErrUnsupportedImage
	}
	return &imaging.Result{Main: []byte("main"), Thumbnail: []byte("thumb"), Width: 8, Height: 8}, nil
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Store(ctx context.Context, main, thumb []byte, eventID string) (storage.StoredAsset, error) {
	args := m.Called(ctx, main, thumb, eventID)
	return args.Get(0).(storage.StoredAsset), args.Error(1)
}

func (m *mockStore) Delete(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

// filePublisher keeps published files in memory under a fixed base URL.
type filePublisher struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (p *filePublisher) StoreFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.files == nil {
		p.files = make(map[string][]byte)
	}
	p.files[dir+"/"+fileName] = data
	return "https://cdn.example.com/" + dir + "/" + fileName, nil
}

func (p *filePublisher) File(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[key]
	return data, ok
}

type sentMessage struct {
	Slug    string
	Type    string
	Payload interface{}
}

// recordingBroadcaster keeps every broadcast and optionally fails them.
type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
	// onSend runs before the message is recorded.
	onSend func(sentMessage)
}

func (b *recordingBroadcaster) Broadcast(slug, msgType string, payload interface{}) (int, error) {
	msg := sentMessage{Slug: slug, Type: msgType, Payload: payload}
	if b.onSend != nil {
		b.onSend(msg)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	if b.err != nil {
		return 0, b.err
	}
	return 1, nil
}

func (b *recordingBroadcaster) Sent() []sentMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentMessage(nil), b.sent...)
}

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) HasAvailablePayment(ctx context.Context, userID uint) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPayments) AttachToEvent(ctx context.Context, userID uint, eventID string) error {
	args := m.Called(ctx, userID, eventID)
	return args.Error(0)
}

type mockJanitor struct {
	mock.Mock
}

func (m *mockJanitor) ScheduleDelete(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}
