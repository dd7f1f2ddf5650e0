package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"snaplive/internal/domain"
	"snaplive/internal/hub"
	"snaplive/internal/repository"
)

// Per-file failure reasons reported next to moderation rejections.
const (
	ReasonProcessingFailed = "the image could not be processed"
	ReasonStorageFailed    = "the image could not be stored"
)

// UploadConfig bounds guest uploads.
type UploadConfig struct {
	MaxFiles    int
	MaxFileSize int64
	GracePeriod time.Duration // uploads accepted until the end of the day of EventDate+GracePeriod
	CPUWorkers  int64         // concurrent image jobs in the process
	Location    *time.Location
	Now         func() time.Time // defaults to time.Now

	// CPU is the slot pool shared with other image work such as moderation
	// preprocessing. Nil creates one of CPUWorkers slots.
	CPU *semaphore.Weighted
}

// DefaultUploadConfig returns 5 files of at most 10MiB, a 24h grace period
// and one CPU worker per core.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxFiles:    5,
		MaxFileSize: 10 << 20,
		GracePeriod: 24 * time.Hour,
		CPUWorkers:  int64(runtime.NumCPU()),
		Location:    time.Local,
		Now:         time.Now,
	}
}

// UploadFile is one file of a batch.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadRequest is one guest submission.
type UploadRequest struct {
	EventSlug    string
	UploaderName string
	Files        []UploadFile
}

// RejectedFile explains why a file of the batch was not published.
type RejectedFile struct {
	FileName string `json:"filename"`
	Reason   string `json:"reason"`
}

// UploadResult lists the outcome of every file. It is returned together with
// ErrAllRejected so callers can report the reasons.
type UploadResult struct {
	Photos   []domain.PhotoSummary `json:"photos"`
	Rejected []RejectedFile        `json:"rejectedPhotos,omitempty"`
}

// UploadService runs the guest upload pipeline: screening, transcoding,
// storage, persistence and broadcast, one file after the other.
type UploadService struct {
	eventRepo   repository.EventRepository
	photoRepo   repository.PhotoRepository
	screener    ContentScreener
	transcoder  ImageTranscoder
	store       AssetStore
	broadcaster Broadcaster
	cfg         UploadConfig
	cpu         *semaphore.Weighted
	now         func() time.Time
	log         *logrus.Entry
}

// NewUploadService creates an UploadService. Zero config fields take the
// defaults.
func NewUploadService(
	eventRepo repository.EventRepository,
	photoRepo repository.PhotoRepository,
	screener ContentScreener,
	transcoder ImageTranscoder,
	store AssetStore,
	broadcaster Broadcaster,
	cfg UploadConfig,
) *UploadService {
	if eventRepo == nil {
		panic("EventRepository cannot be nil for UploadService")
	}
	if photoRepo == nil {
		panic("PhotoRepository cannot be nil for UploadService")
	}
	if screener == nil {
		panic("ContentScreener cannot be nil for UploadService")
	}
	if transcoder == nil {
		panic("ImageTranscoder cannot be nil for UploadService")
	}
	if store == nil {
		panic("AssetStore cannot be nil for UploadService")
	}
	if broadcaster == nil {
		panic("Broadcaster cannot be nil for UploadService")
	}
	def := DefaultUploadConfig()
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = def.MaxFiles
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = def.GracePeriod
	}
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = def.CPUWorkers
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	cpu := cfg.CPU
	if cpu == nil {
		cpu = semaphore.NewWeighted(cfg.CPUWorkers)
	}
	return &UploadService{
		eventRepo:   eventRepo,
		photoRepo:   photoRepo,
		screener:    screener,
		transcoder:  transcoder,
		store:       store,
		broadcaster: broadcaster,
		cfg:         cfg,
		cpu:         cpu,
		now:         cfg.Now,
		log:         logrus.WithField("component", "upload_service"),
	}
}

// Config returns the effective configuration.
func (s *UploadService) Config() UploadConfig { return s.cfg }

// Upload processes a batch. The event gate and batch validation run before
// any file is touched; after that each file succeeds or fails on its own.
func (s *UploadService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	logCtx := s.log.WithFields(logrus.Fields{"event_slug": req.EventSlug, "files": len(req.Files)})

	event, err := s.eligibleEvent(ctx, req.EventSlug)
	if err != nil {
		logCtx.WithError(err).Info("Upload refused by event gate")
		return nil, err
	}
	logCtx = logCtx.WithField("event_id", event.ID)

	if err := s.validateBatch(req.Files); err != nil {
		logCtx.WithError(err).Info("Upload batch rejected")
		return nil, err
	}

	// The batch finishes even if the guest goes away mid-request.
	ctx = context.WithoutCancel(ctx)
	uploader := domain.NormalizeUploaderName(req.UploaderName)

	result := &UploadResult{Photos: make([]domain.PhotoSummary, 0, len(req.Files))}
	for i, file := range req.Files {
		fileLog := logCtx.WithFields(logrus.Fields{"file_index": i, "file_name": file.Name})

		photo, reason, err := s.processFile(ctx, fileLog, event, uploader, file)
		if err != nil {
			return result, err
		}
		if photo == nil {
			result.Rejected = append(result.Rejected, RejectedFile{FileName: file.Name, Reason: reason})
			continue
		}

		summary := photo.Summary(event.Slug)
		result.Photos = append(result.Photos, summary)
		bestEffort(fileLog, "broadcast new-photo", func() error {
			_, err := s.broadcaster.Broadcast(event.Slug, hub.MessageNewPhoto, summary)
			return err
		})
	}

	logCtx.WithFields(logrus.Fields{"accepted": len(result.Photos), "rejected": len(result.Rejected)}).Info("Upload batch processed")
	if len(result.Photos) == 0 {
		return result, ErrAllRejected
	}
	return result, nil
}

// eligibleEvent returns the event if it exists, is active and still inside
// its upload window.
func (s *UploadService) eligibleEvent(ctx context.Context, slug string) (*domain.Event, error) {
	event, err := s.eventRepo.FindBySlug(ctx, slug)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.WithError(err).WithField("event_slug", slug).Error("Failed to load event")
		}
		return nil, mapRepoError(err, ErrEventNotFound)
	}
	if !event.IsActive {
		return nil, ErrEventNotFound
	}
	if !event.AcceptsUploadsAt(s.now().In(s.cfg.Location), s.cfg.GracePeriod) {
		return nil, ErrEventExpired
	}
	return event, nil
}

func (s *UploadService) validateBatch(files []UploadFile) error {
	if len(files) == 0 {
		return ErrNoFiles
	}
	if len(files) > s.cfg.MaxFiles {
		return fmt.Errorf("%w: at most %d per upload", ErrTooManyFiles, s.cfg.MaxFiles)
	}
	for _, f := range files {
		if int64(len(f.Data)) > s.cfg.MaxFileSize {
			return fmt.Errorf("%w: %s is larger than %d bytes", ErrUnsupportedFile, f.Name, s.cfg.MaxFileSize)
		}
		mtype := mimetype.Detect(f.Data)
		if !strings.HasPrefix(mtype.String(), "image/") {
			return fmt.Errorf("%w: %s is %s, only images are allowed", ErrUnsupportedFile, f.Name, mtype.String())
		}
	}
	return nil
}

// processFile runs one file through the pipeline. A nil photo with a reason
// is a per-file rejection; a non-nil error aborts the batch. Only the
// transcode holds a CPU slot here; the screener bounds its own local work.
func (s *UploadService) processFile(ctx context.Context, log *logrus.Entry, event *domain.Event, uploader string, file UploadFile) (*domain.Photo, string, error) {
	verdict := s.screener.CheckImage(ctx, file.Data)
	if !verdict.Safe {
		log.WithField("score", verdict.Score).Info("File rejected by moderation")
		return nil, verdict.Reason, nil
	}

	if err := s.cpu.Acquire(ctx, 1); err != nil {
		return nil, "", fmt.Errorf("%w: acquire cpu slot: %v", ErrInternalServer, err)
	}
	rendered, err := s.transcoder.Transcode(file.Data)
	s.cpu.Release(1)
	if err != nil {
		log.WithError(err).Warn("Failed to transcode file")
		return nil, ReasonProcessingFailed, nil
	}

	asset, err := s.store.Store(ctx, rendered.Main, rendered.Thumbnail, event.ID)
	if err != nil {
		log.WithError(err).Error("Failed to store file")
		return nil, ReasonStorageFailed, nil
	}

	photo := &domain.Photo{
		ID:           newID(),
		EventID:      event.ID,
		URL:          asset.URL,
		ThumbnailURL: asset.ThumbnailURL,
		PublicID:     asset.Handle,
		UploaderName: uploader,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.photoRepo.Create(ctx, photo); err != nil {
		log.WithError(err).Error("Failed to persist photo, aborting batch")
		bestEffort(log, "delete orphaned asset", func() error {
			return s.store.Delete(ctx, asset.Handle)
		})
		return nil, "", ErrInternalServer
	}
	log.WithField("photo_id", photo.ID).Info("Photo published")
	return photo, "", nil
}
