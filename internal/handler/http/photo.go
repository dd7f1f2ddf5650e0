package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"snaplive/internal/middleware"
	"snaplive/internal/service"
)

// PhotoUploader is implemented by *service.UploadService.
type PhotoUploader interface {
	Upload(ctx context.Context, req service.UploadRequest) (*service.UploadResult, error)
}

// PhotoManager is implemented by *service.PhotoService.
type PhotoManager interface {
	List(ctx context.Context, slug string, page, limit int) (*service.PhotoPage, error)
	Delete(ctx context.Context, callerID uint, photoID string) error
}

// PhotoHandler serves the guest upload and gallery routes.
type PhotoHandler struct {
	uploads     PhotoUploader
	photos      PhotoManager
	maxFiles    int
	maxFileSize int64
}

func NewPhotoHandler(uploads PhotoUploader, photos PhotoManager, maxFiles int, maxFileSize int64) *PhotoHandler {
	if uploads == nil || photos == nil {
		panic("PhotoHandler requires an uploader and a photo manager")
	}
	return &PhotoHandler{uploads: uploads, photos: photos, maxFiles: maxFiles, maxFileSize: maxFileSize}
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Message  string                 `json:"message"`
	Photos   interface{}            `json:"photos"`
	Rejected []service.RejectedFile `json:"rejectedPhotos,omitempty"`
}

// Upload handles POST /api/photos/:eventSlug (multipart field "photos").
func (h *PhotoHandler) Upload(c *gin.Context) {
	slug := c.Param("eventSlug")
	logCtx := logrus.WithField("event_slug", slug)

	// Headroom for the multipart framing and the uploader name.
	limit := int64(h.maxFiles+1)*h.maxFileSize + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	files, err := h.readFiles(c)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(c, http.StatusRequestEntityTooLarge, "upload is too large")
			return
		}
		logCtx.WithError(err).Warn("Handler.Upload: Failed to read multipart body")
		ErrorResponse(c, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	result, err := h.uploads.Upload(c.Request.Context(), service.UploadRequest{
		EventSlug:    slug,
		UploaderName: c.PostForm("uploaderName"),
		Files:        files,
	})
	if errors.Is(err, service.ErrAllRejected) && result != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "rejectedPhotos": result.Rejected})
		return
	}
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	msg := fmt.Sprintf("%d photo(s) uploaded successfully", len(result.Photos))
	if n := len(result.Rejected); n > 0 {
		msg += fmt.Sprintf(". %d photo(s) rejected", n)
	}
	SuccessResponse(c, http.StatusCreated, UploadResponse{Message: msg, Photos: result.Photos, Rejected: result.Rejected})
}

// readFiles loads the "photos" parts. A request without a multipart body
// yields no files so the service can answer with the right status.
func (h *PhotoHandler) readFiles(c *gin.Context) ([]service.UploadFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, nil
		}
		return nil, err
	}
	headers := form.File["photos"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh, h.maxFileSize)
		if err != nil {
			return nil, err
		}
		files = append(files, service.UploadFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

// readPart reads at most limit+1 bytes so oversize files are still detected
// by the service without buffering them fully.
func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read part %s: %w", fh.Filename, err)
	}
	return data, nil
}

// List handles GET /api/photos/:eventSlug?page=&limit=.
func (h *PhotoHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultPageLimit)))

	result, err := h.photos.List(c.Request.Context(), c.Param("eventSlug"), page, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// Delete handles DELETE /api/photos/:photoId for the event owner.
func (h *PhotoHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return
	}
	if err := h.photos.Delete(c.Request.Context(), userID, c.Param("photoId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Photo deleted"})
}
