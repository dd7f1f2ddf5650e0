package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3HandlePrefix marks handles of assets in the object store.
const S3HandlePrefix = "s3_"

const jpegContentType = "image/jpeg"

// ObjectClient is the subset of *minio.Client the backend uses.
type ObjectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// MinioParams configures an S3 compatible bucket.
type MinioParams struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string // base for object URLs; defaults to the endpoint
}

// MinioBackend stores assets as {eventID}/{file} and
// {eventID}/thumbnails/{file} objects.
type MinioBackend struct {
	client    ObjectClient
	bucket    string
	publicURL string
}

// NewMinioBackend dials the object store described by p.
func NewMinioBackend(p MinioParams) (*MinioBackend, error) {
	client, err := minio.New(p.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(p.AccessKey, p.SecretKey, ""),
		Secure: p.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client for %s: %w", p.Endpoint, err)
	}
	publicURL := p.PublicURL
	if publicURL == "" {
		scheme := "http"
		if p.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, p.Endpoint, p.Bucket)
	}
	return NewMinioBackendWithClient(client, p.Bucket, publicURL), nil
}

// NewMinioBackendWithClient wraps an existing client.
func NewMinioBackendWithClient(client ObjectClient, bucket, publicURL string) *MinioBackend {
	if client == nil {
		panic("ObjectClient cannot be nil for MinioBackend")
	}
	return &MinioBackend{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

// Name implements Backend.
func (b *MinioBackend) Name() string { return "s3" }

// EnsureBucket creates the bucket when it does not exist yet.
func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("storage: check bucket %s: %w", b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: create bucket %s: %w", b.bucket, err)
	}
	return nil
}

// Owns implements Backend.
func (b *MinioBackend) Owns(handle string) bool {
	return strings.HasPrefix(handle, S3HandlePrefix)
}

// Put implements Backend.
func (b *MinioBackend) Put(ctx context.Context, eventID, fileName string, main, thumb []byte) (StoredAsset, error) {
	mainKey := eventID + "/" + fileName
	thumbKey := eventID + "/" + thumbnailsDir + "/" + fileName

	opts := minio.PutObjectOptions{ContentType: jpegContentType}
	if _, err := b.client.PutObject(ctx, b.bucket, mainKey, bytes.NewReader(main), int64(len(main)), opts); err != nil {
		return StoredAsset{}, fmt.Errorf("storage: put %s: %w", mainKey, err)
	}
	if _, err := b.client.PutObject(ctx, b.bucket, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), opts); err != nil {
		_ = b.client.RemoveObject(ctx, b.bucket, mainKey, minio.RemoveObjectOptions{})
		return StoredAsset{}, fmt.Errorf("storage: put %s: %w", thumbKey, err)
	}

	return StoredAsset{
		URL:          b.objectURL(mainKey),
		ThumbnailURL: b.objectURL(thumbKey),
		Handle:       S3HandlePrefix + mainKey,
	}, nil
}

// PutFile implements Backend.
func (b *MinioBackend) PutFile(ctx context.Context, dir, fileName string, data []byte, contentType string) (string, error) {
	key := dir + "/" + fileName
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return "", fmt.Errorf("storage: put %s: %w", key, err)
	}
	return b.objectURL(key), nil
}

// Remove implements Backend.
func (b *MinioBackend) Remove(ctx context.Context, handle string) error {
	mainKey := strings.TrimPrefix(handle, S3HandlePrefix)
	i := strings.Index(mainKey, "/")
	if mainKey == handle || i <= 0 || i == len(mainKey)-1 {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	thumbKey := mainKey[:i] + "/" + thumbnailsDir + "/" + mainKey[i+1:]

	for _, key := range []string{mainKey, thumbKey} {
		err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return fmt.Errorf("storage: remove %s: %w", key, err)
		}
	}
	return nil
}

func (b *MinioBackend) objectURL(key string) string {
	return b.publicURL + "/" + (&url.URL{Path: key}).EscapedPath()
}
