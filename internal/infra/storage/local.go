package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalHandlePrefix marks handles of assets on the local disk.
const LocalHandlePrefix = "local_"

const thumbnailsDir = "thumbnails"

// LocalBackend writes assets below a directory that gin serves at /uploads:
// {dir}/{eventID}/{file} and {dir}/{eventID}/thumbnails/{file}.
type LocalBackend struct {
	dir     string
	baseURL string // public prefix of the /uploads route
}

// NewLocalBackend creates the upload directory if needed.
func NewLocalBackend(dir, baseURL string) (*LocalBackend, error) {
	if dir == "" {
		return nil, errors.New("storage: upload dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir %s: %w", dir, err)
	}
	return &LocalBackend{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Name implements Backend.
func (b *LocalBackend) Name() string { return "local" }

// Dir is the directory served at /uploads.
func (b *LocalBackend) Dir() string { return b.dir }

// Owns implements Backend.
func (b *LocalBackend) Owns(handle string) bool {
	return strings.HasPrefix(handle, LocalHandlePrefix)
}

// Put implements Backend.
func (b *LocalBackend) Put(ctx context.Context, eventID, fileName string, main, thumb []byte) (StoredAsset, error) {
	if err := checkSegment(eventID); err != nil {
		return StoredAsset{}, err
	}
	if err := checkSegment(fileName); err != nil {
		return StoredAsset{}, err
	}
	if err := ctx.Err(); err != nil {
		return StoredAsset{}, err
	}

	thumbDir := filepath.Join(b.dir, eventID, thumbnailsDir)
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return StoredAsset{}, fmt.Errorf("storage: create %s: %w", thumbDir, err)
	}
	mainPath := filepath.Join(b.dir, eventID, fileName)
	if err := os.WriteFile(mainPath, main, 0o644); err != nil {
		return StoredAsset{}, fmt.Errorf("storage: write %s: %w", mainPath, err)
	}
	thumbPath := filepath.Join(thumbDir, fileName)
	if err := os.WriteFile(thumbPath, thumb, 0o644); err != nil {
		_ = os.Remove(mainPath)
		return StoredAsset{}, fmt.Errorf("storage: write %s: %w", thumbPath, err)
	}

	return StoredAsset{
		URL:          fmt.Sprintf("%s/uploads/%s/%s", b.baseURL, eventID, fileName),
		ThumbnailURL: fmt.Sprintf("%s/uploads/%s/%s/%s", b.baseURL, eventID, thumbnailsDir, fileName),
		Handle:       LocalHandlePrefix + eventID + "_" + fileName,
	}, nil
}

// PutFile implements Backend.
func (b *LocalBackend) PutFile(ctx context.Context, dir, fileName string, data []byte, _ string) (string, error) {
	if err := checkSegment(dir); err != nil {
		return "", err
	}
	if err := checkSegment(fileName); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Join(b.dir, dir), 0o755); err != nil {
		return "", fmt.Errorf("storage: create %s: %w", dir, err)
	}
	path := filepath.Join(b.dir, dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", path, err)
	}
	return fmt.Sprintf("%s/uploads/%s/%s", b.baseURL, dir, fileName), nil
}

// Remove implements Backend.
func (b *LocalBackend) Remove(ctx context.Context, handle string) error {
	eventID, fileName, err := parseLocalHandle(handle)
	if err != nil {
		return err
	}
	for _, p := range []string{
		filepath.Join(b.dir, eventID, fileName),
		filepath.Join(b.dir, eventID, thumbnailsDir, fileName),
	} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: remove %s: %w", p, err)
		}
	}
	return nil
}

// parseLocalHandle splits local_{eventID}_{file}. Event ids are uuids and
// never contain an underscore.
func parseLocalHandle(handle string) (string, string, error) {
	rest := strings.TrimPrefix(handle, LocalHandlePrefix)
	if rest == handle {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownHandle, handle)
	}
	i := strings.Index(rest, "_")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("%w: malformed local handle %s", ErrUnknownHandle, handle)
	}
	eventID, fileName := rest[:i], rest[i+1:]
	if checkSegment(eventID) != nil || checkSegment(fileName) != nil {
		return "", "", fmt.Errorf("%w: malformed local handle %s", ErrUnknownHandle, handle)
	}
	return eventID, fileName, nil
}

func checkSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("storage: invalid path segment %q", s)
	}
	return nil
}
