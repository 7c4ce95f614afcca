package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

// ImageUpload is a multipart image waiting to be stored.
type ImageUpload struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// imageUploader stores images in an object store and cleans up the ones they replace.
type imageUploader struct {
	store    storage.ObjectStore
	maxBytes int64
	logger   *zap.Logger
}

func (u imageUploader) put(ctx context.Context, prefix, owner string, upload ImageUpload) (storage.Object, error) {
	if u.store == nil {
		return storage.Object{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "image uploads are not configured")
	}
	if upload.Content == nil || upload.Size == 0 {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	if u.maxBytes > 0 && upload.Size > u.maxBytes {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("image exceeds %d bytes", u.maxBytes))
	}
	mime, err := sniffMime(upload.Content)
	if err != nil {
		return storage.Object{}, err
	}
	ext, ok := imageExtensions[mime]
	if !ok {
		return storage.Object{}, appErrors.Clone(appErrors.ErrValidation, "unsupported image type "+mime)
	}
	key := fmt.Sprintf("%s/%s_%d_%s%s", prefix, sanitize(owner), time.Now().Unix(), randomSuffix(), ext)
	obj, err := u.store.Put(ctx, key, upload.Content)
	if err != nil {
		return storage.Object{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store image")
	}
	return obj, nil
}

// discard removes a replaced object. Failures leave an orphan and are only logged.
func (u imageUploader) discard(ctx context.Context, key *string) {
	if u.store == nil || key == nil || *key == "" {
		return
	}
	if err := u.store.Delete(ctx, *key); err != nil {
		u.logger.Warn("orphaned image left in storage", zap.String("key", *key), zap.Error(err))
	}
}

func sniffMime(r io.ReadSeeker) (string, error) {
	header := make([]byte, 512)
	n, err := r.Read(header)
	if err != nil && err != io.EOF {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset upload stream")
	}
	if n == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	return http.DetectContentType(header[:n]), nil
}

func sanitize(raw string) string {
	raw = strings.ToLower(raw)
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
