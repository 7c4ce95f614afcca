package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Object describes an uploaded file.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ObjectStore uploads publicly served files such as profile and event images.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) (Object, error)
	Delete(ctx context.Context, key string) error
}

// CloudinaryStore keeps images in a Cloudinary folder.
type CloudinaryStore struct {
	cld     *cloudinary.Cloudinary
	folder  string
	timeout time.Duration
}

// NewCloudinaryStore builds a store from a CLOUDINARY_URL.
func NewCloudinaryStore(rawURL, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: folder, timeout: 15 * time.Second}, nil
}

// Put uploads r under key (without extension). The returned key is Cloudinary's public id.
func (s *CloudinaryStore) Put(ctx context.Context, key string, r io.Reader) (Object, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	overwrite := true
	result, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:  strings.TrimSuffix(key, path.Ext(key)),
		Folder:    s.folder,
		Overwrite: &overwrite,
	})
	if err != nil {
		return Object{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if result.Error.Message != "" {
		return Object{}, fmt.Errorf("cloudinary upload: %s", result.Error.Message)
	}
	return Object{Key: result.PublicID, URL: result.SecureURL}, nil
}

// Delete destroys the asset with the given public id.
func (s *CloudinaryStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: key})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", result.Error.Message)
	}
	return nil
}

// DiskObjectStore serves uploads from LocalStorage under a public base URL.
type DiskObjectStore struct {
	files   *LocalStorage
	baseURL string
}

// NewDiskObjectStore wraps local storage for image uploads.
func NewDiskObjectStore(files *LocalStorage, baseURL string) *DiskObjectStore {
	return &DiskObjectStore{files: files, baseURL: strings.TrimRight(baseURL, "/")}
}

// Put stores r at key.
func (s *DiskObjectStore) Put(_ context.Context, key string, r io.Reader) (Object, error) {
	if _, err := s.files.SaveStream(key, r); err != nil {
		return Object{}, err
	}
	return Object{Key: key, URL: s.baseURL + "/" + strings.TrimLeft(key, "/")}, nil
}

// Delete removes key if present.
func (s *DiskObjectStore) Delete(_ context.Context, key string) error {
	return s.files.Delete(key)
}
