package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"

	apperrors "github.com/dump-sleuth/pkg/errors"
)

// COSConfig holds Tencent Cloud COS settings.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string // default myqcloud.com
	Scheme    string // default https
}

// COSStorage keeps reports in a COS bucket.
type COSStorage struct {
	client *cos.Client
	base   *url.URL
}

// NewCOSStorage builds a client for the bucket. It does not contact COS.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, apperrors.Config("bucket and region are required for COS storage", nil)
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, apperrors.Config("credentials are required for COS storage", nil)
	}

	domain, scheme := cfg.Domain, cfg.Scheme
	if domain == "" {
		domain = "myqcloud.com"
	}
	if scheme == "" {
		scheme = "https"
	}

	base, err := url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, cfg.Bucket, cfg.Region, domain))
	if err != nil {
		return nil, apperrors.Config("invalid COS bucket address", err)
	}

	transport := &cos.AuthorizationTransport{SecretID: cfg.SecretID, SecretKey: cfg.SecretKey}
	return &COSStorage{
		client: cos.NewClient(&cos.BaseURL{BucketURL: base}, &http.Client{Transport: transport}),
		base:   base,
	}, nil
}

// reportHeaders describes a report object from its key. Compressed reports
// keep the JSON content type and announce the encoding.
func reportHeaders(key string) *cos.ObjectPutHeaderOptions {
	h := &cos.ObjectPutHeaderOptions{ContentType: "application/octet-stream"}
	name := path.Base(key)
	switch {
	case strings.HasSuffix(name, ".json.gz"):
		h.ContentType, h.ContentEncoding = "application/json", "gzip"
	case strings.HasSuffix(name, ".json.zst"):
		h.ContentType, h.ContentEncoding = "application/json", "zstd"
	case strings.HasSuffix(name, ".json"):
		h.ContentType = "application/json"
	}
	return h
}

func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	opt := &cos.ObjectPutOptions{ObjectPutHeaderOptions: reportHeaders(key)}
	if _, err := s.client.Object.Put(ctx, key, reader, opt); err != nil {
		return apperrors.Storage(fmt.Sprintf("COS put %s failed", key), err)
	}
	return nil
}

func (s *COSStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	opt := &cos.ObjectPutOptions{ObjectPutHeaderOptions: reportHeaders(key)}
	if _, err := s.client.Object.PutFromFile(ctx, key, localPath, opt); err != nil {
		return apperrors.Storage(fmt.Sprintf("COS upload of %s failed", localPath), err)
	}
	return nil
}

func (s *COSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, apperrors.Storage(fmt.Sprintf("COS get %s failed", key), err)
	}
	return resp.Body, nil
}

func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key, nil); err != nil {
		return apperrors.Storage(fmt.Sprintf("COS delete %s failed", key), err)
	}
	return nil
}

func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, apperrors.Storage(fmt.Sprintf("COS head %s failed", key), err)
	}
	return ok, nil
}

// GetURL returns the object's bucket URL.
func (s *COSStorage) GetURL(key string) string {
	return s.base.String() + "/" + strings.TrimPrefix(key, "/")
}
