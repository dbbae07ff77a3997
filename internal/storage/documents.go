package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/ericksa/contractlens/internal/logging"
)

// MinIOConfig locates the document archive bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DocumentArchive stores raw uploads in an S3-compatible bucket.
type DocumentArchive struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewDocumentArchive connects to MinIO and creates the bucket if missing.
func NewDocumentArchive(ctx context.Context, cfg MinIOConfig, logger *zap.Logger) (*DocumentArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &DocumentArchive{
		client: client,
		bucket: cfg.Bucket,
		logger: logging.OrNop(logger).Named("storage.documents"),
	}, nil
}

// Put uploads data and returns its object key.
func (a *DocumentArchive) Put(ctx context.Context, userID, fileName, contentType string, data []byte) (string, error) {
	key := ObjectKey(userID, uuid.NewString(), fileName)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(fileName))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"user-id":     userID,
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	a.logger.Debug("document archived",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)
	return key, nil
}

// ObjectKey is documents/<user>/<id>/<file>, with path separators and
// dot segments stripped from the caller-supplied parts.
func ObjectKey(userID, id, fileName string) string {
	user := sanitizeSegment(userID)
	if user == "" {
		user = "anonymous"
	}
	name := sanitizeSegment(path.Base(strings.ReplaceAll(fileName, `\`, "/")))
	if name == "" {
		name = "document"
	}
	return path.Join("documents", user, id, name)
}

func sanitizeSegment(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r < 0x20:
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	return s
}
