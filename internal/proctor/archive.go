package proctor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/capture"
	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Archive stores retained recordings and returns a reference to the object.
type Archive interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error)
}

// MinioConfig is the S3-compatible archive target.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchive keeps recordings in an S3-compatible bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

func NewMinioArchive(cfg MinioConfig) (*MinioArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &MinioArchive{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (a *MinioArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (a *MinioArchive) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := a.client.PutObject(ctx, a.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// LocalArchive keeps recordings on the portal machine's disk.
type LocalArchive struct {
	Root string
}

func (a *LocalArchive) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(a.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, reader); err != nil {
		return "", err
	}
	return "file://" + filepath.ToSlash(dst), nil
}

// ArchivingAnalyzer retains the recording when the verdict reaches MinLevel
// and stamps the archive reference on the result. Lower verdicts keep
// nothing. Archive failures are logged and do not fail the analysis.
type ArchivingAnalyzer struct {
	inner    Analyzer
	archive  Archive
	minLevel model.SuspicionLevel
	log      zerolog.Logger
	now      func() time.Time
}

func NewArchivingAnalyzer(inner Analyzer, archive Archive, minLevel model.SuspicionLevel, log zerolog.Logger) *ArchivingAnalyzer {
	if !minLevel.Valid() {
		minLevel = model.SuspicionMedium
	}
	return &ArchivingAnalyzer{
		inner:    inner,
		archive:  archive,
		minLevel: minLevel,
		log:      log.With().Str("component", "archive").Logger(),
		now:      time.Now,
	}
}

func (a *ArchivingAnalyzer) Analyze(ctx context.Context, in Input) (model.ProctoringResult, error) {
	res, err := a.inner.Analyze(ctx, in)
	if err != nil {
		return res, err
	}
	if in.VideoDataURI == "" || res.OverallSuspicionLevel.Rank() < a.minLevel.Rank() {
		return res, nil
	}

	mt, data, err := capture.DecodeDataURI(in.VideoDataURI)
	if err != nil {
		a.log.Warn().Err(err).Msg("recording not archived")
		return res, nil
	}

	key := config.CacheKey.RecordingObjectKey(a.now().UTC().Format("2006-01-02"), uuid.NewString(), extensionFor(mt))
	ref, err := a.archive.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), mt)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("failed to archive recording")
		return res, nil
	}

	a.log.Info().
		Str("ref", ref).
		Str("level", string(res.OverallSuspicionLevel)).
		Int("bytes", len(data)).
		Msg("recording retained for review")
	res.RecordingRef = ref
	return res, nil
}

func extensionFor(mimeType string) string {
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	if _, sub, ok := strings.Cut(mimeType, "/"); ok && sub != "" {
		return sub
	}
	return "bin"
}
