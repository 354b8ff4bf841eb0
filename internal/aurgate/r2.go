package aurgate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"zombiezen.com/go/log"
)

// ArchiveUploader publishes a verified archive after it has been installed.
type ArchiveUploader interface {
	Upload(ctx context.Context, pkgbase, path string, digest ArchiveDigest) error
}

// ArchiveMirror uploads verified archives to an S3-compatible bucket
// (Cloudflare R2, MinIO, AWS).
type ArchiveMirror struct {
	Client     *s3.Client
	BucketName string
}

// NewArchiveMirror initializes a mirror client from the mirror settings.
func NewArchiveMirror(ctx context.Context, m MirrorConfig, debug bool) (*ArchiveMirror, error) {
	if !m.Enabled() {
		return nil, errors.New("mirror bucket is not configured (AURGATE_MIRROR_BUCKET)")
	}

	options := []func(*config.LoadOptions) error{
		config.WithRegion(m.Region),
	}
	if m.AccessKeyID != "" || m.SecretAccessKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(m.AccessKeyID, m.SecretAccessKey, "")))
	}
	if debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load mirror config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if m.Endpoint != "" {
			o.BaseEndpoint = aws.String(m.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArchiveMirror{Client: client, BucketName: m.Bucket}, nil
}

// mirrorKey is the object key of an archive: "{pkgbase}/{filename}".
func mirrorKey(pkgbase, path string) string {
	return pkgbase + "/" + filepath.Base(path)
}

// Upload stores the archive at path, tagging it with its BLAKE3 sum.
func (r *ArchiveMirror) Upload(ctx context.Context, pkgbase, path string, digest ArchiveDigest) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(path, ".zst"):
		contentType = "application/zstd"
	case strings.HasSuffix(path, ".xz"):
		contentType = "application/x-xz"
	case strings.HasSuffix(path, ".gz"):
		contentType = "application/gzip"
	}

	key := mirrorKey(pkgbase, path)
	log.Debugf(ctx, "uploading %s to %s/%s", path, r.BucketName, key)
	_, err = r.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.BucketName),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(digest.Size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"blake3": digest.Sum},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
