package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// S3Backend archives snapshots in Amazon S3 or a compatible object store.
// It supports both anonymous read access and authenticated write access.
type S3Backend struct {
	client         *s3.S3
	writeClient    *s3.S3
	bucketName     string
	prefix         string
	log            *slog.Logger
	locationURI    string
	hasWriteAccess bool
}

// NewS3Backend creates an S3 archive backend.
// If accessKey and secretKey are provided, the backend will have write access.
// Otherwise it is effectively read-only.
func NewS3Backend(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Backend, error) {
	// Credentials never appear in the tracking URI.
	uri := fmt.Sprintf("s3://%s/%s?region=%s", bucketName, prefix, region)
	if accessKey != "" {
		uri = fmt.Sprintf("s3://%s:***@%s/%s?region=%s", accessKey, bucketName, prefix, region)
	}
	if endpoint != "" {
		uri += fmt.Sprintf("&endpoint=%s", endpoint)
	}

	baseCfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		baseCfg.Endpoint = aws.String(endpoint)
		// Custom endpoints are typically MinIO or similar, which expect
		// path-style addressing.
		baseCfg.S3ForcePathStyle = aws.Bool(true)
	}

	baseSess, err := session.NewSession(&baseCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	readClient := s3.New(baseSess)

	hasWriteAccess := accessKey != "" && secretKey != ""
	writeClient := readClient

	if hasWriteAccess {
		writeCfg := baseCfg.Copy()
		writeCfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")

		writeSess, err := session.NewSession(writeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS write session: %w", err)
		}

		writeClient = s3.New(writeSess)
	} else {
		log.Warn("No S3 credentials provided, snapshot writes will fail unless the bucket accepts anonymous puts")
	}

	return &S3Backend{
		client:         readClient,
		writeClient:    writeClient,
		bucketName:     bucketName,
		prefix:         strings.TrimSuffix(prefix, "/"),
		log:            log,
		locationURI:    uri,
		hasWriteAccess: hasWriteAccess,
	}, nil
}

// Fetch retrieves a snapshot from S3 by its ID.
// Returns ErrSnapshotNotFound if the object doesn't exist.
func (b *S3Backend) Fetch(ctx context.Context, id interfaces.SnapshotID) ([]byte, error) {
	start := time.Now()
	key := b.objectKey(id)

	result, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			b.log.Debug("Snapshot not found in S3",
				slog.String("snapshot_id", id.String()),
				slog.String("bucket", b.bucketName),
				slog.String("key", key),
				slog.Duration("duration", time.Since(start)))
			return nil, interfaces.ErrSnapshotNotFound
		}

		b.log.Error("Failed to get snapshot from S3",
			slog.String("snapshot_id", id.String()),
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to get snapshot from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.log.Error("Failed to read snapshot body",
			slog.String("snapshot_id", id.String()),
			slog.String("bucket", b.bucketName),
			slog.String("key", key),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("failed to read snapshot body: %w", err)
	}

	b.log.Debug("Fetched snapshot from S3",
		slog.String("snapshot_id", id.String()),
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return data, nil
}

// Store uploads a snapshot to S3 under its content address. Objects are
// written without an ACL; bucket policy alone controls who can read sealed
// snapshots.
func (b *S3Backend) Store(ctx context.Context, data []byte) (interfaces.SnapshotID, error) {
	id := interfaces.ComputeSnapshotID(data)
	key := b.objectKey(id)

	_, err := b.writeClient.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucketName),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		if !b.hasWriteAccess {
			return id, fmt.Errorf("failed to upload snapshot to S3 (no write credentials provided): %w", err)
		}
		return id, fmt.Errorf("failed to upload snapshot to S3: %w", err)
	}

	b.log.Debug("Stored snapshot in S3",
		slog.String("bucket", b.bucketName),
		slog.String("key", key),
		slog.String("snapshot_id", id.String()))

	return id, nil
}

// Available checks if the S3 backend is accessible by heading the bucket.
func (b *S3Backend) Available(ctx context.Context) bool {
	start := time.Now()

	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucketName),
	})
	if err != nil {
		b.log.Warn("S3 backend unavailable",
			slog.String("bucket", b.bucketName),
			"err", err,
			slog.Duration("duration", time.Since(start)))
		return false
	}

	return true
}

// Name returns a unique identifier for this backend.
func (b *S3Backend) Name() string {
	return fmt.Sprintf("s3-%s", b.bucketName)
}

// LocationURI returns the URI that identifies this backend.
func (b *S3Backend) LocationURI() string {
	return b.locationURI
}

func (b *S3Backend) objectKey(id interfaces.SnapshotID) string {
	if b.prefix == "" {
		return id.String()
	}

	return path.Join(b.prefix, id.String())
}
