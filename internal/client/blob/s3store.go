package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/eidolon-labs/notesync/internal/netx"
)

// NewStorageKey mirrors the teacher's GetRandomStorageKey
// (_examples/dmitrijs2005-gophkeeper/internal/server/entries/service.go),
// namespacing each attachment's object key by upload date plus a random
// uuid so keys never collide and objects sort roughly chronologically.
func NewStorageKey(now time.Time) string {
	return fmt.Sprintf("attachments/%d/%02d/%02d/%s", now.Year(), now.Month(), now.Day(), uuid.NewString())
}

// presignExpiry mirrors the teacher's 15-minute presigned URL lifetime
// (_examples/dmitrijs2005-gophkeeper/internal/server/entries/service.go).
const presignExpiry = 15 * time.Minute

// Config carries the S3-compatible endpoint settings a client needs to
// presign its own PUT/GET requests directly, generalized from the
// teacher's server-side S3Region/S3RootUser/S3RootPassword/S3Bucket/
// S3BaseEndpoint fields (internal/server/config) to a client-held
// credential set — this module has no server component brokering
// presigned URLs on the client's behalf, so the client presigns them
// itself against its own scoped credentials.
type Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	BaseEndpoint string
}

// S3Store is a Store backed by an S3-compatible bucket, uploading and
// downloading ciphertext through presigned URLs the way the teacher's
// client CLI does (add_file.go's GetPresignedPutURL +
// netx.UploadToS3PresignedURL; item.go's GetPresignedGetUrl +
// netx.DownloadFromS3PresignedURL) rather than issuing signed S3 API
// calls for the transfer itself. Delete is the one operation that has no
// presigned-URL form in the S3 API, so it goes through the plain client.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("blob: load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	return &S3Store{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("blob: read upload body: %w", err)
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return fmt.Errorf("blob: presign put %s: %w", key, err)
	}

	return netx.UploadToS3PresignedURL(req.URL, body)
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("blob: presign get %s: %w", key, err)
	}

	body, err := netx.DownloadFromS3PresignedURL(req.URL)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blob: delete %s: %w", key, err)
	}
	return nil
}
