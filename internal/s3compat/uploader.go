// Package s3compat drives uploads through the endpoint's S3-compatible
// surface using the AWS SDK instead of the native signed transport. Useful
// when infrastructure between the client and the bucket only understands
// SigV4, at the cost of the native request shapes.
package s3compat

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/domain"
	"github.com/prn-tf/tencos/internal/transfer"
)

// Config describes the S3-compatible connection.
type Config struct {
	Credentials domain.Credentials
	Endpoint    domain.Endpoint

	// BaseEndpoint overrides the bucket's derived URL, for gateways and
	// tests.
	BaseEndpoint string

	// Threshold and PartSize mirror the native uploader's knobs and share
	// its defaults.
	Threshold int64
	PartSize  int64

	Logger zerolog.Logger
}

// Uploader performs object operations over the S3 wire protocol.
type Uploader struct {
	client    *s3.Client
	endpoint  domain.Endpoint
	threshold int64
	partSize  int64
	logger    zerolog.Logger
}

// NewUploader builds an S3 client bound to the bucket's compatibility
// endpoint, authenticating with the same secret pair as the native signer.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Endpoint.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Credentials.SecretID, cfg.Credentials.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	baseEndpoint := cfg.BaseEndpoint
	if baseEndpoint == "" {
		baseEndpoint = fmt.Sprintf("https://cos.%s.%s", cfg.Endpoint.Region, domain.ProviderDomain)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(baseEndpoint)
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = transfer.MultipartThreshold
	}
	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = transfer.DefaultPartSize
	}

	return &Uploader{
		client:    client,
		endpoint:  cfg.Endpoint,
		threshold: threshold,
		partSize:  partSize,
		logger:    cfg.Logger.With().Str("component", "s3compat").Logger(),
	}, nil
}

// Upload sends the file at localPath to objectKey and returns the object's
// canonical URL. Route selection matches the native uploader: strictly
// larger than the threshold goes multipart.
func (u *Uploader) Upload(ctx context.Context, localPath, objectKey string, metadata map[string]string) (string, error) {
	if objectKey == "" {
		return "", domain.ErrEmptyObjectKey
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", localPath, err)
	}

	if info.Size() > u.threshold {
		if err := u.multipartUpload(ctx, localPath, objectKey, info.Size(), metadata); err != nil {
			return "", err
		}
	} else if err := u.simpleUpload(ctx, localPath, objectKey, metadata); err != nil {
		return "", err
	}
	return u.endpoint.ObjectURL(objectKey), nil
}

// simpleUpload is one PutObject call.
func (u *Uploader) simpleUpload(ctx context.Context, localPath, objectKey string, metadata map[string]string) error {
	body, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", localPath, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(u.endpoint.Bucket),
		Key:      aws.String(objectKey),
		Body:     bytes.NewReader(body),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}

	u.logger.Info().Str("key", objectKey).Int("size", len(body)).Msg("object uploaded via s3 surface")
	return nil
}

// multipartUpload runs the S3 initiate/part/complete sequence sequentially.
func (u *Uploader) multipartUpload(ctx context.Context, localPath, objectKey string, fileSize int64, metadata map[string]string) error {
	spans, err := transfer.PlanParts(fileSize, u.partSize)
	if err != nil {
		return err
	}

	create, err := u.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(u.endpoint.Bucket),
		Key:      aws.String(objectKey),
		Metadata: metadata,
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := aws.ToString(create.UploadId)
	if uploadID == "" {
		return domain.ErrUploadIDMissing
	}

	file, err := os.Open(localPath)
	if err != nil {
		u.bestEffortAbort(ctx, objectKey, uploadID)
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer file.Close()

	completed := make([]types.CompletedPart, 0, len(spans))
	for _, span := range spans {
		buf := make([]byte, span.Size)
		n, _ := file.ReadAt(buf, span.Offset)
		if int64(n) != span.Size {
			u.bestEffortAbort(ctx, objectKey, uploadID)
			return fmt.Errorf("%w: part %d got %d of %d bytes",
				domain.ErrShortRead, span.Number, n, span.Size)
		}

		part, err := u.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(u.endpoint.Bucket),
			Key:        aws.String(objectKey),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(int32(span.Number)),
			Body:       bytes.NewReader(buf),
		})
		if err != nil {
			u.bestEffortAbort(ctx, objectKey, uploadID)
			return fmt.Errorf("upload part %d: %w", span.Number, err)
		}
		completed = append(completed, types.CompletedPart{
			ETag:       part.ETag,
			PartNumber: aws.Int32(int32(span.Number)),
		})
	}

	_, err = u.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.endpoint.Bucket),
		Key:             aws.String(objectKey),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		u.bestEffortAbort(ctx, objectKey, uploadID)
		return fmt.Errorf("complete multipart upload: %w", err)
	}

	u.logger.Info().
		Str("key", objectKey).
		Str("upload_id", uploadID).
		Int("parts", len(completed)).
		Msg("multipart upload completed via s3 surface")
	return nil
}

// Head returns the object's metadata map, or a not-found error.
func (u *Uploader) Head(ctx context.Context, objectKey string) (map[string]string, error) {
	out, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.endpoint.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("head object: %w", err)
	}
	return out.Metadata, nil
}

// Delete removes the object.
func (u *Uploader) Delete(ctx context.Context, objectKey string) error {
	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.endpoint.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// Abort terminates a multipart session.
func (u *Uploader) Abort(ctx context.Context, objectKey, uploadID string) error {
	_, err := u.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.endpoint.Bucket),
		Key:      aws.String(objectKey),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

// bestEffortAbort frees the remote session after a failure; its own error is
// only logged.
func (u *Uploader) bestEffortAbort(ctx context.Context, objectKey, uploadID string) {
	if err := u.Abort(ctx, objectKey, uploadID); err != nil {
		u.logger.Warn().Err(err).
			Str("key", objectKey).
			Str("upload_id", uploadID).
			Msg("failed to abort s3 multipart session")
	}
}
