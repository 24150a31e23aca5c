package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensure MinioUploader implements Uploader interface.
var _ Uploader = (*MinioUploader)(nil)

// Minio (S3) backed uploader
type MinioUploader struct {
	client *minio.Client
	bucket string
	// publicBaseURL overrides the endpoint-derived URL for deployments
	// fronted by a CDN or reverse proxy. Optional.
	publicBaseURL string
}

func NewMinioUploader(
	endpoint, id, secret string,
	ssl bool,
	bucket, publicBaseURL string,
) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(id, secret, ""),
		Secure: ssl,
	})
	if err != nil {
		return nil, err
	}

	return &MinioUploader{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}, nil
}

func NewMinioUploaderFromClient(client *minio.Client, bucket string) *MinioUploader {
	return &MinioUploader{
		client: client,
		bucket: bucket,
	}
}

func (u *MinioUploader) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	key, contentType string,
) error {
	ctx, span := tracer.Start(ctx, "MinioUploader.Upload", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("length", length),
	))
	defer span.End()

	_, err := u.client.PutObject(ctx, u.bucket, key, reader, length, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "put object")
	return nil
}

func (u *MinioUploader) StoreIdentifier(_ context.Context) (string, error) {
	return u.bucket, nil
}

func (u *MinioUploader) PublicReadURL(ctx context.Context, key string) (string, error) {
	_, span := tracer.Start(ctx, "MinioUploader.PublicReadURL", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	if u.publicBaseURL != "" {
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "built public url from base")
		return fmt.Sprintf("%s/%s/%s", u.publicBaseURL, u.bucket, key), nil
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "built public url from endpoint")
	return fmt.Sprintf("%s/%s/%s", u.client.EndpointURL(), u.bucket, key), nil
}
