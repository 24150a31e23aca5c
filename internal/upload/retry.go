package upload

import (
	"context"
	"io"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
)

// Ensure RetryUploader implements Uploader interface.
var _ Uploader = (*RetryUploader)(nil)

// Meta uploader that wraps uploader operations in backoff loops
type RetryUploader struct {
	uploader Uploader
	backoff  func() retry.Backoff
}

func NewRetryUploaderBackoff(uploader Uploader, backoff func() retry.Backoff) *RetryUploader {
	return &RetryUploader{
		uploader: uploader,
		backoff:  backoff,
	}
}

// Default backoff is bounded well under the request timeout so a dead
// store surfaces as a partial-success outcome rather than a hang.
func NewRetryUploader(uploader Uploader) *RetryUploader {
	return &RetryUploader{
		uploader: uploader,
		backoff: func() retry.Backoff {
			b := retry.NewExponential(time.Second)
			b = retry.WithMaxDuration(time.Second*15, b)
			return b
		},
	}
}

func (r *RetryUploader) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	key, contentType string,
) error {
	ctx, span := tracer.Start(ctx, "RetryUploader.Upload")
	defer span.End()

	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryUploader.Upload.Retry")
		defer span.End()

		if _, err := reader.Seek(0, io.SeekStart); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to seek to start of buffer")
			return err
		}

		if err := r.uploader.Upload(ctx, reader, length, key, contentType); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upload")
			return retry.RetryableError(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded")
	return nil
}

func (r *RetryUploader) StoreIdentifier(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "RetryUploader.StoreIdentifier")
	defer span.End()

	var ident string
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryUploader.StoreIdentifier.Retry")
		defer span.End()

		var err error
		ident, err = r.uploader.StoreIdentifier(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get store identifier")
			return retry.RetryableError(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get store identifier")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got store identifier")
	return ident, nil
}

func (r *RetryUploader) PublicReadURL(ctx context.Context, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "RetryUploader.PublicReadURL")
	defer span.End()

	var url string
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		//nolint:govet // shadow: intentionally shadow ctx and span to avoid using the incorrect one.
		ctx, span := tracer.Start(ctx, "RetryUploader.PublicReadURL.Retry")
		defer span.End()

		var err error
		url, err = r.uploader.PublicReadURL(ctx, key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to get public url")
			return retry.RetryableError(err)
		}

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "successfully retried")
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get public url")
		return "", err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "got public url")
	return url, nil
}
