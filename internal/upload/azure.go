package upload

import (
	"context"
	"errors"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ensures AzureUploader implements Uploader interface.
var _ Uploader = (*AzureUploader)(nil)

// Azure Blob store backed uploader
type AzureUploader struct {
	client *azblob.Client
	// `container` in the storage account where files are saved
	container string
}

// `container` must be part of the storage account provided
func NewAzureUploader(
	accountName, accountKey, serviceURL, container string,
) (*AzureUploader, error) {
	cred, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, err
	}

	if container == "" {
		return nil, errors.New("container is required")
	}

	return &AzureUploader{
		client:    client,
		container: container,
	}, nil
}

// `container` must be part of the storage account of `client`
func NewAzureUploaderFromClient(client *azblob.Client, container string) *AzureUploader {
	return &AzureUploader{
		client:    client,
		container: container,
	}
}

func (u *AzureUploader) Upload(
	ctx context.Context,
	reader io.ReadSeeker,
	length int64,
	key, contentType string,
) error {
	ctx, span := tracer.Start(ctx, "AzureUploader.Upload", trace.WithAttributes(
		attribute.String("key", key),
		attribute.Int64("length", length),
	))
	defer span.End()

	_, err := u.client.UploadStream(ctx, u.container, key, reader, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload reader")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "uploaded file")
	return nil
}

func (u *AzureUploader) StoreIdentifier(_ context.Context) (string, error) {
	return u.container, nil
}

// PublicReadURL returns the blob's canonical URL. The container is
// provisioned with anonymous blob-read access; consent records keep
// these URLs indefinitely so SAS expiry would break old records.
func (u *AzureUploader) PublicReadURL(ctx context.Context, key string) (string, error) {
	_, span := tracer.Start(ctx, "AzureUploader.PublicReadURL", trace.WithAttributes(
		attribute.String("key", key),
	))
	defer span.End()

	url := u.client.ServiceClient().
		NewContainerClient(u.container).
		NewBlobClient(key).
		URL()

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "built blob url")
	return url, nil
}
