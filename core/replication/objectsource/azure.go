package objectsource

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"
)

// AzureBlobSource downloads a single blob from Azure Blob Storage, chunking
// the response body into fixed-size frames the same way S3Source does.
type AzureBlobSource struct {
	containerURL azblob.ContainerURL
	chunkSize    int

	body io.ReadCloser
	buf  []byte
}

// NewAzureBlobSource builds a ChunkSource reading blobs out of container.
func NewAzureBlobSource(container url.URL, pipeline azblob.Pipeline, chunkSize int) *AzureBlobSource {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &AzureBlobSource{
		containerURL: azblob.NewContainerURL(container, pipeline),
		chunkSize:    chunkSize,
	}
}

func (a *AzureBlobSource) Open(ctx context.Context, ref string) (int64, error) {
	blobURL := a.containerURL.NewBlobURL(ref)
	resp, err := blobURL.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false)
	if err != nil {
		return 0, fmt.Errorf("objectsource: azure blob download: %w", err)
	}
	a.body = resp.Body(azblob.RetryReaderOptions{})
	a.buf = make([]byte, a.chunkSize)
	return resp.ContentLength(), nil
}

func (a *AzureBlobSource) Next(ctx context.Context) ([]byte, error) {
	if a.body == nil {
		return nil, ErrNotOpened
	}
	n, err := io.ReadFull(a.body, a.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, a.buf[:n])
		if err == io.ErrUnexpectedEOF {
			return chunk, nil
		}
		return chunk, err
	}
	return nil, err
}

func (a *AzureBlobSource) Close() error {
	if a.body == nil {
		return nil
	}
	err := a.body.Close()
	a.body = nil
	return err
}
