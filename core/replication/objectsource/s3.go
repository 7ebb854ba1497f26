package objectsource

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3Source downloads a single object from S3 via s3.GetObject, chunking the
// response body into fixed-size frames.
type S3Source struct {
	client    *s3.S3
	bucket    string
	chunkSize int

	body   io.ReadCloser
	buf    []byte
}

// NewS3Source builds a ChunkSource reading from bucket, using a
// chunkSize-byte read buffer per Next call.
func NewS3Source(sess *session.Session, bucket string, chunkSize int) *S3Source {
	if chunkSize <= 0 {
		chunkSize = 1 << 20
	}
	return &S3Source{client: s3.New(sess), bucket: bucket, chunkSize: chunkSize}
}

func (s *S3Source) Open(ctx context.Context, ref string) (int64, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return 0, fmt.Errorf("objectsource: s3 GetObject: %w", err)
	}
	s.body = out.Body
	s.buf = make([]byte, s.chunkSize)
	length := int64(0)
	if out.ContentLength != nil {
		length = *out.ContentLength
	}
	return length, nil
}

func (s *S3Source) Next(ctx context.Context) ([]byte, error) {
	if s.body == nil {
		return nil, ErrNotOpened
	}
	n, err := io.ReadFull(s.body, s.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, s.buf[:n])
		if err == io.ErrUnexpectedEOF {
			// Last, short read: deliver it, EOF follows on the next call.
			return chunk, nil
		}
		return chunk, err
	}
	return nil, err
}

func (s *S3Source) Close() error {
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}
