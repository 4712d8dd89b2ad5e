package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alanyoungcy/overtimeamm/internal/domain"
)

// Reader implements domain.BlobReader using an S3-compatible backend.
type Reader struct {
	client *s3.Client
	bucket string
}

// NewReader creates a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// Get opens the archive object at path. The caller closes the body. A
// missing object wraps domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, wrap("get", path, err)
	}
	return out.Body, nil
}

// List returns the archive parts under prefix. Folder markers are skipped so
// part numbering only counts real objects.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	pages := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, wrap("list", prefix, err)
		}
		for _, obj := range page.Contents {
			if info, ok := blobInfo(obj); ok {
				infos = append(infos, info)
			}
		}
	}
	return infos, nil
}

// Exists reports whether an archive part is already taken.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(path),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, wrap("exists", path, err)
	}
}

func blobInfo(obj types.Object) (domain.BlobInfo, bool) {
	key := aws.ToString(obj.Key)
	if key == "" || strings.HasSuffix(key, "/") {
		return domain.BlobInfo{}, false
	}
	info := domain.BlobInfo{Path: key, Size: aws.ToInt64(obj.Size)}
	if obj.LastModified != nil {
		info.LastModified = *obj.LastModified
	}
	return info, true
}

func wrap(op, path string, err error) error {
	if isNotFound(err) {
		err = domain.ErrNotFound
	}
	return fmt.Errorf("s3blob: %s %s: %w", op, path, err)
}

// isNotFound matches NoSuchKey, the NotFound HeadObject returns, and a bare
// HTTP 404 from S3-compatible providers.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	type httpResponseError interface {
		HTTPStatusCode() int
	}
	var httpErr httpResponseError
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == 404
}
