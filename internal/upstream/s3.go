package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/videovault/backend/internal/config"
)

// S3Client serves video bytes from a private S3-compatible bucket and uploads
// new assets into it. Backing file ids are object keys.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Client configures a client targeting the provided object store.
func NewS3Client(ctx context.Context, cfg config.ObjectStoreConfig) (*S3Client, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 upstream: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           cfg.Endpoint,
					SigningRegion: cfg.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
		u.LeavePartsOnError = false
	})

	return &S3Client{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
	}, nil
}

// Fetch streams an object, honoring the optional byte range.
func (c *S3Client) Fetch(ctx context.Context, fileID, byteRange string) (*Object, error) {
	key := strings.TrimLeft(fileID, "/")
	if key == "" {
		return nil, fmt.Errorf("s3 upstream: empty key")
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}
	if byteRange != "" {
		input.Range = aws.String(byteRange)
	}

	out, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("s3 upstream get %s: %w", key, err)
	}

	header := make(http.Header, 4)
	if out.ContentType != nil {
		header.Set("Content-Type", *out.ContentType)
	}
	if out.ContentLength != nil {
		header.Set("Content-Length", strconv.FormatInt(*out.ContentLength, 10))
	}
	if out.AcceptRanges != nil {
		header.Set("Accept-Ranges", *out.AcceptRanges)
	}

	status := http.StatusOK
	if out.ContentRange != nil {
		header.Set("Content-Range", *out.ContentRange)
		status = http.StatusPartialContent
	}

	return &Object{
		Status: status,
		Header: header,
		Body:   out.Body,
	}, nil
}

// Save uploads new asset content under the provided key and returns the key
// recorded as the video's backing file id.
func (c *S3Client) Save(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("s3 upstream: empty key")
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("s3 upstream upload %s: %w", key, err)
	}

	return key, nil
}

var _ Client = (*S3Client)(nil)
