package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/bytebin-io/bytebin/internal/content"
)

// S3Backend persists content as S3 objects. Record metadata is carried in
// the object metadata under bytebin-* keys; the object body is the raw
// content bytes.
type S3Backend struct {
	backendID string
	bucket    string
	client    *s3.Client
}

var _ Backend = (*S3Backend)(nil)

// S3Options configures the backend client beyond the standard AWS
// environment (AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewS3Backend creates the backend using the default AWS credential chain.
func NewS3Backend(ctx context.Context, backendID, bucket string, opts S3Options) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Backend{backendID: backendID, bucket: bucket, client: client}, nil
}

func (b *S3Backend) BackendID() string {
	return b.backendID
}

func (b *S3Backend) Load(ctx context.Context, key string) (*content.Content, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", key, err)
	}

	c, err := readMetadata(key, out.Metadata)
	if err != nil {
		return nil, err
	}
	c.Data = data
	c.ContentLength = len(data)
	c.BackendID = b.backendID
	return c, nil
}

func (b *S3Backend) Save(ctx context.Context, c *content.Content) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(b.bucket),
		Key:      aws.String(c.Key),
		Metadata: writeMetadata(c),
		Body:     bytes.NewReader(c.Data),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", c.Key, err)
	}
	return nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) List(ctx context.Context, fn func(*content.Content) error) error {
	return b.ListKeys(ctx, func(key string) error {
		head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("error loading object meta")
			return nil
		}

		c, err := readMetadata(key, head.Metadata)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("error parsing object meta")
			return nil
		}
		if head.ContentLength != nil {
			c.ContentLength = int(*head.ContentLength)
		}
		c.BackendID = b.backendID
		return fn(c)
	})
}

func (b *S3Backend) ListKeys(ctx context.Context, fn func(string) error) error {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing objects: %w", err)
		}
		for _, object := range page.Contents {
			if err := fn(aws.ToString(object.Key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMetadata(c *content.Content) map[string]string {
	expiry := int64(-1)
	if c.Expires() {
		expiry = c.Expiry.UnixMilli()
	}

	meta := map[string]string{
		"bytebin-version":      "1",
		"bytebin-contenttype":  c.ContentType,
		"bytebin-expiry":       strconv.FormatInt(expiry, 10),
		"bytebin-lastmodified": strconv.FormatInt(c.LastModified.UnixMilli(), 10),
		"bytebin-modifiable":   strconv.FormatBool(c.Modifiable),
		"bytebin-encoding":     c.Encoding,
	}
	if c.Modifiable {
		meta["bytebin-authkey"] = c.AuthKey
	}
	return meta
}

func readMetadata(key string, meta map[string]string) (*content.Content, error) {
	expiry, err := strconv.ParseInt(meta["bytebin-expiry"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing expiry for %s: %w", key, err)
	}
	lastModified, err := strconv.ParseInt(meta["bytebin-lastmodified"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last modified for %s: %w", key, err)
	}

	c := &content.Content{
		Key:          key,
		ContentType:  meta["bytebin-contenttype"],
		LastModified: time.UnixMilli(lastModified),
		Modifiable:   meta["bytebin-modifiable"] == "true",
		Encoding:     meta["bytebin-encoding"],
	}
	if expiry >= 0 {
		c.Expiry = time.UnixMilli(expiry)
	}
	if c.Modifiable {
		c.AuthKey = meta["bytebin-authkey"]
	}
	return c, nil
}
