package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	metaWidth    = "Width"
	metaHeight   = "Height"
	metaSourceW  = "Source-Width"
	metaSourceH  = "Source-Height"
	metaCrunched = "Crunched"
	metaFallback = "Fallback"
)

// S3Cache is a second cache tier for crunch results in an S3 compatible bucket.
type S3Cache struct {
	Client  *minio.Client
	Bucket  string
	Prefix  string
	Enabled bool
}

type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// NewS3Cache connects to the bucket. It returns a disabled cache when no
// endpoint or bucket is configured.
func NewS3Cache(opts S3Options) (*S3Cache, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return &S3Cache{Enabled: false}, nil
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Cache{
		Client:  client,
		Bucket:  opts.Bucket,
		Prefix:  opts.Prefix,
		Enabled: true,
	}, nil
}

func (s *S3Cache) objectKey(key string) string {
	return path.Join(s.Prefix, "crunched", key)
}

// Get returns the cached value, or nil when the object does not exist.
func (s *S3Cache) Get(ctx context.Context, key string) (*CacheValue, error) {
	if s == nil || !s.Enabled || s.Client == nil {
		return nil, nil
	}

	obj, err := s.Client.GetObject(ctx, s.Bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, err
	}

	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}

	value := &CacheValue{
		Body:        body,
		ContentType: info.ContentType,
		Fallback:    info.UserMetadata[metaFallback],
	}
	value.Width, _ = strconv.Atoi(info.UserMetadata[metaWidth])
	value.Height, _ = strconv.Atoi(info.UserMetadata[metaHeight])
	value.SourceWidth, _ = strconv.Atoi(info.UserMetadata[metaSourceW])
	value.SourceHeight, _ = strconv.Atoi(info.UserMetadata[metaSourceH])
	value.Crunched, _ = strconv.ParseBool(info.UserMetadata[metaCrunched])

	return value, nil
}

// Put stores value under key.
func (s *S3Cache) Put(ctx context.Context, key string, value CacheValue) error {
	if s == nil || !s.Enabled || s.Client == nil {
		return nil
	}

	_, err := s.Client.PutObject(ctx, s.Bucket, s.objectKey(key), bytes.NewReader(value.Body), int64(len(value.Body)), minio.PutObjectOptions{
		ContentType: value.ContentType,
		UserMetadata: map[string]string{
			metaWidth:    strconv.Itoa(value.Width),
			metaHeight:   strconv.Itoa(value.Height),
			metaSourceW:  strconv.Itoa(value.SourceWidth),
			metaSourceH:  strconv.Itoa(value.SourceHeight),
			metaCrunched: strconv.FormatBool(value.Crunched),
			metaFallback: value.Fallback,
		},
	})
	return err
}
