package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/metrics"
)

var errStorageDisabled = errors.New("object storage is not configured; set MEDIA_S3_* to enable uploads")

const defaultMultipartThreshold = 16 << 20

// S3Config configures one S3-compatible backend. The public bucket holds
// ungated objects served through PublicBaseURL; the private bucket holds
// gated objects reachable only through presigned URLs.
type S3Config struct {
	Name               string
	Endpoint           string
	Region             string
	AccessKeyID        string
	SecretKey          string
	PublicBucket       string
	PrivateBucket      string
	PublicBaseURL      string
	UsePathStyle       bool
	MultipartThreshold int64
}

// S3Storage handles uploads and downloads to S3-compatible storage.
type S3Storage struct {
	cfg      S3Config
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	log      zerolog.Logger
	disabled bool
}

func NewS3Storage(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Storage, error) {
	logger := log.With().Str("component", "s3-storage").Str("backend", cfg.Name).Logger()

	cfg.PublicBucket = strings.TrimSpace(cfg.PublicBucket)
	cfg.PrivateBucket = strings.TrimSpace(cfg.PrivateBucket)
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = defaultMultipartThreshold
	}
	storage := &S3Storage{
		cfg: cfg,
		log: logger,
	}

	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if cfg.PublicBucket == "" || accessKey == "" || secretKey == "" {
		logger.Warn().Msg("bucket or credentials are not set; this backend will be disabled until configured")
		storage.disabled = true
		return storage, nil
	}
	if cfg.PrivateBucket == "" {
		storage.cfg.PrivateBucket = cfg.PublicBucket
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				PartitionID:   "aws",
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	storage.client = client
	storage.uploader = manager.NewUploader(client)
	storage.presign = s3.NewPresignClient(client)
	return storage, nil
}

func (s *S3Storage) ensureEnabled() error {
	if s.disabled {
		return errStorageDisabled
	}
	return nil
}

func (s *S3Storage) bucketFor(gated bool) string {
	if gated {
		return s.cfg.PrivateBucket
	}
	return s.cfg.PublicBucket
}

func (s *S3Storage) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStorageOp(s.cfg.Name, op, status, time.Since(start).Seconds())
}

// Upload streams the body into the namespace selected by gated. Payloads
// at or above the multipart threshold, and payloads of unknown size, go
// through the SDK's chunked uploader so memory stays bounded.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) (err error) {
	if err := s.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.observe("upload", start, err) }()

	bucket := s.bucketFor(gated)
	if size < 0 || size >= s.cfg.MultipartThreshold {
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String(contentType),
		})
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	return err
}

func (s *S3Storage) Download(ctx context.Context, key string, gated bool) (body io.ReadCloser, contentType string, err error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, "", err
	}
	start := time.Now()
	defer func() { s.observe("download", start, err) }()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketFor(gated)),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", err
	}
	mime := ""
	if out.ContentType != nil {
		mime = *out.ContentType
	}
	return out.Body, mime, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string, gated bool) (err error) {
	if err := s.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.observe("delete", start, err) }()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketFor(gated)),
		Key:    aws.String(key),
	})
	return err
}

// Relocate moves an object between the public and private namespaces via
// server-side copy, then removes the source. Absent sources are tolerated
// when the destination already holds the object, so retries converge.
func (s *S3Storage) Relocate(ctx context.Context, key string, toGated bool) (err error) {
	if err := s.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { s.observe("relocate", start, err) }()

	srcBucket := s.bucketFor(!toGated)
	dstBucket := s.bucketFor(toGated)
	if srcBucket == dstBucket {
		return nil
	}

	// Keys are category/hex.ext, no characters needing escape.
	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(key),
		CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, key)),
	})
	if err != nil {
		exists, headErr := s.head(ctx, dstBucket, key)
		if headErr == nil && exists {
			return nil
		}
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(srcBucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) Exists(ctx context.Context, key string, gated bool) (ok bool, err error) {
	if err := s.ensureEnabled(); err != nil {
		return false, err
	}
	start := time.Now()
	defer func() { s.observe("exists", start, err) }()
	return s.head(ctx, s.bucketFor(gated), key)
}

func (s *S3Storage) head(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PublicURL returns the CDN-style URL for an object in the public
// namespace. It is pure computation and never touches the network.
func (s *S3Storage) PublicURL(key string) (string, error) {
	if s.disabled {
		return "", errStorageDisabled
	}
	base := strings.TrimSuffix(strings.TrimSpace(s.cfg.PublicBaseURL), "/")
	if base == "" {
		return "", fmt.Errorf("public base url is not configured for backend %s", s.cfg.Name)
	}
	return fmt.Sprintf("%s/%s", base, key), nil
}

func (s *S3Storage) PresignGet(ctx context.Context, key string, gated bool, ttl time.Duration) (url string, err error) {
	if err := s.ensureEnabled(); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() { s.observe("presign", start, err) }()

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketFor(gated)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// Health checks both buckets.
func (s *S3Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.PublicBucket)}); err != nil {
		return err
	}
	if s.cfg.PrivateBucket != s.cfg.PublicBucket {
		if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.PrivateBucket)}); err != nil {
			return err
		}
	}
	return nil
}
