package uploads

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the subset of *s3.Client the store uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	KeyPrefix    string
	// URLPrefix is the public base the bucket is reachable at.
	URLPrefix string
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// NewS3Client builds a path-style client for MinIO or any S3-compatible
// endpoint, with static credentials.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

// S3Store uploads objects to a bucket. The incoming stream is spooled to a
// temporary file first since PutObject needs a seekable body to sign.
type S3Store struct {
	client ObjectPutter
	cfg    S3Config
}

func NewS3Store(client ObjectPutter, cfg S3Config) *S3Store {
	return &S3Store{client: client, cfg: cfg}
}

func (s *S3Store) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "educhain-upload-*")
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("spool upload: %w", err)
	}

	key := s.cfg.KeyPrefix + ObjectName(name)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return joinURL(s.cfg.URLPrefix, key), nil
}
