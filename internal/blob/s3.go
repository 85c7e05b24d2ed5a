package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"inbox/internal/mediaurl"
)

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicURL       string
	Prefix          string
}

// objectAPI is the subset of the S3 client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps attachments in an S3-compatible bucket. Files are served
// from the bucket's public URL, so no previews are generated.
type S3Store struct {
	client         objectAPI
	bucket         string
	prefix         string
	publicURL      string
	maxUploadBytes int64
}

func NewS3Store(ctx context.Context, cfg S3Config, maxUploadBytes int64) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.PublicURL == "" {
		return nil, fmt.Errorf("s3 public url is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Store(client, cfg, maxUploadBytes), nil
}

func newS3Store(client objectAPI, cfg S3Config, maxUploadBytes int64) *S3Store {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = attachmentDir
	}
	return &S3Store{
		client:         client,
		bucket:         cfg.Bucket,
		prefix:         prefix,
		publicURL:      cfg.PublicURL,
		maxUploadBytes: maxUploadBytes,
	}
}

func (s *S3Store) Save(ctx context.Context, originalName string, src io.Reader) (*StoredBlob, error) {
	mimeType, fullReader, err := inspect(src)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(fullReader, s.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading blob data: %w", err)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, ErrFileTooLarge
	}

	key := s.prefix + "/" + uuid.NewString()
	name := cleanOriginalName(originalName)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        aws.String(mimeType),
		ContentDisposition: aws.String(fmt.Sprintf("inline; filename=%q", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading object: %w", err)
	}

	return &StoredBlob{
		ID:           key,
		MimeType:     mimeType,
		SizeBytes:    int64(len(data)),
		OriginalName: name,
		URL:          mediaurl.Object(s.publicURL, key),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (s *S3Store) Remove(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("empty object key")
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return nil
}
