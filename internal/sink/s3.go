package sink

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/gyeh/mrfscan/internal/config"
	"github.com/gyeh/mrfscan/internal/normalize"
)

// S3Uploader uploads batch files to an S3 bucket or an S3-compatible
// endpoint such as Cloudflare R2.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Uploader builds an uploader from cfg. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
func NewS3Uploader(ctx context.Context, cfg config.S3Config, log zerolog.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.AccessKeySecret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.With().Str("component", "sink").Str("sink", "s3").Logger(),
	}, nil
}

// Upload puts the file at localPath under prefix/key, tagging it with the
// file's SHA-256.
func (u *S3Uploader) Upload(ctx context.Context, localPath, key string) error {
	sum, err := normalize.FileHash(localPath)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	objectKey := path.Join(u.prefix, key)
	if _, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String("application/vnd.apache.parquet"),
		Metadata:    map[string]string{"sha256": sum},
	}); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, objectKey, err)
	}
	u.log.Info().Str("bucket", u.bucket).Str("key", objectKey).Str("sha256", sum).Msg("batch uploaded")
	return nil
}

var _ Uploader = (*S3Uploader)(nil)
