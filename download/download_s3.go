package download

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
)

// S3SourceParams configures s3://bucket/key media sources.
type S3SourceParams struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	NumFullRetries  int
}

const defaultS3Retries = 3

func (d *Downloader) fetchS3(ctx context.Context, parsed *url.URL, dir string) (Media, error) {
	if d.s3 == nil {
		return Media{}, fmt.Errorf("s3 sources are not configured")
	}

	bucket := parsed.Host
	key := strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return Media{}, fmt.Errorf("%w: s3 URL needs a bucket and a key", ErrInvalidURL)
	}

	cfg, err := loadAWSCredentials(ctx, d.s3.Region, d.s3.AccessKeyID, d.s3.SecretAccessKey)
	if err != nil {
		return Media{}, fmt.Errorf("load aws credentials: %w", err)
	}
	client := s3.NewFromConfig(*cfg)

	retries := d.s3.NumFullRetries
	if retries == 0 {
		retries = defaultS3Retries
	}

	err = retry.Times(uint(retries)).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					return fmt.Errorf("%w: s3://%s/%s", ErrSourceNotFound, bucket, key), true
				default:
					return fmt.Errorf("aws api error: %w", err), false
				}
			}
			return fmt.Errorf("generic aws error: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		return Media{}, err
	}

	dest := filepath.Join(dir, filepath.Base(key))
	err = retry.Times(uint(retries)).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("creating file: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		downloader := manager.NewDownloader(client)
		if _, err := downloader.Download(ctx, file, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			return fmt.Errorf("download object: %w", err), false
		}
		return nil, true
	})
	if err != nil {
		return Media{}, fmt.Errorf("all retries failed: %w", err)
	}

	return d.finalize(dest)
}

func loadAWSCredentials(ctx context.Context, region, accessKeyID, secretKey string) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretKey != "" {
		opts = append(opts,
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}
	return &cfg, nil
}
