// Package objectstore wraps the S3-compatible durable storage accounts
// the archival worker uploads finished MP4s to. Grounded on
// janhq-server/services/media-api/internal/infrastructure/storage/s3_storage.go:
// the same shape (bucket + region + optional custom endpoint for
// S3-compatible providers, a "disabled until configured" guard instead of
// a hard failure, PutObject plus a direct-URL builder).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var errDisabled = errors.New("objectstore: account has no bucket/endpoint configured")

// Target is the out-of-scope "object-store client" collaborator every
// durable-storage account implements; "N >= 1 symmetric accounts" is
// []Target.
type Target interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (directURL string, err error)
	RepoID() string
	Healthy(ctx context.Context) error
}

// Account describes one configured S3-compatible durable-storage account,
// parsed from a "bucket@endpoint" config string (endpoint may be empty to
// use the AWS default resolver).
type Account struct {
	RepoName  string
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Storage is one configured account.
type S3Storage struct {
	repoID   string
	bucket   string
	client   *s3.Client
	disabled bool
}

func NewS3Storage(ctx context.Context, acc Account) (*S3Storage, error) {
	store := &S3Storage{repoID: acc.RepoName, bucket: strings.TrimSpace(acc.Bucket)}

	if store.bucket == "" || acc.AccessKey == "" || acc.SecretKey == "" {
		store.disabled = true
		return store, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if acc.Endpoint != "" {
			return aws.Endpoint{URL: acc.Endpoint, PartitionID: "aws", SigningRegion: acc.Region}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(acc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(acc.AccessKey, acc.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}

	store.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = acc.PathStyle
	})
	return store, nil
}

func (s *S3Storage) RepoID() string { return s.repoID }

func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if s.disabled {
		return "", errDisabled
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *S3Storage) Healthy(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// ParseAccounts parses the config package's "bucket@endpoint" list form
// into Accounts, reading credentials from the shared env vars per index
// so each configured bucket maps to one symmetric account.
func ParseAccounts(entries []string, accessKeys, secretKeys []string) []Account {
	out := make([]Account, 0, len(entries))
	for i, e := range entries {
		bucket, endpoint := e, ""
		if idx := strings.Index(e, "@"); idx >= 0 {
			bucket, endpoint = e[:idx], e[idx+1:]
		}
		acc := Account{
			RepoName: fmt.Sprintf("account-%d", i),
			Bucket:   bucket,
			Endpoint: endpoint,
			Region:   "auto",
		}
		if i < len(accessKeys) {
			acc.AccessKey = accessKeys[i]
		}
		if i < len(secretKeys) {
			acc.SecretKey = secretKeys[i]
		}
		out = append(out, acc)
	}
	return out
}
