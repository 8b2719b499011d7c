package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"wrpl-inspect/internal/config"
)

var ErrTooLarge = errors.New("source: replay exceeds size limit")

// ObjectGetter is the part of the S3 client the Opener needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Opener reads whole replay files from local paths or s3://bucket/key URIs.
type Opener struct {
	S3       ObjectGetter
	MaxBytes int64 // 0 means no limit
}

// NewS3Client builds an S3 client from cfg. Credentials come from the
// standard AWS_* environment variables; without them requests are anonymous.
func NewS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
		Credentials:  envCredentials(),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials() aws.CredentialsProvider {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	creds := aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return creds, nil
	}))
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(uri string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(uri, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Open returns the contents of uri.
func (o *Opener) Open(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, "s3://") {
		return o.openS3(ctx, uri)
	}

	f, err := os.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("could not open file %s: %w", uri, err)
	}
	defer f.Close()
	data, err := o.readAll(f)
	if err != nil {
		return nil, fmt.Errorf("could not read file content from %s: %w", uri, err)
	}
	return data, nil
}

func (o *Opener) openS3(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, ok := ParseS3URI(uri)
	if !ok {
		return nil, fmt.Errorf("source: malformed s3 uri %q", uri)
	}
	if o.S3 == nil {
		return nil, fmt.Errorf("source: no s3 client for %s", uri)
	}
	out, err := o.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", uri, err)
	}
	defer out.Body.Close()
	if o.MaxBytes > 0 && aws.ToInt64(out.ContentLength) > o.MaxBytes {
		return nil, ErrTooLarge
	}
	data, err := o.readAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", uri, err)
	}
	return data, nil
}

func (o *Opener) readAll(r io.Reader) ([]byte, error) {
	if o.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, o.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > o.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}
