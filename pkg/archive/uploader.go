package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/hashicorp/go-multierror"
)

// Sentinel errors for upload failure classification.
var (
	ErrAccessDenied  = errors.New("access denied")
	ErrBucketMissing = errors.New("bucket not found")
	ErrThrottled     = errors.New("request throttled")
)

// UploadError wraps an S3 failure with bucket/key context.
type UploadError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error implements the error interface.
func (e *UploadError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("archive %s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("archive %s s3://%s: %v", e.Op, e.Bucket, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *UploadError) Unwrap() error {
	return e.Err
}

// objectPutter is the slice of the S3 client the uploader needs.
// Satisfied by *s3.Client.
type objectPutter interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadResult summarizes one archived directory.
type UploadResult struct {
	// Bucket is the destination bucket.
	Bucket string `json:"bucket"`

	// Keys are the uploaded object keys, sorted.
	Keys []string `json:"keys"`

	// Skipped counts files that failed to upload.
	Skipped int `json:"skipped,omitempty"`

	// PartialErr aggregates per-file upload failures. Not serialized.
	PartialErr error `json:"-"`
}

// Uploader copies a local artifact directory into an S3 bucket.
type Uploader struct {
	client objectPutter
	bucket string
	prefix string
}

// New creates an uploader with the given configuration.
//
// The uploader uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &UploadError{Op: "New", Bucket: cfg.Bucket, Err: err}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &Uploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Default region only for AWS proper; S3-compatible endpoints may not
	// need one.
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}

	return awsCfg, nil
}

// UploadDir uploads every regular file under localDir to
// s3://<bucket>/<prefix><testID>/<relative path>.
//
// Individual file failures do not abort the upload; they are aggregated in
// UploadResult.PartialErr and counted in Skipped. A nil error with a
// non-nil PartialErr means a partial archive was produced.
func (u *Uploader) UploadDir(ctx context.Context, localDir, testID string) (*UploadResult, error) {
	testID = strings.TrimSpace(testID)
	if testID == "" {
		return nil, errors.New("test_id is required")
	}
	info, err := os.Stat(localDir)
	if err != nil {
		return nil, fmt.Errorf("archive source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive source is not a directory: %s", localDir)
	}

	result := &UploadResult{Bucket: u.bucket}
	var partial *multierror.Error

	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := u.keyFor(testID, rel)
		if err := u.putFile(ctx, key, p); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			partial = multierror.Append(partial, err)
			result.Skipped++
			return nil
		}
		result.Keys = append(result.Keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(result.Keys)
	result.PartialErr = partial.ErrorOrNil()
	return result, nil
}

// keyFor builds the object key for one file of a collection.
func (u *Uploader) keyFor(testID, rel string) string {
	return u.prefix + path.Join(testID, filepath.ToSlash(rel))
}

func (u *Uploader) putFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &UploadError{Op: "PutObject", Bucket: u.bucket, Key: key, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &UploadError{Op: "PutObject", Bucket: u.bucket, Key: key, Err: err}
	}
	size := info.Size()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: &size,
	})
	if err != nil {
		return u.wrapError("PutObject", key, err)
	}
	return nil
}

// wrapError converts S3 errors to archive errors with appropriate sentinels.
func (u *Uploader) wrapError(op, key string, err error) error {
	wrapped := &UploadError{Op: op, Bucket: u.bucket, Key: key, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			wrapped.Err = ErrBucketMissing
		case "AccessDenied", "Forbidden":
			wrapped.Err = ErrAccessDenied
		case "SlowDown", "Throttling", "RequestLimitExceeded":
			wrapped.Err = ErrThrottled
		}
	}
	return wrapped
}
