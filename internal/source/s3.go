package source

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds bucket settings for an S3 or MinIO source.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Source tails objects under a prefix in one bucket.
type S3Source struct {
	client   *s3.Client
	bucket   string
	prefix   string
	patterns []string
}

// s3Handle identifies one object. The listed size/mtime are kept only as a
// hint; Stat always re-fetches via HeadObject.
type s3Handle struct {
	name string
	key  string
}

func (h s3Handle) Name() string { return h.name }

// NewS3Source creates a source over cfg.Bucket/cfg.Prefix.
func NewS3Source(ctx context.Context, cfg S3Config, patterns []string) (*S3Source, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	src := &S3Source{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		patterns: patterns,
	}

	// Fail early on a missing or unreachable bucket.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("head bucket %s: %w", cfg.Bucket, err)
	}

	return src, nil
}

// List returns handles for all matching objects under the prefix.
func (s *S3Source) List(ctx context.Context) ([]Handle, error) {
	var handles []Handle

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			name := path.Base(key)
			if !s.match(name) {
				continue
			}
			handles = append(handles, s3Handle{name: name, key: key})
		}
	}
	return handles, nil
}

func (s *S3Source) match(name string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, pat := range s.patterns {
		if ok, err := path.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Stat fetches fresh object metadata via HeadObject.
func (s *S3Source) Stat(ctx context.Context, h Handle) (Metadata, error) {
	sh, ok := h.(s3Handle)
	if !ok {
		return Metadata{}, fmt.Errorf("stat %s: not an s3 handle", h.Name())
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(sh.key),
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("head object %s: %w", sh.key, err)
	}

	var size int64
	if head.ContentLength != nil {
		size = *head.ContentLength
	}
	var modTime time.Time
	if head.LastModified != nil {
		modTime = *head.LastModified
	}
	return Metadata{Name: sh.name, Size: size, ModTime: modTime}, nil
}

// Read downloads the object's full current bytes.
func (s *S3Source) Read(ctx context.Context, h Handle, opts ReadOptions) ([]byte, error) {
	sh, ok := h.(s3Handle)
	if !ok {
		return nil, &ReadError{Name: h.Name(), Err: fmt.Errorf("not an s3 handle")}
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(sh.key),
	})
	if err != nil {
		return nil, &ReadError{Name: sh.name, Err: err}
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, &ReadError{Name: sh.name, Err: err}
	}
	return data, nil
}

// Close is a no-op for S3 sources.
func (s *S3Source) Close() error { return nil }
