package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
)

const defaultRegion = "us-west-2"

// s3API is the subset of the S3 client used by S3Sink.
type s3API interface {
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
}

// S3Sink stores archives in an S3 compatible bucket.
type S3Sink struct {
	client   s3API
	bucket   string
	prefix   string
	endpoint string
	log      *logrus.Logger
}

// bucketInfo is the parsed form of an s3:// destination.
type bucketInfo struct {
	endpoint string
	bucket   string
	prefix   string
	region   string
}

// parseS3URL splits s3://[host/]bucket/prefix. The host part is only taken
// as a custom endpoint when it looks like a host name (contains "." or ":").
func parseS3URL(u *url.URL) (bucketInfo, error) {
	var info bucketInfo

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		segments = nil
	}

	if strings.ContainsAny(u.Host, ".:") {
		scheme := "https://"
		if strings.HasPrefix(u.Host, "localhost") || strings.HasPrefix(u.Host, "127.0.0.1") {
			scheme = "http://"
		}
		info.endpoint = scheme + u.Host
	} else if u.Host != "" {
		segments = append([]string{u.Host}, segments...)
	}

	if len(segments) == 0 || segments[0] == "" {
		return info, errors.New("s3 destination needs a bucket")
	}

	info.bucket = segments[0]
	if len(segments) > 1 {
		info.prefix = strings.Join(segments[1:], "/") + "/"
	}

	info.region = u.Query().Get("region")
	if info.region == "" {
		info.region = os.Getenv("AWS_REGION")
	}
	if info.region == "" {
		info.region = defaultRegion
	}

	return info, nil
}

// NewS3Sink creates an S3Sink from an s3:// URL. Static credentials may be
// given as access-key-id and secret-access-key query parameters; otherwise the
// default AWS credential chain applies.
func NewS3Sink(ctx context.Context, u *url.URL, log *logrus.Logger) (*S3Sink, error) {
	info, err := parseS3URL(u)
	if err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(info.region)}

	q := u.Query()
	if id, secret := q.Get("access-key-id"), q.Get("secret-access-key"); id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		o.UsePathStyle = true
		if info.endpoint != "" {
			o.BaseEndpoint = aws.String(info.endpoint)
		}
	})

	return newS3Sink(client, info, log), nil
}

func newS3Sink(client s3API, info bucketInfo, log *logrus.Logger) *S3Sink {
	return &S3Sink{client: client, bucket: info.bucket, prefix: info.prefix, endpoint: info.endpoint, log: log}
}

func (s *S3Sink) objectKey(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	return s.prefix + k, nil
}

// Put implements Sink.
func (s *S3Sink) Put(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}

	in := &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String("application/gzip"),
		Body:        r,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("error storing s3 object to %s:%s: %w", s.bucket, objectKey, err)
	}

	s.log.WithFields(logrus.Fields{"bucket": s.bucket, "key": objectKey}).Debug("backup archive stored")

	return "s3://" + s.bucket + "/" + objectKey, nil
}

// Open implements Sink.
func (s *S3Sink) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("error reading s3 object %s:%s: %w", s.bucket, objectKey, err)
	}

	return out.Body, nil
}

// String implements Sink.
func (s *S3Sink) String() string {
	if s.endpoint != "" {
		return "s3://" + strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://") + "/" + s.bucket + "/" + s.prefix
	}

	return "s3://" + s.bucket + "/" + s.prefix
}
