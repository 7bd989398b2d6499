// Package s3 stores uploaded documents in a bucket, encrypted at rest, and
// signs the direct-upload and viewer URLs.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"intake-backend/internal/shared/storage/object"
)

const defaultReadURLTTL = 15 * time.Minute

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store implements object.ObjectStore on S3.
type Store struct {
	api      objectAPI
	presign  presignAPI
	bucket   string
	prefix   string
	kmsKeyID string
}

// New loads the default AWS config and builds a store for bucket. Keys are
// written under prefix when it is set.
func New(ctx context.Context, region, bucket, prefix, kmsKeyID string) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return newStore(client, s3.NewPresignClient(client), bucket, prefix, kmsKeyID), nil
}

func newStore(api objectAPI, presign presignAPI, bucket, prefix, kmsKeyID string) *Store {
	return &Store{
		api:      api,
		presign:  presign,
		bucket:   strings.TrimSpace(bucket),
		prefix:   strings.Trim(strings.TrimSpace(prefix), "/"),
		kmsKeyID: strings.TrimSpace(kmsKeyID),
	}
}

func (s *Store) objectKey(key string) (string, error) {
	if err := object.ValidateKey(key); err != nil {
		return "", err
	}
	return applyPrefix(s.prefix, key), nil
}

func (s *Store) encrypt(in *s3.PutObjectInput) {
	if s.kmsKeyID != "" {
		in.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		in.SSEKMSKeyId = aws.String(s.kmsKeyID)
		return
	}
	in.ServerSideEncryption = s3types.ServerSideEncryptionAes256
}

// Put uploads r to key with server-side encryption.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return 0, err
	}
	counter := &countingReader{r: r}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        counter,
		ContentType: aws.String(contentType),
	}
	s.encrypt(in)
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return 0, fmt.Errorf("s3 put bucket=%s key=%s: %w", s.bucket, objectKey, err)
	}
	return counter.n, nil
}

// Open streams the object body.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, s.wrap("get", objectKey, err)
	}
	return out.Body, nil
}

// Stat reads the object's size and content type without fetching it.
func (s *Store) Stat(ctx context.Context, key string) (object.Info, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return object.Info{}, err
	}
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return object.Info{}, s.wrap("head", objectKey, err)
	}
	return object.Info{Size: aws.ToInt64(out.ContentLength), ContentType: aws.ToString(out.ContentType)}, nil
}

// ReadURL presigns a GET for the staff viewer.
func (s *Store) ReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = defaultReadURLTTL
	}
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", s.wrap("presign get", objectKey, err)
	}
	return out.URL, nil
}

// PresignPut returns a URL the client portal PUTs a file to. The signature
// pins the content type and the encryption headers.
func (s *Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		ContentType: aws.String(contentType),
	}
	s.encrypt(in)
	out, err := s.presign.PresignPutObject(ctx, in, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", s.wrap("presign put", objectKey, err)
	}
	return out.URL, nil
}

func (s *Store) wrap(op, objectKey string, err error) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: s3 %s bucket=%s key=%s", object.ErrNotFound, op, s.bucket, objectKey)
	}
	return fmt.Errorf("s3 %s bucket=%s key=%s: %w", op, s.bucket, objectKey, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func applyPrefix(prefix, key string) string {
	key = strings.TrimLeft(key, "/")
	prefix = strings.Trim(prefix, "/")
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "/" + key
	}
}

var _ object.ObjectStore = (*Store)(nil)
