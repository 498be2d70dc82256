// Package s3store implements store.Store on any S3-compatible service.
//
// Key layout inside the bucket: every object lives under "<container>/<name>"
// and each container owns a zero-byte marker at ".containers/<container>"
// carrying the container metadata. Listing containers therefore pages marker
// keys in exact name order. The marker prefix is reserved; the auth layer
// never creates a container with that name.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"ostiary.org/internal/store"
)

const markerPrefix = ".containers/"

// Config carries the connection settings for the bucket holding auth records.
type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Store talks to a single bucket through the AWS SDK.
type Store struct {
	client *s3.Client
	bucket string
}

// New builds the S3 client with static credentials and an optional custom
// endpoint (MinIO and friends).
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3store: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// NewWithClient wires an existing client, used by tests.
func NewWithClient(client *s3.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) EnsureContainer(ctx context.Context, container string, meta map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(markerKey(container)),
		Body:        bytes.NewReader(nil),
		Metadata:    store.NormalizeMeta(meta),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if preconditionFailed(err) {
			return nil
		}
		return fmt.Errorf("s3store: ensure container %s: %w", container, err)
	}
	return nil
}

func (s *Store) ContainerMeta(ctx context.Context, container string) (map[string]string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(markerKey(container)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: head container %s: %w", container, err)
	}
	return store.NormalizeMeta(out.Metadata), nil
}

func (s *Store) DeleteContainer(ctx context.Context, container string) error {
	if _, err := s.ContainerMeta(ctx, container); err != nil {
		return err
	}
	page, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(container + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return fmt.Errorf("s3store: list container %s: %w", container, err)
	}
	if len(page.Contents) > 0 {
		return store.ErrNotEmpty
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(markerKey(container)),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete container %s: %w", container, err)
	}
	return nil
}

func (s *Store) ListContainers(ctx context.Context, marker string, limit int) ([]string, error) {
	return s.listKeys(ctx, markerPrefix, marker, limit)
}

func (s *Store) ListObjects(ctx context.Context, container, marker string, limit int) ([]string, error) {
	if _, err := s.ContainerMeta(ctx, container); err != nil {
		return nil, err
	}
	return s.listKeys(ctx, container+"/", marker, limit)
}

func (s *Store) listKeys(ctx context.Context, prefix, marker string, limit int) ([]string, error) {
	if limit <= 0 || limit > store.DefaultPageSize {
		limit = store.DefaultPageSize
	}
	startAfter := prefix
	if marker != "" {
		startAfter = prefix + marker
	}
	names := make([]string, 0, limit)
	input := &s3.ListObjectsV2Input{
		Bucket:     aws.String(s.bucket),
		Prefix:     aws.String(prefix),
		StartAfter: aws.String(startAfter),
	}
	for len(names) < limit {
		remaining := int32(limit - len(names))
		input.MaxKeys = aws.Int32(remaining)
		page, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("s3store: list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.ToString(obj.Key), prefix))
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
		input.StartAfter = nil
	}
	return names, nil
}

func (s *Store) GetObject(ctx context.Context, container, object string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(container, object)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: get %s/%s: %w", container, object, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3store: read %s/%s: %w", container, object, err)
	}
	return data, nil
}

func (s *Store) HeadObject(ctx context.Context, container, object string) (map[string]string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(container, object)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("s3store: head %s/%s: %w", container, object, err)
	}
	return store.NormalizeMeta(out.Metadata), nil
}

func (s *Store) PutObject(ctx context.Context, container, object string, data []byte, meta map[string]string) error {
	return s.put(ctx, container, object, data, meta, false)
}

func (s *Store) PutObjectIfAbsent(ctx context.Context, container, object string, data []byte, meta map[string]string) error {
	return s.put(ctx, container, object, data, meta, true)
}

func (s *Store) put(ctx context.Context, container, object string, data []byte, meta map[string]string, ifAbsent bool) error {
	if _, err := s.ContainerMeta(ctx, container); err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(objectKey(container, object)),
		Body:     bytes.NewReader(data),
		Metadata: store.NormalizeMeta(meta),
	}
	if ifAbsent {
		input.IfNoneMatch = aws.String("*")
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		if ifAbsent && preconditionFailed(err) {
			return store.ErrExists
		}
		return fmt.Errorf("s3store: put %s/%s: %w", container, object, err)
	}
	return nil
}

func (s *Store) SetObjectMeta(ctx context.Context, container, object string, meta map[string]string) error {
	key := objectKey(container, object)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(key),
		CopySource:        aws.String(url.PathEscape(s.bucket + "/" + key)),
		Metadata:          store.NormalizeMeta(meta),
		MetadataDirective: types.MetadataDirectiveReplace,
	})
	if err != nil {
		if isNotFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("s3store: set meta %s/%s: %w", container, object, err)
	}
	return nil
}

func (s *Store) DeleteObject(ctx context.Context, container, object string) error {
	if _, err := s.HeadObject(ctx, container, object); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(container, object)),
	})
	if err != nil {
		return fmt.Errorf("s3store: delete %s/%s: %w", container, object, err)
	}
	return nil
}

func markerKey(container string) string {
	return markerPrefix + container
}

func objectKey(container, object string) string {
	return container + "/" + object
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "NoSuchBucket"
	}
	return false
}

func preconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}
