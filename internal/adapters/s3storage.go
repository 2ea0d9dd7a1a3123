package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"tarnhelm/internal/config"
	"tarnhelm/internal/core/ports"
)

// S3Client is the subset of the S3 API the backend relies on.
type S3Client interface {
	GetBucketLocation(ctx context.Context, params *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage error constants
var (
	ErrS3BucketEmpty = errors.New("bucket name cannot be empty")
	ErrS3ClientNil   = errors.New("S3 client cannot be nil")
)

// S3Storage implements the storage backend contract on an S3-compatible
// bucket with an optional key prefix. Identifiers presented to callers never
// include the prefix; wire operations join it and tolerate callers that
// already supply the prefixed form.
type S3Storage struct {
	client   S3Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   ports.Logger
}

// Compile-time check to ensure S3Storage implements ports.StorageBackend
var _ ports.StorageBackend = (*S3Storage)(nil)

// NewS3Storage builds the S3 backend and probes bucket reachability with a
// GetBucketLocation call; a failed probe aborts the run.
func NewS3Storage(ctx context.Context, accessKey string, secretKey string, bucket string, prefix string, logger ports.Logger) (*S3Storage, error) {
	if bucket == "" {
		return nil, ErrS3BucketEmpty
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		awsconfig.WithRetryMaxAttempts(config.S3MaxAttempts),
		awsconfig.WithRetryMode(aws.RetryModeStandard),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = config.S3PartSize
		u.Concurrency = config.S3Concurrency
	})

	storage := &S3Storage{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		logger:   logger,
	}

	location, err := client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return nil, ports.NewStorageError(ports.StorageUnreachable, bucket, err)
	}
	logger.Debug("S3 bucket reachable", "bucket", bucket, "region", string(location.LocationConstraint))

	return storage, nil
}

// NewS3StorageWithClient wires an existing client; the reachability probe and
// the multipart uploader are skipped so uploads fall back to single-shot
// PutObject.
func NewS3StorageWithClient(client S3Client, bucket string, prefix string, logger ports.Logger) (*S3Storage, error) {
	if client == nil {
		return nil, ErrS3ClientNil
	}
	if bucket == "" {
		return nil, ErrS3BucketEmpty
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger,
	}, nil
}

// fullKey joins the configured prefix, tolerating ids that already carry it.
func (s *S3Storage) fullKey(id string) string {
	id = filepath.ToSlash(id)
	if s.prefix == "" {
		return id
	}
	normalized := strings.TrimSuffix(s.prefix, "/") + "/"
	if strings.HasPrefix(id, normalized) {
		return id
	}
	return normalized + id
}

// stripKey removes the configured prefix from a wire key.
func (s *S3Storage) stripKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, strings.TrimSuffix(s.prefix, "/")+"/")
}

// List pages through the bucket under the configured prefix and returns the
// matching object keys with the prefix stripped.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.fullKey(prefix)

	var ids []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, ports.NewStorageError(ports.StorageTransport, fullPrefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil {
				ids = append(ids, s.stripKey(*obj.Key))
			}
		}
	}

	return ids, nil
}

// Exists checks presence with HeadObject, distinguishing a missing key from
// a transport failure.
func (s *S3Storage) Exists(ctx context.Context, id string) (bool, error) {
	key := s.fullKey(id)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		s.logger.Trace("S3 object exists", "key", key)
		return true, nil
	}
	if isNotFound(err) {
		s.logger.Debug("S3 object does not exist", "key", key)
		return false, nil
	}
	return false, ports.NewStorageError(ports.StorageTransport, id, err)
}

// Put uploads the staged archive, using multipart upload when the backend
// was built with real credentials.
func (s *S3Storage) Put(ctx context.Context, localPath string, id string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}
	defer file.Close()

	key := s.fullKey(id)
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   file,
	}

	if s.uploader != nil {
		_, err = s.uploader.Upload(ctx, input)
	} else {
		_, err = s.client.PutObject(ctx, input)
	}
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}

	s.logger.Debug("S3 upload", "key", key)
	return nil
}

// Get streams the object into localPath in fixed-size chunks and returns the
// destination.
func (s *S3Storage) Get(ctx context.Context, id string, localPath string) (string, error) {
	key := s.fullKey(id)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", ports.NewStorageError(ports.StorageNotFound, id, err)
		}
		return "", ports.NewStorageError(ports.StorageTransport, id, err)
	}
	defer result.Body.Close()

	out, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, config.FilePermission)
	if err != nil {
		return "", ports.NewStorageError(ports.StorageTransport, id, err)
	}

	buf := make([]byte, config.DownloadChunkSize)
	_, err = io.CopyBuffer(out, result.Body, buf)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", ports.NewStorageError(ports.StorageTransport, id, err)
	}

	return localPath, nil
}

// Rename copies the object to its new key, reads the copy back, and only
// then deletes the source. A copy that cannot be verified leaves the source
// in place.
func (s *S3Storage) Rename(ctx context.Context, oldID string, newID string) error {
	oldKey := s.fullKey(oldID)
	newKey := s.fullKey(newID)

	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(newKey),
		CopySource: aws.String(s.bucket + "/" + oldKey),
	})
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, oldID, err)
	}

	copied, err := s.Exists(ctx, newKey)
	if err != nil {
		return err
	}
	if !copied {
		return ports.NewStorageError(ports.StorageCopyNotVerified, newID,
			fmt.Errorf("copied object not found after copy operation"))
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(oldKey),
	}); err != nil {
		return ports.NewStorageError(ports.StorageTransport, oldID, err)
	}

	s.logger.Debug("S3 rename", "from", oldKey, "to", newKey)
	return nil
}

// Delete removes a single object.
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	key := s.fullKey(id)
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return ports.NewStorageError(ports.StorageTransport, id, err)
	}

	s.logger.Info("S3 delete", "key", key)
	return nil
}

// DeleteMany removes up to the S3 batch maximum of objects in one call. An
// empty batch succeeds without a wire call.
func (s *S3Storage) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		s.logger.Warn("no keys provided for deletion")
		return nil
	}
	if len(ids) > config.S3MaxDeleteBatch {
		return ports.NewStorageError(ports.StorageBatchTooLarge, "",
			fmt.Errorf("cannot delete more than %d objects at once, got %d", config.S3MaxDeleteBatch, len(ids)))
	}

	objects := make([]types.ObjectIdentifier, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.fullKey(id))})
	}

	result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return ports.NewStorageError(ports.StorageTransport, "", err)
	}

	for _, deleted := range result.Deleted {
		if deleted.Key != nil {
			s.logger.Debug("S3 delete", "key", *deleted.Key)
		}
	}
	if len(result.Errors) > 0 {
		for _, batchErr := range result.Errors {
			s.logger.Error("S3 batch delete failure",
				"key", aws.ToString(batchErr.Key),
				"code", aws.ToString(batchErr.Code),
				"message", aws.ToString(batchErr.Message))
		}
		return ports.NewStorageError(ports.StorageTransport, "",
			fmt.Errorf("%d objects failed to delete", len(result.Errors)))
	}

	s.logger.Info("S3 batch delete", "count", len(result.Deleted))
	return nil
}

// isNotFound reports whether an S3 error means the object does not exist.
// HeadObject reports a bare 404 rather than a typed NoSuchKey.
func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
