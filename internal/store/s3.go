package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/result"
)

// S3Config configures an S3 (or MinIO) backed store.
type S3Config struct {
	Bucket string
	Region string
	// BaseEndpoint overrides the endpoint, e.g. for MinIO.
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	// Prefix is prepended to every object key.
	Prefix string
}

// S3 implements Store over an S3 bucket using conditional requests: the
// object ETag plays the role of the content hash, If-Match guards updates
// and deletes, and If-None-Match: * guards create-only writes.
type S3 struct {
	cfg    S3Config
	client *s3.Client
	log    logging.Logger
}

// NewS3 constructs an S3 store.
func NewS3(ctx context.Context, cfg S3Config, log logging.Logger) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
		o.UsePathStyle = cfg.BaseEndpoint != ""
	})

	return &S3{cfg: cfg, client: client, log: log.With("store", "s3", "bucket", cfg.Bucket)}, nil
}

func (s *S3) key(path string) string {
	if s.cfg.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + path
}

// classifyS3 maps SDK errors onto the store's closed error set.
func classifyS3(path string, err error) *Error {
	var noKey *s3types.NoSuchKey
	var notFoundErr *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFoundErr) {
		return notFound(path)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return notFound(path)
		case "PreconditionFailed", "ConditionalRequestConflict":
			return conflict(path)
		}
	}
	return transport(path, err)
}

func etagHash(etag *string) string {
	return strings.Trim(aws.ToString(etag), `"`)
}

func (s *S3) GetFileInfo(ctx context.Context, path string) result.Result[FileInfo, *Error] {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return result.Err[FileInfo](classifyS3(path, err))
	}
	return result.Ok[FileInfo, *Error](FileInfo{
		Path: path,
		Hash: etagHash(out.ETag),
		Size: aws.ToInt64(out.ContentLength),
	})
}

func (s *S3) ReadFile(ctx context.Context, path string) result.Result[File, *Error] {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return result.Err[File](classifyS3(path, err))
	}
	defer out.Body.Close()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return result.Err[File](transport(path, err))
	}
	return result.Ok[File, *Error](File{Path: path, Hash: etagHash(out.ETag), Content: content})
}

func (s *S3) WriteFile(ctx context.Context, path string, content []byte, expectedHash string) result.Result[string, *Error] {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(path)),
		Body:   bytes.NewReader(content),
	}
	if expectedHash == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(`"` + expectedHash + `"`)
	}

	out, err := s.client.PutObject(ctx, in)
	if err != nil {
		return result.Err[string](classifyS3(path, err))
	}
	return result.Ok[string, *Error](etagHash(out.ETag))
}

func (s *S3) DeleteFile(ctx context.Context, path string, expectedHash string) result.Result[result.Unit, *Error] {
	// DeleteObject is a no-op (still 204) for absent keys, so presence is
	// verified first to honor the NotFound contract.
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return result.Err[result.Unit](classifyS3(path, err))
	}
	if etagHash(head.ETag) != expectedHash {
		return result.Err[result.Unit](conflict(path))
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket:  aws.String(s.cfg.Bucket),
		Key:     aws.String(s.key(path)),
		IfMatch: aws.String(`"` + expectedHash + `"`),
	})
	if err != nil {
		return result.Err[result.Unit](classifyS3(path, err))
	}
	return result.Ok[result.Unit, *Error](result.Unit{})
}

var _ Store = (*S3)(nil)
