package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/liquidgecka/seriespack/internal/sloghelper"
	"github.com/liquidgecka/seriespack/storage/iohelp"
)

// The subset of the S3 API used by S3Store. *s3.S3 implements it.
type S3API interface {
	GetObjectWithContext(
		aws.Context,
		*s3.GetObjectInput,
		...request.Option,
	) (*s3.GetObjectOutput, error)
	PutObjectWithContext(
		aws.Context,
		*s3.PutObjectInput,
		...request.Option,
	) (*s3.PutObjectOutput, error)
}

// A Store backed by Amazon S3.
type S3Store struct {
	// The client used for every request.
	Client S3API

	// Logging for request failures. May be nil.
	Logger *slog.Logger

	// Buckets encrypted with SSE-KMS do not return the MD5 of the data as
	// the ETag. Setting this skips the ETag comparison after uploads; the
	// Content-MD5 header still makes S3 reject corrupted bodies.
	SkipETagCheck bool
}

// Fetches an object from S3.
func (s *S3Store) GetObject(
	ctx context.Context,
	bucket, key string,
) (*Object, error) {
	l := sloghelper.OrDiscard(s.Logger)
	goi := s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}
	goo, err := s.Client.GetObjectWithContext(ctx, &goi)
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			switch awsErr.Code() {
			case s3.ErrCodeNoSuchBucket:
				return nil, ErrNoSuchBucket(bucket)
			case s3.ErrCodeNoSuchKey, "NotFound":
				return nil, ErrNotFound(bucket + "/" + key)
			}
		}
		l.LogAttrs(
			ctx,
			slog.LevelDebug,
			"Error calling s3:GetObject.",
			sloghelper.String("bucket", bucket),
			sloghelper.String("key", key),
			sloghelper.Error("error", err))
		return nil, errors.Wrapf(err, "s3:GetObject %s/%s", bucket, key)
	}
	defer goo.Body.Close()

	// Read the body, bounded by the advertised length when S3 sent one.
	obj := &Object{
		Bucket: bucket,
		Key:    key,
	}
	if goo.LastModified != nil {
		obj.LastModified = *goo.LastModified
	} else {
		obj.LastModified = time.Now()
	}
	buffer := bytes.Buffer{}
	body := goo.Body
	if goo.ContentLength != nil {
		buffer.Grow(int(*goo.ContentLength))
		body = newBoundedBody(goo.Body, *goo.ContentLength)
	}
	_, _, rerr := iohelp.Copy(&buffer, body)
	if e, ok := rerr.(ErrInvalidLength); ok {
		return nil, e
	} else if rerr != nil {
		return nil, errors.Wrapf(rerr, "reading %s/%s", bucket, key)
	}
	obj.Body = buffer.Bytes()
	return obj, nil
}

// Uploads body to S3 as a single PutObject call with a Content-MD5 header,
// then verifies the returned ETag against the local hash.
func (s *S3Store) PutObject(
	ctx context.Context,
	bucket, key string,
	body []byte,
) error {
	l := sloghelper.OrDiscard(s.Logger)
	sum := md5.Sum(body)
	base64Hash := base64.StdEncoding.EncodeToString(sum[:])
	hexHash := hex.EncodeToString(sum[:])
	size := int64(len(body))
	poi := s3.PutObjectInput{
		Bucket:        &bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentLength: &size,
		ContentMD5:    &base64Hash,
		ContentType:   aws.String("application/zip"),
	}
	poo, err := s.Client.PutObjectWithContext(ctx, &poi)
	if err != nil {
		if awsErr, ok := err.(awserr.Error); ok {
			if awsErr.Code() == s3.ErrCodeNoSuchBucket {
				return ErrNoSuchBucket(bucket)
			}
		}
		l.LogAttrs(
			ctx,
			slog.LevelDebug,
			"Error calling s3:PutObject.",
			sloghelper.String("bucket", bucket),
			sloghelper.String("key", key),
			sloghelper.Error("error", err))
		return errors.Wrapf(err, "s3:PutObject %s/%s", bucket, key)
	}

	// Validate that the uploaded content matches the expected sum.
	if !s.SkipETagCheck && poo.ETag != nil {
		if etag := strings.Trim(*poo.ETag, `"`); etag != hexHash {
			return ErrChecksumMismatch{
				Bucket:   bucket,
				Key:      key,
				Expected: hexHash,
				Returned: etag,
			}
		}
	}
	l.LogAttrs(
		ctx,
		slog.LevelDebug,
		"Successfully uploaded to S3.",
		sloghelper.String("bucket", bucket),
		sloghelper.String("key", key),
		sloghelper.Bytes("size", size))
	return nil
}
