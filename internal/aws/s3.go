package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// defaultRegionHint is used to locate a bucket when the profile has no region
const defaultRegionHint = "us-east-1"

// S3Scheme prefixes object locations given on the command line
const S3Scheme = "s3://"

// S3Location identifies an object in a bucket
type S3Location struct {
	Bucket string
	Key    string
}

func (l S3Location) String() string {
	return S3Scheme + l.Bucket + "/" + l.Key
}

// IsS3URI reports whether uri uses the s3:// scheme
func IsS3URI(uri string) bool {
	return strings.HasPrefix(uri, S3Scheme)
}

// ParseS3URI splits s3://bucket/key into its parts
func ParseS3URI(uri string) (S3Location, error) {
	if !IsS3URI(uri) {
		return S3Location{}, fmt.Errorf("not an S3 URI: %s", uri)
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(uri, S3Scheme), "/")
	if !ok || bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return S3Location{}, fmt.Errorf("S3 URI must name an object: %s", uri)
	}
	return S3Location{Bucket: bucket, Key: key}, nil
}

// Download reads the whole object at loc into memory
func Download(ctx context.Context, downloader s3manageriface.DownloaderAPI, loc S3Location) ([]byte, error) {
	buf := aws.NewWriteAtBuffer(nil)
	_, err := downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", loc, err)
	}
	return buf.Bytes(), nil
}

// BucketRegion looks up the region bucket lives in. The session's region is
// only a hint, so it works for profiles without a region.
func BucketRegion(ctx context.Context, sess *session.Session, bucket string) (string, error) {
	hint := aws.StringValue(sess.Config.Region)
	if hint == "" {
		hint = defaultRegionHint
	}

	svc := s3.New(sess, aws.NewConfig().WithRegion(hint))
	region, err := s3manager.GetBucketRegionWithClient(ctx, svc, bucket)
	if err != nil {
		return "", fmt.Errorf("failed to find region of bucket %s: %w", bucket, err)
	}
	return region, nil
}
