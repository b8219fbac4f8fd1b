package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL prefixes object keys in returned locations. Without it an s3:// URI is
	// returned.
	PublicURL string
}

// S3Archiver stores call recordings in an S3 compatible bucket.
type S3Archiver struct {
	client    s3iface.S3API
	bucket    string
	publicURL string
}

func NewS3Archiver(cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket required")
	}
	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("archive: s3 session: %w", err)
	}
	return NewS3ArchiverWithClient(s3.New(sess), cfg.Bucket, cfg.PublicURL), nil
}

func NewS3ArchiverWithClient(client s3iface.S3API, bucket, publicURL string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

// ObjectKey is recordings/<yyyy>/<mm>/<id>.wav, bucketed by the UTC call month.
func ObjectKey(callID int64, occurredAt time.Time) string {
	t := occurredAt.UTC()
	return fmt.Sprintf("recordings/%04d/%02d/%d.wav", t.Year(), int(t.Month()), callID)
}

// Archive uploads the recording and returns its location.
func (a *S3Archiver) Archive(ctx context.Context, callID int64, occurredAt time.Time, audio []byte) (string, error) {
	key := ObjectKey(callID, occurredAt)
	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/wav"),
		Metadata: map[string]*string{
			"call-id": aws.String(fmt.Sprint(callID)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}
	if a.publicURL != "" {
		return a.publicURL + "/" + key, nil
	}
	return "s3://" + a.bucket + "/" + key, nil
}

// Delete removes an archived recording; a missing object is not an error.
func (a *S3Archiver) Delete(ctx context.Context, callID int64, occurredAt time.Time) error {
	key := ObjectKey(callID, occurredAt)
	_, err := a.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", key, err)
	}
	return nil
}
