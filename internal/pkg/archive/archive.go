// Package archive keeps raw payment webhook payloads in S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/internal/pkg/config"
)

// ObjectPutter is the part of the S3 client the archive needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Archive struct {
	client ObjectPutter
	bucket string
}

// New creates an archive from configuration. It returns nil when archiving
// is disabled; a nil *Archive accepts and drops every payload.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archive, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Webhook payloads will be archived to bucket %s", cfg.Bucket)
	return NewWithClient(client, cfg.Bucket), nil
}

func NewWithClient(client ObjectPutter, bucket string) *Archive {
	return &Archive{client: client, bucket: bucket}
}

// ObjectKey returns webhooks/YYYY/MM/<event-id>.json for the event.
func ObjectKey(eventID string, at time.Time) string {
	safe := strings.NewReplacer(":", "_", "/", "_", " ", "_").Replace(eventID)
	at = at.UTC()
	return fmt.Sprintf("webhooks/%04d/%02d/%s.json", at.Year(), int(at.Month()), safe)
}

// StoreWebhook uploads one raw payload
func (a *Archive) StoreWebhook(ctx context.Context, eventID string, at time.Time, payload []byte) error {
	if a == nil {
		return nil
	}
	key := ObjectKey(eventID, at)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive webhook %s: %w", key, err)
	}
	return nil
}
