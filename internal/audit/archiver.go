package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wanderlane/pricing-engine/internal/models"
)

// S3Archiver uploads version snapshots to object storage at paths like:
//
//	s3://<bucket>/<prefix>/versions/YYYY/MM/DD/v<version>.json
//
// Archived versions are never reactivated, so the snapshot is the durable
// record of what a version priced with while it was active.
type S3Archiver struct {
	bucket   string
	prefix   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Archiver creates an S3Archiver. Region and credentials are resolved
// from the environment by the SDK (AWS_REGION, AWS_PROFILE, key pair, etc.).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Archiver{
		bucket:   bucket,
		prefix:   prefix,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

type versionSnapshot struct {
	Version    models.PricingVersion `json:"version"`
	Rules      []models.PricingRule  `json:"rules"`
	ArchivedAt time.Time             `json:"archivedAt"`
}

// ArchiveVersion uploads the version together with the rule set it resolved
// to at activation time.
func (a *S3Archiver) ArchiveVersion(ctx context.Context, version models.PricingVersion, rules []models.PricingRule) error {
	snapshot := versionSnapshot{
		Version:    version,
		Rules:      rules,
		ArchivedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	ts := snapshot.ArchivedAt
	year, month, day := ts.Date()
	objectKey := path.Join(a.prefix, "versions",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		fmt.Sprintf("v%d.json", version.Version),
	)

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(objectKey),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", objectKey, err)
	}
	return nil
}
