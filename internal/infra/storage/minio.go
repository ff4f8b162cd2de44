package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// objectPutter is the slice of *minio.Client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store writes reports as JSON objects. It implements safeguarding.ReportSink.
type Store struct {
	client     objectPutter
	bucketName string
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket}, nil
}

// ReportKey is the object key of a report: <tenant>/reports/<id>.json.
func ReportKey(tenant, reportID string) (string, error) {
	for _, part := range []string{tenant, reportID} {
		if part == "" || strings.ContainsAny(part, `/\`) || part == "." || part == ".." {
			return "", fmt.Errorf("invalid object key component %q", part)
		}
	}
	return path.Join(tenant, "reports", reportID+".json"), nil
}

// Store uploads rep and returns its object URL.
func (s *Store) Store(ctx context.Context, tenant string, rep *safeguarding.SafeguardingReport) (string, error) {
	if rep == nil {
		return "", errors.New("nil report")
	}
	key, err := ReportKey(tenant, rep.ID)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(rep)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"session-id": rep.SessionID,
			"risk-level": string(rep.Summary.OverallRiskLevel),
		},
	})
	if err != nil {
		return "", err
	}

	// URL internal; bucket report tidak pernah public
	return fmt.Sprintf("s3://%s/%s", s.bucketName, key), nil
}
