package export

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores rendered map snapshots in S3-compatible object storage, one
// object per cycle per capture time.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to object storage and ensures the snapshot bucket.
func NewArchive(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Archive, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		log.Printf("export: created snapshot bucket %s", bucket)
	}

	return &Archive{client: client, bucket: bucket}, nil
}

// SaveSnapshot uploads one rendered snapshot and returns its object name.
func (a *Archive) SaveSnapshot(ctx context.Context, cycleID string, result *Result) (string, error) {
	objectName := fmt.Sprintf("%s/%s-%s", cycleID, time.Now().UTC().Format("20060102T150405Z"), result.Filename)
	_, err := a.client.PutObject(ctx, a.bucket, objectName,
		bytes.NewReader(result.Data), int64(len(result.Data)),
		minio.PutObjectOptions{ContentType: result.MimeType})
	if err != nil {
		return "", fmt.Errorf("upload snapshot %s: %w", objectName, err)
	}
	return objectName, nil
}

// ListSnapshots returns the stored object names for a cycle, newest last.
func (a *Archive) ListSnapshots(ctx context.Context, cycleID string) ([]string, error) {
	var names []string
	for object := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{
		Prefix:    cycleID + "/",
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("list snapshots: %w", object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}
