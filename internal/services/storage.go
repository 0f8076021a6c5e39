package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/barrelhouse/distro-admin/internal/models"
)

// logoURLExpiry is how long presigned logo download links stay valid
const logoURLExpiry = 24 * time.Hour

// LogoStorage keeps entity logo files in an S3-compatible bucket. Objects
// are keyed by entity kind and id so re-uploads replace the old logo.
type LogoStorage struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewLogoStorage creates a storage client against an S3-compatible endpoint
func NewLogoStorage(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool) (*LogoStorage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &LogoStorage{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}, nil
}

// EnsureBucket creates the logo bucket if it doesn't exist
func (s *LogoStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// logoKey builds the stable object key for one entity's logo
func logoKey(kind models.EntityKind, entityID int, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		ext = ".png"
	}
	return fmt.Sprintf("logos/%s/%d%s", kind, entityID, ext)
}

// UploadLogo stores one entity's logo and returns its object key
func (s *LogoStorage) UploadLogo(ctx context.Context, kind models.EntityKind, entityID int, fileName string, reader io.Reader, size int64, contentType string) (string, error) {
	key := logoKey(kind, entityID, fileName)
	_, err := s.client.PutObject(ctx, s.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload logo: %w", err)
	}
	return key, nil
}

// LogoURL generates a presigned download URL for a stored logo
func (s *LogoStorage) LogoURL(ctx context.Context, key string) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, key, logoURLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url.String(), nil
}

// DeleteLogo removes a stored logo
func (s *LogoStorage) DeleteLogo(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete logo: %w", err)
	}
	return nil
}
