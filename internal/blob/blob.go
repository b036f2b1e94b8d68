// Package blob wraps MinIO object storage: presigned upload/download URLs
// for attachments, and direct put/get for room archive documents.
package blob

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"sealedchat/internal/apperr"
)

const (
	presignExpiry = 15 * time.Minute

	attachmentsPrefix = "attachments/"
	archivesPrefix     = "archives/"
)

type Store struct {
	client          *minio.Client
	attachmentsBucket string
	archivesBucket    string
}

type Config struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	AttachmentsBucket string
	ArchivesBucket    string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperr.Storage("failed to create minio client: %v", err)
	}

	s := &Store{
		client:            client,
		attachmentsBucket: cfg.AttachmentsBucket,
		archivesBucket:    cfg.ArchivesBucket,
	}
	if err := s.ensureBucket(ctx, cfg.AttachmentsBucket); err != nil {
		return nil, err
	}
	if err := s.ensureBucket(ctx, cfg.ArchivesBucket); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return apperr.Storage("failed to check bucket %s: %v", bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return apperr.Storage("failed to create bucket %s: %v", bucket, err)
	}
	return nil
}

// PresignedUploadURL issues a time-limited PUT URL for an attachment object
// key, so browsers upload directly to object storage rather than proxying
// through the application.
func (s *Store) PresignedUploadURL(ctx context.Context, objectKey string, contentType string) (*url.URL, error) {
	key := attachmentsPrefix + objectKey
	u, err := s.client.PresignedPutObject(ctx, s.attachmentsBucket, key, presignExpiry)
	if err != nil {
		return nil, apperr.Storage("failed to presign upload for %s: %v", objectKey, err)
	}
	return u, nil
}

// PresignedDownloadURL issues a time-limited GET URL for an attachment.
func (s *Store) PresignedDownloadURL(ctx context.Context, objectKey string) (*url.URL, error) {
	key := attachmentsPrefix + objectKey
	reqParams := make(url.Values)
	u, err := s.client.PresignedGetObject(ctx, s.attachmentsBucket, key, presignExpiry, reqParams)
	if err != nil {
		return nil, apperr.Storage("failed to presign download for %s: %v", objectKey, err)
	}
	return u, nil
}

// ObjectExists reports whether an attachment upload has actually landed,
// used before flipping an attachment row to available.
func (s *Store) ObjectExists(ctx context.Context, objectKey string) (bool, error) {
	key := attachmentsPrefix + objectKey
	_, err := s.client.StatObject(ctx, s.attachmentsBucket, key, minio.StatObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, apperr.Storage("failed to stat object %s: %v", objectKey, err)
	}
	return true, nil
}

// PutArchive writes a room's JSON archive document, keyed by archiveKey.
func (s *Store) PutArchive(ctx context.Context, archiveKey string, data []byte) error {
	key := archivesPrefix + archiveKey
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.archivesBucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return apperr.Storage("failed to put archive %s: %v", archiveKey, err)
	}
	return nil
}

// GetArchive reads back a room's archive document, used by the admin
// read-only transcript view.
func (s *Store) GetArchive(ctx context.Context, archiveKey string) ([]byte, error) {
	key := archivesPrefix + archiveKey
	obj, err := s.client.GetObject(ctx, s.archivesBucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperr.Storage("failed to get archive %s: %v", archiveKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, apperr.Storage("failed to read archive %s: %v", archiveKey, err)
	}
	return data, nil
}
