// Package archivesvc keeps session artifacts in S3-compatible object storage.
package archivesvc

import (
	"context"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core"
	"github.com/trezcool/drowsiness/core/drowsiness"
)

type MinioArchiver struct {
	client *minio.Client
	bucket string
}

var _ drowsiness.Archiver = (*MinioArchiver)(nil)

// NewMinioArchiver connects to the object store and creates the bucket if needed.
func NewMinioArchiver(ctx context.Context, conf core.ArchiveConfig) (*MinioArchiver, error) {
	client, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKey, conf.SecretKey, ""),
		Secure: conf.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating object store client")
	}

	exists, err := client.BucketExists(ctx, conf.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, "checking bucket")
	}
	if !exists {
		if err = client.MakeBucket(ctx, conf.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	return &MinioArchiver{client: client, bucket: conf.Bucket}, nil
}

func objectKey(sessionID, file string) string {
	return path.Join(sessionID, filepath.Base(file))
}

func contentType(file string) string {
	switch filepath.Ext(file) {
	case ".csv":
		return "text/csv"
	case ".zst":
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// Archive uploads each file under {bucket}/{session}/{file name}.
func (a *MinioArchiver) Archive(ctx context.Context, sessionID string, paths ...string) error {
	for _, p := range paths {
		_, err := a.client.FPutObject(ctx, a.bucket, objectKey(sessionID, p), p, minio.PutObjectOptions{
			ContentType: contentType(p),
		})
		if err != nil {
			return errors.Wrapf(err, "uploading %s", filepath.Base(p))
		}
	}
	return nil
}
