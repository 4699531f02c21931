package s3util

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/video-sequence-learning/internal/filehandler"
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ PutObjectAPI = (*s3.Client)(nil)

// artifactTypes maps the non-media run artifacts to their MIME types.
var artifactTypes = map[string]string{
	".txt":   "text/plain; charset=utf-8",
	".jsonl": "application/x-ndjson",
	".json":  "application/json",
	".zst":   "application/zstd",
}

// ContentType returns the MIME type uploaded for a file name. Images and
// videos use the media tables of filehandler.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, err := filehandler.GetMIMEType(ext); err == nil {
		return ct
	}
	if ct, ok := artifactTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// UploadFile uploads a local file to s3://bucket/key.
func UploadFile(ctx context.Context, client PutObjectAPI, bucket, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	contentType := ContentType(localPath)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
		Tagging:     ProjectTagging(),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", filepath.Base(localPath), bucket, key, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Uploaded to S3")
	return nil
}

// UploadDirectory uploads every regular file under dir to bucket, keyed by
// prefix joined with the file's slash-separated path relative to dir. It
// returns the number of files uploaded.
func UploadDirectory(ctx context.Context, client PutObjectAPI, bucket, prefix, dir string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if err := UploadFile(ctx, client, bucket, key, p); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("upload directory %s: %w", dir, err)
	}

	log.Info().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Int("files", uploaded).
		Msg("Directory uploaded to S3")

	return uploaded, nil
}
