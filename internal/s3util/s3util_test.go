package s3util

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
	err     error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]string), types: make(map[string]string)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := *in.Bucket + "/" + *in.Key
	f.objects[key] = string(data)
	f.types[key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(data))}, nil
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{"s3://stills/tests/cat.png", "stills", "tests/cat.png", true},
		{"s3://stills/", "", "", false},
		{"s3://stills", "", "", false},
		{"/local/cat.png", "", "", false},
	}

	for _, tt := range tests {
		bucket, key, ok := ParseURI(tt.uri)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("ParseURI(%q) = %q, %q, %v, want %q, %q, %v", tt.uri, bucket, key, ok, tt.bucket, tt.key, tt.ok)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"vd1_accuracy.txt": "text/plain; charset=utf-8",
		"metrics.jsonl":    "application/x-ndjson",
		"out.MP4":          "video/mp4",
		"Converted_a.png":  "image/png",
		"still.JPEG":       "image/jpeg",
		"classifier.zst":   "application/zstd",
		"unknown.bin":      "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestUploadDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"metrics.jsonl":                            "{}",
		"TEST/AccuracyLog/Circle/vd1_accuracy.txt": "50",
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	client := newFakeS3()
	n, err := UploadDirectory(context.Background(), client, "bucket", "runs/r1", dir)
	if err != nil {
		t.Fatalf("UploadDirectory() error = %v", err)
	}
	if n != 2 {
		t.Errorf("UploadDirectory() = %d, want 2", n)
	}

	var keys []string
	for k := range client.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"bucket/runs/r1/TEST/AccuracyLog/Circle/vd1_accuracy.txt", "bucket/runs/r1/metrics.jsonl"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("keys = %v, want %v", keys, want)
	}
	if client.objects[want[0]] != "50" {
		t.Errorf("content = %q, want 50", client.objects[want[0]])
	}
	if client.types[want[1]] != "application/x-ndjson" {
		t.Errorf("content type = %q", client.types[want[1]])
	}
}

func TestUploadFileError(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("access denied")
	client := newFakeS3()
	client.err = boom
	if err := UploadFile(context.Background(), client, "bucket", "a.txt", p); !errors.Is(err, boom) {
		t.Errorf("UploadFile() error = %v, want wrapping %v", err, boom)
	}
}

func TestDownloadToTempFile(t *testing.T) {
	client := newFakeS3()
	client.objects["stills/tests/cat.png"] = "png-bytes"

	path, cleanup, err := DownloadToTempFile(context.Background(), client, "stills", "tests/cat.png")
	if err != nil {
		t.Fatalf("DownloadToTempFile() error = %v", err)
	}
	if filepath.Base(path) != "cat.png" {
		t.Errorf("base name = %q, want cat.png", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("content = %q, %v", data, err)
	}

	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after cleanup: %v", err)
	}
}

func TestDownloadToTempFileMissing(t *testing.T) {
	if _, _, err := DownloadToTempFile(context.Background(), newFakeS3(), "stills", "missing.png"); err == nil {
		t.Error("DownloadToTempFile() error = nil, want error")
	}
}
