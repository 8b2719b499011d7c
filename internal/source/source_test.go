package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"wrpl-inspect/internal/config"
)

func TestLocate(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		strategy Strategy
		want     int
		header   [2]byte
		err      error
	}{
		{"default compression", []byte{0x00, 0x11, 0x78, 0x9C, 0x01}, StrategyHeader, 2, [2]byte{0x78, 0x9C}, nil},
		{"header order beats position", []byte{0x78, 0xDA, 0x00, 0x78, 0x01}, StrategyHeader, 3, [2]byte{0x78, 0x01}, nil},
		{"best compression", []byte{0xFF, 0x78, 0xDA}, StrategyHeader, 1, [2]byte{0x78, 0xDA}, nil},
		{"uncommon level missed by header", []byte{0x00, 0x78, 0x5E}, StrategyHeader, 0, [2]byte{}, ErrNotFound},
		{"uncommon level found by checksum", []byte{0x00, 0x78, 0x5E}, StrategyChecksum, 1, [2]byte{0x78, 0x5E}, nil},
		{"checksum takes first valid", []byte{0x78, 0x00, 0x78, 0xDA, 0x78, 0x01}, StrategyChecksum, 2, [2]byte{0x78, 0xDA}, nil},
		{"nothing", []byte{0x01, 0x02, 0x78}, StrategyChecksum, 0, [2]byte{}, ErrNotFound},
		{"empty", nil, StrategyHeader, 0, [2]byte{}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := Locate(tt.data, tt.strategy)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if err != nil {
				return
			}
			if loc.Offset != tt.want || loc.Header != tt.header {
				t.Errorf("Locate = %+v, want offset %d header %x", loc, tt.want, tt.header)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	for name, want := range map[string]Strategy{"": StrategyHeader, "header": StrategyHeader, "checksum": StrategyChecksum} {
		got, err := ParseStrategy(name)
		if err != nil || got != want {
			t.Errorf("ParseStrategy(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseStrategy("magic"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri         string
		bucket, key string
		ok          bool
	}{
		{"s3://replays/2024/a.wrpl", "replays", "2024/a.wrpl", true},
		{"s3://replays/", "", "", false},
		{"s3://replays", "", "", false},
		{"/tmp/a.wrpl", "", "", false},
	}
	for _, tt := range tests {
		bucket, key, ok := ParseS3URI(tt.uri)
		if bucket != tt.bucket || key != tt.key || ok != tt.ok {
			t.Errorf("ParseS3URI(%q) = %q, %q, %v", tt.uri, bucket, key, ok)
		}
	}
}

func TestOpener_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wrpl")
	if err := os.WriteFile(path, []byte("replay"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, err := (&Opener{}).Open(context.Background(), path)
	if err != nil || string(data) != "replay" {
		t.Fatalf("Open = %q, %v", data, err)
	}

	if _, err := (&Opener{MaxBytes: 3}).Open(context.Background(), path); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	if _, err := (&Opener{}).Open(context.Background(), path+".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want not exist", err)
	}
}

// fakeS3 is a test ObjectGetter that records requests.
type fakeS3 struct {
	objects map[string][]byte
	bucket  string
	key     string
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	data, ok := f.objects[f.bucket+"/"+f.key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func TestOpener_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"replays/x/1.wrpl": []byte("zlib")}}
	o := &Opener{S3: fake}

	data, err := o.Open(context.Background(), "s3://replays/x/1.wrpl")
	if err != nil || string(data) != "zlib" {
		t.Fatalf("Open = %q, %v", data, err)
	}
	if fake.bucket != "replays" || fake.key != "x/1.wrpl" {
		t.Errorf("request = %s/%s", fake.bucket, fake.key)
	}

	if _, err := o.Open(context.Background(), "s3://replays/missing"); err == nil {
		t.Error("expected error for missing object")
	}
	if _, err := o.Open(context.Background(), "s3://bucket-only"); err == nil {
		t.Error("expected error for malformed uri")
	}
	if _, err := (&Opener{S3: fake, MaxBytes: 2}).Open(context.Background(), "s3://replays/x/1.wrpl"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
	if _, err := (&Opener{}).Open(context.Background(), "s3://replays/x/1.wrpl"); err == nil {
		t.Error("expected error without client")
	}
}

func TestNewS3Client(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	c := NewS3Client(config.S3Config{Region: "eu-west-1", Endpoint: "http://localhost:9000", PathStyle: true})
	opts := c.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("options = %+v", opts)
	}
}
