package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zlib"

	"wrpl-inspect/internal/logging"
	"wrpl-inspect/internal/source"
)

var endMarker = []byte{0x84, 0x10, 0x00, 0x00, 0x00}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeReplay stores a container header followed by the compressed packets.
func writeReplay(t *testing.T, packets []byte) string {
	t.Helper()
	data := append([]byte("WRPL\x00\x01\x02\x03 container fields "), compress(t, packets)...)
	path := filepath.Join(t.TempDir(), "match.wrpl")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type result struct {
	code   int
	stdout string
	stderr string
}

func runApp(t *testing.T, a *app, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	a.stdout, a.stderr, a.profile = &stdout, &stderr, logging.ProfileTest
	code := a.execute(append(args, "--log-level", "disabled"))
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func TestParse_Text(t *testing.T) {
	path := writeReplay(t, endMarker)
	res := runApp(t, &app{}, "parse", path)
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	for _, want := range []string{
		"Read ",
		"Found zlib stream at offset 26. Size: ",
		"== Packet 0 (Comp. offset ~",
		"Parsed Header (1 bytes): Type=end_marker, Timestamp=0ms",
		"Total decompressed bytes processed: 4",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestParse_JSONLKeepsStdoutClean(t *testing.T) {
	path := writeReplay(t, endMarker)
	res := runApp(t, &app{}, "parse", "--format", "jsonl", path)
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "Found zlib stream at offset 26") {
		t.Errorf("banner not on stderr: %q", res.stderr)
	}
	for i, line := range strings.Split(strings.TrimSpace(res.stdout), "\n") {
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Errorf("line %d is not JSON: %q", i, line)
		}
	}
}

func TestParse_Raw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.z")
	if err := os.WriteFile(path, compress(t, endMarker), 0o644); err != nil {
		t.Fatal(err)
	}
	res := runApp(t, &app{}, "parse", "--raw", path)
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if strings.Contains(res.stdout, "Found zlib stream") {
		t.Errorf("raw run printed a location: %q", res.stdout)
	}
	if !strings.Contains(res.stdout, "Type=end_marker") {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestParse_Failures(t *testing.T) {
	tests := []struct {
		name       string
		args       func(t *testing.T) []string
		wantCode   int
		wantStderr string
	}{
		{
			name:       "usage",
			args:       func(*testing.T) []string { return []string{"parse"} },
			wantCode:   1,
			wantStderr: "usage: wrplinspect parse",
		},
		{
			name: "missing file",
			args: func(t *testing.T) []string {
				return []string{"parse", filepath.Join(t.TempDir(), "nope.wrpl")}
			},
			wantCode:   1,
			wantStderr: "File not found at",
		},
		{
			name: "no stream",
			args: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "plain.wrpl")
				if err := os.WriteFile(path, []byte("no compressed data here"), 0o644); err != nil {
					t.Fatal(err)
				}
				return []string{"parse", path}
			},
			wantCode:   1,
			wantStderr: "Zlib stream not found in file",
		},
		{
			name: "inflate failure",
			args: func(t *testing.T) []string {
				path := filepath.Join(t.TempDir(), "bad.z")
				if err := os.WriteFile(path, []byte{0x78, 0x00, 0x00}, 0o644); err != nil {
					t.Fatal(err)
				}
				return []string{"parse", "--raw", path}
			},
			wantCode:   1,
			wantStderr: "An unexpected error:",
		},
		{
			name: "structural stop is not a failure",
			args: func(t *testing.T) []string {
				return []string{"parse", writeReplay(t, append(append([]byte{}, endMarker...), 0xC0))}
			},
			wantCode: 0,
		},
		{
			name: "structural stop with strict",
			args: func(t *testing.T) []string {
				return []string{"parse", "--strict", writeReplay(t, append(append([]byte{}, endMarker...), 0xC0))}
			},
			wantCode:   1,
			wantStderr: "run stopped at packet 1",
		},
		{
			name: "bad strategy",
			args: func(t *testing.T) []string {
				return []string{"parse", "--locate", "magic", writeReplay(t, endMarker)}
			},
			wantCode:   1,
			wantStderr: "Error:",
		},
		{
			name: "unknown sink",
			args: func(t *testing.T) []string {
				return []string{"parse", "--sink", "carrier-pigeon", writeReplay(t, endMarker)}
			},
			wantCode:   1,
			wantStderr: "unknown handler type: carrier-pigeon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := runApp(t, &app{}, tt.args(t)...)
			if res.code != tt.wantCode {
				t.Errorf("exit = %d, want %d (stderr %q)", res.code, tt.wantCode, res.stderr)
			}
			if tt.wantStderr != "" && !strings.Contains(res.stderr, tt.wantStderr) {
				t.Errorf("stderr = %q, want %q", res.stderr, tt.wantStderr)
			}
		})
	}
}

func TestParse_SinkChain(t *testing.T) {
	path := writeReplay(t, endMarker)
	res := runApp(t, &app{}, "parse", "--sink", "stats", "--sink", "text", path)
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "== Packets by type ==") || !strings.Contains(res.stdout, "Type=end_marker") {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestParse_ConfigFile(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "wrpl.toml")
	body := `
[parse]
locate = "checksum"

[[sinks]]
type = "jsonl"
`
	if err := os.WriteFile(cfg, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	res := runApp(t, &app{}, "--config", cfg, "parse", writeReplay(t, endMarker))
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if !strings.HasPrefix(res.stdout, "{") {
		t.Errorf("config sinks not used: %q", res.stdout)
	}
}

type fakeS3 struct {
	body   []byte
	bucket string
	key    string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = aws.ToString(in.Bucket), aws.ToString(in.Key)
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(f.body)),
		ContentLength: aws.Int64(int64(len(f.body))),
	}, nil
}

var _ source.ObjectGetter = (*fakeS3)(nil)

func TestParse_S3(t *testing.T) {
	fake := &fakeS3{body: compress(t, endMarker)}
	res := runApp(t, &app{s3: fake}, "parse", "--raw", "s3://replays/2026/match.wrpl")
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if fake.bucket != "replays" || fake.key != "2026/match.wrpl" {
		t.Errorf("fetched %s/%s", fake.bucket, fake.key)
	}
	if !strings.Contains(res.stdout, "bytes from s3://replays/2026/match.wrpl") || !strings.Contains(res.stdout, "Type=end_marker") {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestLocate(t *testing.T) {
	path := writeReplay(t, endMarker)
	res := runApp(t, &app{}, "locate", path)
	if res.code != 0 {
		t.Fatalf("exit = %d, stderr = %q", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "Found zlib stream at offset 26.") || !strings.Contains(res.stdout, "Header: 78 9C (header strategy)") {
		t.Errorf("stdout = %q", res.stdout)
	}

	res = runApp(t, &app{}, "locate", "--strategy", "checksum", path)
	if !strings.Contains(res.stdout, "(checksum strategy)") {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestSinks(t *testing.T) {
	res := runApp(t, &app{}, "sinks")
	for _, want := range []string{"jsonl", "metrics", "text", "typefilter"} {
		if !strings.Contains(res.stdout, want+"\n") {
			t.Errorf("sinks missing %q: %q", want, res.stdout)
		}
	}
}

func TestVersion(t *testing.T) {
	res := runApp(t, &app{}, "version", "--short")
	if res.stdout != version+"\n" {
		t.Errorf("stdout = %q", res.stdout)
	}
	res = runApp(t, &app{}, "version")
	if !strings.Contains(res.stdout, "Commit:") {
		t.Errorf("stdout = %q", res.stdout)
	}
}

func TestServe_RejectsBadConfig(t *testing.T) {
	res := runApp(t, &app{}, "serve", "--addr", "")
	if res.code != 1 || !strings.Contains(res.stderr, "invalid config") {
		t.Errorf("exit = %d, stderr = %q", res.code, res.stderr)
	}
}
