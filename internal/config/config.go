// Package config loads the TOML configuration of wrplinspect.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log    LogConfig    `toml:"log"`
	Parse  ParseConfig  `toml:"parse"`
	Sinks  []SinkConfig `toml:"sinks"`
	Server ServerConfig `toml:"server"`
	S3     S3Config     `toml:"s3"`
}

type LogConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"` // console or json
	NoColor bool   `toml:"no_color"`
}

type ParseConfig struct {
	Locate         string `toml:"locate"` // header or checksum
	PreviewBytes   int    `toml:"preview_bytes"`
	ChunkSize      int    `toml:"chunk_size"`
	SkipBadPackets bool   `toml:"skip_bad_packets"`
	Strict         bool   `toml:"strict"`
	InspectBlobs   bool   `toml:"inspect_blobs"`
}

// SinkConfig selects one sink of the output chain. Options are passed to
// the sink factory as is.
type SinkConfig struct {
	Type    string         `toml:"type"`
	Options map[string]any `toml:"options"`
}

type ServerConfig struct {
	Addr         string `toml:"addr"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`
	HTTP3Addr    string `toml:"http3_addr"`
	CertFile     string `toml:"cert_file"`
	KeyFile      string `toml:"key_file"`
}

type S3Config struct {
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	PathStyle bool   `toml:"path_style"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Parse: ParseConfig{
			Locate:       "header",
			PreviewBytes: 64,
			ChunkSize:    16 * 1024,
			InspectBlobs: true,
		},
		Sinks: []SinkConfig{{Type: "text"}},
		Server: ServerConfig{
			Addr:         ":8080",
			MaxBodyBytes: 256 << 20,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err = Parse(string(data))
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML text over the defaults and validates the result.
func Parse(data string) (Config, error) {
	cfg := Default()
	// A file that lists sinks replaces the default chain.
	cfg.Sinks = nil

	meta, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}
	if keys := undecoded(meta); len(keys) > 0 {
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if !meta.IsDefined("sinks") {
		cfg.Sinks = Default().Sinks
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// undecoded lists unknown keys, ignoring the free-form sink options.
func undecoded(meta toml.MetaData) []string {
	var keys []string
	for _, k := range meta.Undecoded() {
		if len(k) >= 2 && k[0] == "sinks" && k[1] == "options" {
			continue
		}
		keys = append(keys, k.String())
	}
	return keys
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	switch c.Parse.Locate {
	case "header", "checksum":
	default:
		return fmt.Errorf("%w: parse.locate %q", ErrInvalid, c.Parse.Locate)
	}
	if c.Parse.PreviewBytes < 0 {
		return fmt.Errorf("%w: parse.preview_bytes must not be negative", ErrInvalid)
	}
	if c.Parse.ChunkSize <= 0 {
		return fmt.Errorf("%w: parse.chunk_size must be positive", ErrInvalid)
	}
	for i, s := range c.Sinks {
		if strings.TrimSpace(s.Type) == "" {
			return fmt.Errorf("%w: sinks[%d] missing type", ErrInvalid, i)
		}
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: server.max_body_bytes must be positive", ErrInvalid)
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("%w: server.cert_file and server.key_file must be set together", ErrInvalid)
	}
	return nil
}
