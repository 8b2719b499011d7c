// Package inspect runs one parse of a replay file: locate the stream, then
// drive the packet parser into a sink.
package inspect

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wrpl-inspect/internal/config"
	"wrpl-inspect/internal/debug"
	"wrpl-inspect/internal/source"
	"wrpl-inspect/pkg/wrpl"
)

// Options configures a run.
type Options struct {
	Parse  config.ParseConfig
	Raw    bool // data is the zlib stream itself, skip locating
	RunID  string
	Logger zerolog.Logger
	// Located, when set, is called once the stream is found, before parsing.
	Located func(loc source.Location, size int)
}

// Result describes a finished run.
type Result struct {
	Location source.Location
	Summary  wrpl.Summary
}

// Run locates the stream in data and parses it into sink. Errors are
// source.ErrNotFound (wrapped) or a *wrpl.InflateError; structural stops
// are reported in Result.Summary.
func Run(ctx context.Context, data []byte, sink wrpl.Sink, opts Options) (Result, error) {
	var res Result
	stream := data
	if !opts.Raw {
		strategy, err := source.ParseStrategy(opts.Parse.Locate)
		if err != nil {
			return res, err
		}
		loc, err := source.Locate(data, strategy)
		if err != nil {
			return res, fmt.Errorf("%w (%s strategy, %d bytes scanned)", err, strategy, len(data))
		}
		res.Location = loc
		stream = data[loc.Offset:]
	}
	if opts.Located != nil {
		opts.Located(res.Location, len(stream))
	}

	log := opts.Logger.With().Str("run", opts.RunID).Logger()
	log.Debug().Int("offset", res.Location.Offset).Int("size", len(stream)).Msg("zlib stream located")

	sum, err := wrpl.Parse(ctx, bytes.NewReader(stream), sink, DriverOptions(opts.Parse, debug.Logger(log), opts.RunID)...)
	res.Summary = sum
	return res, err
}

// DriverOptions maps the [parse] section onto driver options.
func DriverOptions(pc config.ParseConfig, log zerolog.Logger, runID string) []wrpl.DriverOption {
	opts := []wrpl.DriverOption{
		wrpl.WithLogger(log),
		wrpl.WithRunID(runID),
		wrpl.WithPreviewBytes(pc.PreviewBytes),
		wrpl.WithSkipBadPackets(pc.SkipBadPackets),
		wrpl.WithDecoder(&wrpl.Decoder{InspectBlobs: pc.InspectBlobs}),
	}
	if pc.ChunkSize > 0 {
		opts = append(opts, wrpl.WithReaderOptions(wrpl.WithChunkSize(pc.ChunkSize)))
	}
	return opts
}

// Failed reports whether a finished run should count as a failure. Inflate
// failures always do; other early stops only in strict mode.
func Failed(sum wrpl.Summary, err error, strict bool) bool {
	if err != nil {
		return true
	}
	return strict && !sum.Stop.Clean()
}
