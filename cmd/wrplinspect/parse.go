package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"wrpl-inspect/internal/handler"
	"wrpl-inspect/internal/inspect"
	"wrpl-inspect/internal/source"
	"wrpl-inspect/pkg/wrpl"
)

type parseFlags struct {
	raw          bool
	locate       string
	format       string
	sinks        []string
	skip         bool
	strict       bool
	previewBytes int
	chunkSize    int
	noBlobs      bool
}

func (a *app) parseCmd() *cobra.Command {
	var f parseFlags

	cmd := &cobra.Command{
		Use:   "parse <path_wrpl|s3://bucket/key>",
		Short: "Parse the packet stream of a replay",
		Long: `Parse locates the zlib stream in the replay, inflates it and prints one
record per packet. Structural stops (invalid size prefix, empty frame,
undecodable packet) end the run but still exit 0 unless --strict is set.`,
		Args: usage,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.parse(cmd, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&f.raw, "raw", false, "Input is a bare zlib stream")
	flags.StringVar(&f.locate, "locate", "", "Stream location strategy (header, checksum)")
	flags.StringVarP(&f.format, "format", "f", "", "Output sink shorthand (text, jsonl)")
	flags.StringArrayVar(&f.sinks, "sink", nil, "Sink to chain, in order (repeatable)")
	flags.BoolVar(&f.skip, "skip-bad-packets", false, "Continue past packets that fail to decode")
	flags.BoolVar(&f.strict, "strict", false, "Exit 1 when the run stops before the end of the data")
	flags.IntVar(&f.previewBytes, "preview-bytes", 0, "Payload bytes shown per packet")
	flags.IntVar(&f.chunkSize, "chunk-size", 0, "Compressed bytes fed to the inflater per read")
	flags.BoolVar(&f.noBlobs, "no-blobs", false, "Do not look for zstd blobs in MPI payloads")

	return cmd
}

func (a *app) parse(cmd *cobra.Command, path string, f parseFlags) error {
	pc := a.cfg.Parse
	changed := cmd.Flags().Changed
	if changed("locate") {
		pc.Locate = f.locate
	}
	if changed("skip-bad-packets") {
		pc.SkipBadPackets = f.skip
	}
	if changed("strict") {
		pc.Strict = f.strict
	}
	if changed("preview-bytes") {
		if f.previewBytes < 0 {
			return errors.New("--preview-bytes must be >= 0")
		}
		pc.PreviewBytes = f.previewBytes
	}
	if changed("chunk-size") {
		if f.chunkSize <= 0 {
			return errors.New("--chunk-size must be > 0")
		}
		pc.ChunkSize = f.chunkSize
	}
	if changed("no-blobs") {
		pc.InspectBlobs = !f.noBlobs
	}
	if _, err := source.ParseStrategy(pc.Locate); err != nil {
		return err
	}

	configs, err := a.sinkConfigs(f)
	if err != nil {
		return err
	}

	// Banner lines stay off stdout when stdout carries JSON lines.
	info := a.stdout
	for _, c := range configs {
		if c.Type == "jsonl" {
			info = a.stderr
		}
	}

	ctx := cmd.Context()
	data, err := a.opener(path).Open(ctx, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(a.stderr, "File not found at %s\n", path)
		} else {
			fmt.Fprintf(a.stderr, "Could not open file %s: %v\n", path, err)
		}
		return errReported
	}
	fmt.Fprintf(info, "Read %d bytes from %s\n", len(data), path)

	chain, err := handler.BuildChain(configs, handler.Env{Out: a.stdout, Logger: a.log})
	if err != nil {
		return err
	}

	opts := inspect.Options{
		Parse:  pc,
		Raw:    f.raw,
		RunID:  uuid.NewString(),
		Logger: a.log,
	}
	if !f.raw {
		opts.Located = func(loc source.Location, size int) {
			fmt.Fprintf(info, "Found zlib stream at offset %d. Size: %d bytes\n", loc.Offset, size)
		}
	}

	res, err := inspect.Run(ctx, data, chain, opts)
	var inflateErr *wrpl.InflateError
	switch {
	case errors.Is(err, source.ErrNotFound):
		fmt.Fprintln(a.stderr, "Zlib stream not found in file")
		return errReported
	case errors.As(err, &inflateErr):
		fmt.Fprintf(a.stderr, "An unexpected error: %v\n", err)
		return errReported
	case err != nil:
		return err
	case chain.Err() != nil:
		fmt.Fprintf(a.stderr, "An unexpected error: %v\n", chain.Err())
		return errReported
	}

	if inspect.Failed(res.Summary, nil, pc.Strict) {
		return fmt.Errorf("run stopped at packet %d: %s", res.Summary.Packets, res.Summary.Stop)
	}
	return nil
}

// sinkConfigs picks the output chain: --sink entries win over --format,
// which wins over the [[sinks]] tables of the config file.
func (a *app) sinkConfigs(f parseFlags) ([]handler.HandlerConfig, error) {
	switch {
	case len(f.sinks) > 0:
		configs := make([]handler.HandlerConfig, 0, len(f.sinks))
		for _, s := range f.sinks {
			configs = append(configs, handler.HandlerConfig{Type: s})
		}
		return configs, nil
	case f.format != "":
		if f.format != "text" && f.format != "jsonl" {
			return nil, fmt.Errorf("unknown format %q (want text or jsonl)", f.format)
		}
		return []handler.HandlerConfig{{Type: f.format}}, nil
	default:
		return handler.FromSinks(a.cfg.Sinks)
	}
}
