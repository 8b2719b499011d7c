package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"wrpl-inspect/internal/config"
	"wrpl-inspect/internal/debug"
	"wrpl-inspect/internal/logging"
	"wrpl-inspect/internal/source"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errReported ends a command with exit status 1 after the command already
// printed its own message.
var errReported = errors.New("reported")

type app struct {
	stdout  io.Writer
	stderr  io.Writer
	profile logging.Profile

	cfgPath  string
	debug    bool
	logLevel string

	cfg config.Config
	log zerolog.Logger
	s3  source.ObjectGetter
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr, profile: logging.ProfileRuntime}
	return a.execute(args)
}

func (a *app) execute(args []string) int {
	rootCmd := a.rootCmd()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(a.stderr, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wrplinspect",
		Short: "Inspect the packet stream of War Thunder replay files",
		Long: `wrplinspect locates the zlib stream inside a .wrpl replay, inflates it
and walks the packets it carries, printing one diagnostic record per packet.

The parser can also run as an HTTP service (see "serve").`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgPath, "config", "c", "", "TOML config file")
	flags.BoolVar(&a.debug, "debug", false, "Log every packet at debug level")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, disabled)")

	rootCmd.AddCommand(
		a.parseCmd(),
		a.locateCmd(),
		a.serveCmd(),
		a.sinksCmd(),
		versionCmd(),
	)
	return rootCmd
}

// setup loads the config file and builds the logger before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.cfg = cfg

	if a.debug {
		debug.Enable()
	}
	if a.profile == logging.ProfileRuntime {
		a.log = logging.Configure(a.profile, cfg.Log, a.stderr)
	} else {
		a.log = logging.New(a.stderr, logging.Resolve(a.profile, cfg.Log))
	}
	return nil
}

func (a *app) opener(uri string) *source.Opener {
	o := &source.Opener{S3: a.s3}
	if o.S3 == nil {
		if _, _, ok := source.ParseS3URI(uri); ok {
			o.S3 = source.NewS3Client(a.cfg.S3)
		}
	}
	return o
}

// usage enforces a single positional argument.
func usage(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s", cmd.UseLine())
	}
	return nil
}
