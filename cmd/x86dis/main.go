// Package main provides x86dis, a command-line x86 disassembler built on
// the x86dec decoder and instruction-info factory.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/x86dec/config"
)

// options holds the flags shared by every subcommand.
type options struct {
	configPath  string
	bitness     int
	decoderOpts []string
	ip          uint64
	logLevel    string
	info        bool
	check       bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "x86dis",
		Short:         "Decode x86 and x86-64 machine code",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to JSON configuration file")
	flags.IntVarP(&opts.bitness, "bitness", "b", 64, "Code size: 16, 32 or 64")
	flags.StringSliceVarP(&opts.decoderOpts, "options", "O", nil, "Decoder options, e.g. AMD,KNC,Cyrix")
	flags.Uint64Var(&opts.ip, "ip", 0, "Address of the first byte of raw input")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flags.BoolVarP(&opts.info, "info", "i", false, "Print register and memory usage")
	flags.BoolVar(&opts.check, "check", false, "Cross-check legacy instruction lengths with x86asm")

	rootCmd.AddCommand(
		newHexCmd(opts),
		newElfCmd(opts),
		newReplCmd(opts),
		newInfoCmd(opts),
	)

	return rootCmd
}

// load builds the effective configuration: the config file (or defaults)
// overridden by flags given on the command line.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()

	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("bitness") {
		cfg.Bitness = o.bitness
	}
	if flags.Changed("options") {
		cfg.Options = o.decoderOpts
	}
	if flags.Changed("ip") {
		cfg.IP = o.ip
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("info") {
		cfg.Info = o.info
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func usageError(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf("%s: %s", cmd.Name(), fmt.Sprintf(format, args...))
}
