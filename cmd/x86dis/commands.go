package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/x86dec/config"
	"github.com/sarchlab/x86dec/info"
	"github.com/sarchlab/x86dec/insts"
	"github.com/sarchlab/x86dec/loader"
	"github.com/sarchlab/x86dec/walk"
)

// newWalker builds a walker for cfg, sharing a decoded-instruction cache
// when the config enables one.
func newWalker(cmd *cobra.Command, cfg *config.Config, maxInsts int) (*walk.Walker, error) {
	decOpts, err := cfg.DecoderOptions()
	if err != nil {
		return nil, err
	}

	c, err := cfg.NewICache()
	if err != nil {
		return nil, err
	}

	wopts := []walk.Option{
		walk.WithDecoderOptions(decOpts),
		walk.WithLogger(newLogger(cfg, cmd.ErrOrStderr())),
		walk.WithParallelism(cfg.Parallelism),
		walk.WithMaxInstructions(maxInsts),
	}
	if c != nil {
		wopts = append(wopts, walk.WithCache(c))
	}
	if cfg.Info {
		wopts = append(wopts, walk.WithInfo())
	}

	return walk.New(cfg.Bitness, wopts...)
}

func newHexCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "hex <bytes>...",
		Short: "Disassemble hex-encoded machine code",
		Example: `  x86dis hex 31 C0 C3
  x86dis hex -b 32 --ip 0x401000 "55 89 E5"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			data, err := parseHex(args)
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return usageError(cmd, "no input bytes")
			}

			w, err := newWalker(cmd, cfg, 0)
			if err != nil {
				return err
			}

			l, err := w.Segment(cmd.Context(), loader.Segment{
				VirtAddr: cfg.IP,
				Data:     data,
				MemSize:  uint64(len(data)),
				Flags:    loader.SegmentFlagRead | loader.SegmentFlagExecute,
				Bitness:  cfg.Bitness,
			})
			if err != nil {
				return err
			}

			printListing(cmd.OutOrStdout(), l, cfg.Bitness, opts.check)

			return nil
		},
	}
}

func newElfCmd(opts *options) *cobra.Command {
	var (
		statsOnly bool
		maxInsts  int
	)

	cmd := &cobra.Command{
		Use:   "elf <program.elf>",
		Short: "Disassemble the executable segments of an ELF file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			prog, err := loader.Load(args[0])
			if err != nil {
				return fmt.Errorf("error loading program: %w", err)
			}

			cfg.Bitness = prog.Bitness

			w, err := newWalker(cmd, cfg, maxInsts)
			if err != nil {
				return err
			}

			listings, err := w.Program(cmd.Context(), prog)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entry point: 0x%X (%d-bit)\n", prog.EntryPoint, prog.Bitness)

			if !statsOnly {
				for i, seg := range prog.ExecutableSegments() {
					l := listings[i]
					fmt.Fprintf(out, "\nSegment 0x%X %s (%d bytes):\n", l.Start, seg.Flags, len(seg.Data))
					printListing(out, l, prog.Bitness, opts.check)
				}
				fmt.Fprintln(out)
			}

			printStats(out, walk.Total(listings))

			return nil
		},
	}

	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Print only statistics")
	cmd.Flags().IntVar(&maxInsts, "max", 0, "Stop each segment after this many instructions (0 = no limit)")

	return cmd
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <bytes>...",
		Short: "Show operands and register/memory usage of one instruction",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			data, err := parseHex(args)
			if err != nil {
				return err
			}

			decOpts, err := cfg.DecoderOptions()
			if err != nil {
				return err
			}

			d, err := insts.NewDecoder(cfg.Bitness, data,
				insts.WithIP(cfg.IP), insts.WithOptions(decOpts))
			if err != nil {
				return err
			}

			inst := d.Decode()
			if inst.IsInvalid() {
				return fmt.Errorf("% X: %w", data, d.LastError())
			}

			res := info.NewFactory().Info(&inst)
			fmt.Fprint(cmd.OutOrStdout(), usageTree(&inst, res).String())

			return nil
		},
	}
}
