package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sarchlab/x86dec/config"
	"github.com/sarchlab/x86dec/info"
	"github.com/sarchlab/x86dec/insts"
	"github.com/sarchlab/x86dec/walk"
)

const replHelp = `Enter hex bytes to decode them, or a command:
  bits 16|32|64      set the code size
  ip <addr>          set the address of the next input
  opt <names>        set decoder options (comma separated, "none" clears)
  info on|off        toggle register and memory usage
  help               show this text
  exit               leave`

// replSession is the state of an interactive session. The IP advances
// past every decoded input.
type replSession struct {
	bitness int
	ip      uint64
	options insts.DecoderOptions
	info    bool
	factory *info.Factory
}

var errQuit = errors.New("quit")

func newReplSession(cfg *config.Config) (*replSession, error) {
	opts, err := cfg.DecoderOptions()
	if err != nil {
		return nil, err
	}

	return &replSession{
		bitness: cfg.Bitness,
		ip:      cfg.IP,
		options: opts,
		info:    cfg.Info,
		factory: info.NewFactory(),
	}, nil
}

func (s *replSession) prompt() string {
	return fmt.Sprintf("x86dis(%d) %s> ", s.bitness, formatAddr(s.ip, s.bitness))
}

// exec runs one input line. It returns errQuit when the session ends.
func (s *replSession) exec(line string, w io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	switch fields[0] {
	case "exit", "quit":
		return errQuit
	case "help":
		fmt.Fprintln(w, replHelp)
		return nil
	case "bits":
		return s.setBitness(fields[1:])
	case "ip":
		return s.setIP(fields[1:])
	case "opt":
		return s.setOptions(fields[1:])
	case "info":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return errors.New("usage: info on|off")
		}
		s.info = fields[1] == "on"
		return nil
	}

	data, err := parseHex(fields)
	if err != nil {
		return err
	}

	return s.decode(data, w)
}

func (s *replSession) setBitness(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: bits 16|32|64")
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || (n != 16 && n != 32 && n != 64) {
		return fmt.Errorf("%w: %s", insts.ErrInvalidBitness, args[0])
	}

	s.bitness = n

	return nil
}

func (s *replSession) setIP(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: ip <addr>")
	}

	ip, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q", args[0])
	}

	s.ip = ip

	return nil
}

func (s *replSession) setOptions(args []string) error {
	if len(args) == 1 && args[0] == "none" {
		s.options = insts.OptionNone
		return nil
	}

	opts, err := insts.ParseDecoderOptions(strings.Split(strings.Join(args, ","), ","))
	if err != nil {
		return err
	}

	s.options = opts

	return nil
}

func (s *replSession) decode(data []byte, w io.Writer) error {
	d, err := insts.NewDecoder(s.bitness, data, insts.WithIP(s.ip), insts.WithOptions(s.options))
	if err != nil {
		return err
	}

	for d.CanDecode() {
		start := d.Position()
		inst := d.Decode()

		fmt.Fprintln(w, entryLine(&walk.Entry{Inst: inst, Bytes: data[start:d.Position()]}, s.bitness))

		if s.info && !inst.IsInvalid() {
			fmt.Fprint(w, indent(usageTree(&inst, s.factory.Info(&inst)).String(), "    "))
		}
	}

	s.ip = d.IP()

	return nil
}

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Decode hex input interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}

			s, err := newReplSession(cfg)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:      s.prompt(),
				HistoryFile: filepath.Join(os.TempDir(), "x86dis_history.txt"),
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("failed to start readline: %w", err)
			}
			defer func() { _ = rl.Close() }()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, `x86dis interactive mode. Type "help" for commands.`)

			for {
				line, err := rl.Readline()
				if err != nil {
					// io.EOF or readline.ErrInterrupt
					return nil
				}

				err = s.exec(line, out)
				if errors.Is(err, errQuit) {
					return nil
				}
				if err != nil {
					fmt.Fprintln(out, "error:", err)
				}

				rl.SetPrompt(s.prompt())
			}
		},
	}
}
