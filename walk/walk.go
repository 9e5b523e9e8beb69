// Package walk disassembles code regions with a linear sweep.
//
// A Walker decodes every byte of a segment in order, producing a Listing
// of entries and statistics. Program walks all executable segments of a
// loaded ELF file concurrently.
package walk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/x86dec/icache"
	"github.com/sarchlab/x86dec/info"
	"github.com/sarchlab/x86dec/insts"
	"github.com/sarchlab/x86dec/loader"
)

// ErrBitnessMismatch is returned when a program's code size differs from
// the walker's.
var ErrBitnessMismatch = errors.New("program bitness does not match walker")

// Entry is one decoded instruction.
type Entry struct {
	Inst insts.Instruction
	// Bytes are the instruction bytes, a slice of the segment data.
	Bytes []byte
	// Info is set when the walker computes instruction info.
	Info *info.InstructionInfo
}

// Listing is the result of walking one segment.
type Listing struct {
	// Start is the address of the first byte.
	Start uint64
	// Entries holds the instructions in address order.
	Entries []Entry
	Stats   Stats
	// Truncated is true if the walk stopped at the instruction limit.
	Truncated bool
}

// At returns the entry that starts at ip.
func (l *Listing) At(ip uint64) (*Entry, bool) {
	i := sort.Search(len(l.Entries), func(i int) bool {
		return l.Entries[i].Inst.IP() >= ip
	})

	if i < len(l.Entries) && l.Entries[i].Inst.IP() == ip {
		return &l.Entries[i], true
	}

	return nil, false
}

// Walker performs linear-sweep disassembly.
type Walker struct {
	bitness         int
	options         insts.DecoderOptions
	cache           *icache.Cache
	logger          *slog.Logger
	parallelism     int
	withInfo        bool
	maxInstructions int
}

// Option is a functional option for configuring the Walker.
type Option func(*Walker)

// WithDecoderOptions sets the decoder option bitset.
func WithDecoderOptions(opts insts.DecoderOptions) Option {
	return func(w *Walker) {
		w.options = opts
	}
}

// WithCache reuses decoded instructions from c. The cache must only hold
// instructions decoded with the walker's bitness and options.
func WithCache(c *icache.Cache) Option {
	return func(w *Walker) {
		w.cache = c
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *slog.Logger) Option {
	return func(w *Walker) {
		w.logger = l
	}
}

// WithParallelism bounds how many segments Program decodes at once.
func WithParallelism(n int) Option {
	return func(w *Walker) {
		w.parallelism = n
	}
}

// WithInfo computes instruction info for every valid entry.
func WithInfo() Option {
	return func(w *Walker) {
		w.withInfo = true
	}
}

// WithMaxInstructions stops each segment walk after n instructions.
// A value of 0 means no limit.
func WithMaxInstructions(n int) Option {
	return func(w *Walker) {
		w.maxInstructions = n
	}
}

// New creates a Walker for the given bitness (16, 32 or 64).
func New(bitness int, opts ...Option) (*Walker, error) {
	switch bitness {
	case 16, 32, 64:
	default:
		return nil, fmt.Errorf("%w: %d", insts.ErrInvalidBitness, bitness)
	}

	w := &Walker{
		bitness:     bitness,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: 1,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.parallelism < 1 {
		w.parallelism = 1
	}

	return w, nil
}

// Bitness returns the code size the walker decodes with.
func (w *Walker) Bitness() int {
	return w.bitness
}

// Segment decodes seg from its first byte to its last. Undecodable bytes
// become invalid entries of at least one byte and the sweep continues.
func (w *Walker) Segment(ctx context.Context, seg loader.Segment) (*Listing, error) {
	d, err := insts.NewDecoder(w.bitness, seg.Data,
		insts.WithIP(seg.VirtAddr), insts.WithOptions(w.options))
	if err != nil {
		return nil, err
	}

	var factory *info.Factory
	if w.withInfo {
		factory = info.NewFactory()
	}

	l := &Listing{Start: seg.VirtAddr, Stats: newStats()}

	w.logger.Debug("walking segment",
		"addr", fmt.Sprintf("0x%x", seg.VirtAddr), "size", len(seg.Data), "bitness", w.bitness)

	for d.CanDecode() {
		if len(l.Entries)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		if w.maxInstructions > 0 && len(l.Entries) >= w.maxInstructions {
			l.Truncated = true
			w.logger.Warn("instruction limit reached",
				"addr", fmt.Sprintf("0x%x", d.IP()), "limit", w.maxInstructions)

			break
		}

		start := d.Position()
		e := Entry{}

		hit := false
		if w.cache != nil {
			hit = w.cache.Decode(d, &e.Inst)
		} else {
			d.DecodeOut(&e.Inst)
		}

		e.Bytes = seg.Data[start:d.Position()]

		if factory != nil && !e.Inst.IsInvalid() {
			e.Info = factory.Info(&e.Inst).Clone()
		}

		l.Stats.record(&e.Inst, hit)
		l.Entries = append(l.Entries, e)
	}

	w.logger.Info("segment decoded",
		"addr", fmt.Sprintf("0x%x", seg.VirtAddr),
		"instructions", l.Stats.Instructions,
		"invalid", l.Stats.Invalid,
		"cache_hits", l.Stats.CacheHits)

	return l, nil
}

// Program walks every executable segment of prog, running up to the
// configured parallelism at once. Listings are returned in segment order.
func (w *Walker) Program(ctx context.Context, prog *loader.Program) ([]*Listing, error) {
	if prog.Bitness != w.bitness {
		return nil, fmt.Errorf("%w: program is %d-bit, walker is %d-bit",
			ErrBitnessMismatch, prog.Bitness, w.bitness)
	}

	segs := prog.ExecutableSegments()
	listings := make([]*Listing, len(segs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)

	for i, seg := range segs {
		g.Go(func() error {
			l, err := w.Segment(ctx, seg)
			if err != nil {
				return fmt.Errorf("segment at 0x%x: %w", seg.VirtAddr, err)
			}

			listings[i] = l

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return listings, nil
}
