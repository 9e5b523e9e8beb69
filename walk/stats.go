package walk

import (
	"github.com/sarchlab/x86dec/insts"
)

// Stats summarizes a walk.
type Stats struct {
	// Instructions counts every entry, valid or not.
	Instructions int
	// Invalid counts entries that did not decode.
	Invalid int
	// Bytes counts bytes covered by valid instructions.
	Bytes int
	// CacheHits counts instructions served by the instruction cache.
	CacheHits int

	ByEncoding map[insts.EncodingKind]int
	ByMnemonic map[string]int
}

func newStats() Stats {
	return Stats{
		ByEncoding: make(map[insts.EncodingKind]int),
		ByMnemonic: make(map[string]int),
	}
}

func (s *Stats) record(inst *insts.Instruction, cacheHit bool) {
	s.Instructions++

	if cacheHit {
		s.CacheHits++
	}

	if inst.IsInvalid() {
		s.Invalid++
		return
	}

	s.Bytes += inst.Len()
	s.ByEncoding[inst.Encoding()]++
	s.ByMnemonic[inst.Mnemonic()]++
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	if s.ByEncoding == nil {
		s.ByEncoding = make(map[insts.EncodingKind]int)
	}

	if s.ByMnemonic == nil {
		s.ByMnemonic = make(map[string]int)
	}

	s.Instructions += o.Instructions
	s.Invalid += o.Invalid
	s.Bytes += o.Bytes
	s.CacheHits += o.CacheHits

	for k, v := range o.ByEncoding {
		s.ByEncoding[k] += v
	}

	for k, v := range o.ByMnemonic {
		s.ByMnemonic[k] += v
	}
}

// Total sums the statistics of several listings.
func Total(listings []*Listing) Stats {
	total := newStats()

	for _, l := range listings {
		total.Add(l.Stats)
	}

	return total
}
