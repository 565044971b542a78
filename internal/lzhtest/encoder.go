// Package lzhtest produces LZH bit streams for tests.
//
// Volume LZH streams carry no length: a decoder stops when the compressed
// bits run out, so a stream only round-trips exactly when its final code
// ends on a byte boundary. Encode therefore tries several parses of the
// input until one of them comes out byte aligned. Inputs without repeated
// substrings have only one parse and rarely encode.
package lzhtest

import (
	"bytes"
	"fmt"
	"github.com/32bitkid/op2/decompression"
)

const (
	windowSize    = 4096
	terminalCount = 314
	runLengthBias = 253
	minRun        = 3
	maxRun        = terminalCount - 1 - runLengthBias
)

type offsetBand struct {
	limit     uint
	extraBits uint
	start     uint
	shift     uint
	base      uint
}

var offsetBands = [...]offsetBand{
	{limit: 0x20, extraBits: 1, start: 0x00, shift: 5, base: 0x00},
	{limit: 0x50, extraBits: 2, start: 0x20, shift: 4, base: 0x01},
	{limit: 0x90, extraBits: 3, start: 0x50, shift: 3, base: 0x04},
	{limit: 0xC0, extraBits: 4, start: 0x90, shift: 2, base: 0x0C},
	{limit: 0xF0, extraBits: 5, start: 0xC0, shift: 1, base: 0x18},
	{limit: 0x100, extraBits: 6, start: 0xC0, shift: 0, base: 0x00},
}

// Stats describes the parse chosen by Encode.
type Stats struct {
	Literals int
	Runs     int

	// Overlapping counts runs longer than their own distance, which copy
	// bytes written by the same run.
	Overlapping int
}

type match struct {
	length int
	near   int
	far    int
}

type parse struct {
	minRun   int
	maxRun   int
	skipRuns int
	farthest bool
}

// Encode returns an LZH stream that decodes to exactly plain.
func Encode(plain []byte) ([]byte, Stats, error) {
	matches := findMatches(plain)

	for _, p := range parses() {
		out, stats, bitCount, err := encode(plain, matches, p)
		if err != nil {
			return nil, Stats{}, err
		}
		if bitCount%8 == 0 {
			return out, stats, nil
		}
	}
	return nil, Stats{}, fmt.Errorf("lzhtest: no byte aligned encoding of %d bytes", len(plain))
}

// EncodeOffset splits a 12-bit run offset into the byte a decoder reads
// first and the extraBits bits that follow it.
func EncodeOffset(offset uint) (first uint8, extra uint, extraBits uint) {
	upper, low := offset>>6&0x3F, offset&0x3F
	for _, band := range offsetBands {
		span := (band.limit - band.start) >> band.shift
		if upper < band.base || upper >= band.base+span {
			continue
		}
		v := band.start + (upper-band.base)<<band.shift + low>>band.extraBits
		return uint8(v), low & (1<<band.extraBits - 1), band.extraBits
	}
	panic("unreachable")
}

func parses() []parse {
	var all []parse
	for _, hi := range []int{maxRun, 40, 20, 10, 6, 4, 3} {
		for lo := minRun; lo <= 8 && lo <= hi; lo++ {
			for skip := 0; skip < 16; skip++ {
				all = append(all,
					parse{minRun: lo, maxRun: hi, skipRuns: skip},
					parse{minRun: lo, maxRun: hi, skipRuns: skip, farthest: true},
				)
			}
		}
	}
	return all
}

// findMatches records, for each position, the longest run available and
// the nearest and farthest offsets producing it.
func findMatches(plain []byte) []match {
	hist := append(bytes.Repeat([]byte{' '}, windowSize), plain...)
	matches := make([]match, len(plain))

	for p := range plain {
		h := windowSize + p
		limit := len(plain) - p
		if limit > maxRun {
			limit = maxRun
		}

		best := match{}
		for offset := 0; offset < windowSize; offset++ {
			start := h - offset - 1
			l := 0
			for l < limit && hist[start+l] == hist[h+l] {
				l++
			}
			switch {
			case l > best.length:
				best = match{length: l, near: offset, far: offset}
			case l == best.length && l > 0:
				best.far = offset
			}
		}
		matches[p] = best
	}
	return matches
}

func encode(plain []byte, matches []match, p parse) ([]byte, Stats, int, error) {
	w, err := NewWriter()
	if err != nil {
		return nil, Stats{}, 0, err
	}

	var (
		stats   Stats
		skipped int
	)
	for pos := 0; pos < len(plain); {
		m := matches[pos]
		length := m.length
		if length > p.maxRun {
			length = p.maxRun
		}

		skip := length >= p.minRun && skipped < p.skipRuns
		if skip {
			skipped++
		}

		if skip || length < p.minRun {
			if err := w.Literal(plain[pos]); err != nil {
				return nil, Stats{}, 0, err
			}
			stats.Literals++
			pos++
			continue
		}

		offset := m.near
		if p.farthest {
			offset = m.far
		}
		if err := w.Run(length, offset); err != nil {
			return nil, Stats{}, 0, err
		}

		stats.Runs++
		if length > offset+1 {
			stats.Overlapping++
		}
		pos += length
	}

	out, bitCount := w.Bytes()
	return out, stats, bitCount, nil
}

// Writer emits individual LZH codes, keeping its own adaptive tree in step
// with the one a decoder builds.
type Writer struct {
	tree *decompression.AdaptiveHuffmanTree
	bits bitWriter
}

func NewWriter() (*Writer, error) {
	tree, err := decompression.NewAdaptiveHuffmanTree(terminalCount)
	if err != nil {
		return nil, err
	}
	return &Writer{tree: tree}, nil
}

func (w *Writer) Literal(c byte) error {
	return w.code(uint16(c))
}

// Run emits a copy of length bytes starting offset+1 bytes back.
func (w *Writer) Run(length, offset int) error {
	if length < minRun || length > maxRun {
		return fmt.Errorf("lzhtest: run length %d outside %d..%d", length, minRun, maxRun)
	}
	if offset < 0 || offset >= windowSize {
		return fmt.Errorf("lzhtest: run offset %d outside 0..%d", offset, windowSize-1)
	}

	if err := w.code(uint16(length + runLengthBias)); err != nil {
		return err
	}
	w.Offset(uint(offset))
	return nil
}

// Offset emits only the variable length offset code.
func (w *Writer) Offset(offset uint) {
	first, extra, extraBits := EncodeOffset(offset)
	w.bits.writeBits(uint(first), 8)
	w.bits.writeBits(extra, extraBits)
}

// Bytes returns the stream so far, zero padded to a whole byte, and the
// number of meaningful bits in it.
func (w *Writer) Bytes() ([]byte, int) {
	return w.bits.buf, w.bits.n
}

func (w *Writer) code(code uint16) error {
	path, n, err := w.tree.EncodedBitString(code)
	if err != nil {
		return err
	}
	for i := uint(0); i < n; i++ {
		w.bits.writeBit(path>>i&1 == 1)
	}
	return w.tree.UpdateCodeCount(code)
}

type bitWriter struct {
	buf []byte
	n   int
}

func (w *bitWriter) writeBit(bit bool) {
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit {
		w.buf[len(w.buf)-1] |= 0x80 >> uint(w.n%8)
	}
	w.n++
}

func (w *bitWriter) writeBits(v uint, n uint) {
	for i := n; i > 0; i-- {
		w.writeBit(v>>(i-1)&1 == 1)
	}
}
