package decompression

import (
	"io"
)

const (
	windowSize = 4096
	windowMask = windowSize - 1

	// Codes below literalCount are bytes; the rest are run lengths.
	literalCount  = 256
	terminalCount = 314
	runLengthBias = 253

	maxRunLength = terminalCount - 1 - runLengthBias

	// fill starts no code once this many bytes are unread. A code adds at
	// most maxRunLength bytes, so unread data is never overwritten.
	maxFill = windowSize - (terminalCount - runLengthBias) - 1
)

// offsetBand describes how an initial offset byte v below limit is
// extended: extraBits more bits are shifted in, and the upper 6 bits of the
// 12-bit offset are ((v-start)>>shift)+base.
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

func offsetBandFor(v uint) offsetBand {
	for _, band := range offsetBands {
		if v < band.limit {
			return band
		}
	}
	return offsetBands[len(offsetBands)-1]
}

// HuffLZ decodes an LZH compressed volume entry.
//
// Decoded bytes are written into a circular window that doubles as the
// back-reference history and the queue of bytes not yet handed to the
// caller.
//
// Code frequencies are counted in 16 bits. The counts overflow once a
// stream holds more than 65,221 codes (65,535 less the 314 initial
// counts), after which decoding fails with ErrIndexOutOfRange or yields
// corrupt output. Entries that large must be stored uncompressed.
type HuffLZ struct {
	bits *BitStreamReader
	tree *AdaptiveHuffmanTree

	window [windowSize]byte
	write  int
	read   int
	eos    bool
}

func NewHuffLZ(bits *BitStreamReader) *HuffLZ {
	h := &HuffLZ{
		bits: bits,
		tree: newAdaptiveHuffmanTree(terminalCount),
		eos:  bits.EndOfStream(),
	}
	for i := range h.window {
		h.window[i] = ' '
	}
	return h
}

// Read decodes into p until p is full or the compressed stream is
// exhausted. It returns io.EOF once every decoded byte has been read.
func (h *HuffLZ) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if err := h.fill(); err != nil {
		return 0, err
	}
	n := h.copyAvailable(p)

	for n < len(p) && !h.eos {
		if err := h.fill(); err != nil {
			return n, err
		}
		n += h.copyAvailable(p[n:])
	}

	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// InternalBuffer returns the decoded bytes available without copying. The
// slice aliases the window and stops at its physical end, so a wrapped
// region takes two calls. An empty slice means the stream is exhausted.
func (h *HuffLZ) InternalBuffer() ([]byte, error) {
	if err := h.fill(); err != nil {
		return nil, err
	}

	end := h.write
	if h.write < h.read {
		end = windowSize
	}

	buf := h.window[h.read:end]
	h.read = end & windowMask
	return buf, nil
}

func (h *HuffLZ) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		buf, err := h.InternalBuffer()
		if err != nil {
			return total, err
		}
		if len(buf) == 0 {
			return total, nil
		}

		n, err := w.Write(buf)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

func (h *HuffLZ) fill() error {
	for !h.eos && (h.write-h.read)&windowMask < maxFill {
		if err := h.decompressCode(); err != nil {
			return err
		}
		h.eos = h.bits.EndOfStream()
	}
	return nil
}

func (h *HuffLZ) copyAvailable(p []byte) int {
	var n int
	if h.write < h.read {
		c := copy(p, h.window[h.read:])
		h.read = (h.read + c) & windowMask
		n += c
		if h.read != 0 {
			return n
		}
	}

	c := copy(p[n:], h.window[h.read:h.write])
	h.read += c
	return n + c
}

func (h *HuffLZ) decompressCode() error {
	code, err := h.nextCode()
	if err != nil {
		return err
	}
	if err := h.tree.UpdateCodeCount(code); err != nil {
		return err
	}

	if code < literalCount {
		h.writeByte(byte(code))
		return nil
	}

	offset := h.repeatOffset()
	start := (h.write - int(offset) - 1) & windowMask
	for length := int(code) - runLengthBias; length > 0; length-- {
		h.writeByte(h.window[start])
		start = (start + 1) & windowMask
	}
	return nil
}

func (h *HuffLZ) nextCode() (uint16, error) {
	node := h.tree.RootNodeIndex()
	for {
		leaf, err := h.tree.IsLeaf(node)
		if err != nil {
			return 0, err
		}
		if leaf {
			return h.tree.NodeData(node)
		}

		node, err = h.tree.ChildNode(node, h.bits.ReadNextBit())
		if err != nil {
			return 0, err
		}
	}
}

// repeatOffset reads the variable length (9 to 14 bit) distance of a run.
// Nearer offsets have shorter codes. The result is in 0..4095.
func (h *HuffLZ) repeatOffset() uint {
	v := uint(h.bits.ReadNext8Bits())
	band := offsetBandFor(v)

	offset := v
	for i := band.extraBits; i > 0; i-- {
		offset <<= 1
		if h.bits.ReadNextBit() {
			offset |= 1
		}
	}

	upper := ((v - band.start) >> band.shift) + band.base
	return upper<<6 | offset&0x3F
}

func (h *HuffLZ) writeByte(c byte) {
	h.window[h.write] = c
	h.write = (h.write + 1) & windowMask
}
