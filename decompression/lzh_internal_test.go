package decompression

import (
	"io"
	"math/rand"
	"testing"
)

func TestRepeatOffsetBands(t *testing.T) {
	cases := []struct {
		first    byte
		extra    byte
		bits     uint32
		expected uint
	}{
		{0x00, 0x00, 9, 0x000},
		{0x1F, 0xFF, 9, 0x03F},
		{0x20, 0x00, 10, 0x040},
		{0x20, 0xFF, 10, 0x043},
		{0x4F, 0xFF, 10, 0x0FF},
		{0x50, 0xFF, 11, 0x107},
		{0x8F, 0xFF, 11, 0x2FF},
		{0x90, 0xFF, 12, 0x30F},
		{0xBF, 0xFF, 12, 0x5FF},
		{0xC0, 0xFF, 13, 0x61F},
		{0xEF, 0xFF, 13, 0xBFF},
		{0xF0, 0xFF, 14, 0xC3F},
		{0xFF, 0xFF, 14, 0xFFF},
	}

	for _, c := range cases {
		bits, err := NewBitStreamReader([]byte{c.first, c.extra})
		if err != nil {
			t.Fatal(err)
		}
		h := NewHuffLZ(bits)

		if offset := h.repeatOffset(); offset != c.expected {
			t.Errorf("0x%02X: expected(0x%03X) != actual(0x%03X)", c.first, c.expected, offset)
		}
		if pos := bits.BitReadPos(); pos != c.bits {
			t.Errorf("0x%02X: expected %d bits consumed, got %d", c.first, c.bits, pos)
		}
	}
}

func TestEmptyStreamDecodesNothing(t *testing.T) {
	bits, err := NewBitStreamReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHuffLZ(bits)

	buf := make([]byte, 16)
	if n, err := h.Read(buf); n != 0 || err != io.EOF {
		t.Fatalf("expected (0, EOF), got (%d, %v)", n, err)
	}

	internal, err := h.InternalBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(internal) != 0 {
		t.Fatalf("expected an empty buffer, got %d bytes", len(internal))
	}
}

func TestWindowStartsWithSpaces(t *testing.T) {
	bits, err := NewBitStreamReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHuffLZ(bits)
	for i, c := range h.window {
		if c != ' ' {
			t.Fatalf("window[%d]: expected(0x20) != actual(0x%02X)", i, c)
		}
	}
}

func TestCopyAvailableAcrossWrap(t *testing.T) {
	bits, err := NewBitStreamReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHuffLZ(bits)
	for i := range h.window {
		h.window[i] = byte(i)
	}
	h.read = windowSize - 3
	h.write = 2

	p := make([]byte, 2)
	if n := h.copyAvailable(p); n != 2 || p[0] != 0xFD || p[1] != 0xFE {
		t.Fatalf("first copy: got %d bytes % X", n, p[:n])
	}
	if h.read != windowSize-1 {
		t.Fatalf("expected read(%d) != actual(%d)", windowSize-1, h.read)
	}

	p = make([]byte, 8)
	if n := h.copyAvailable(p); n != 3 || p[0] != 0xFF || p[1] != 0x00 || p[2] != 0x01 {
		t.Fatalf("second copy: got %d bytes % X", n, p[:n])
	}
	if h.read != h.write {
		t.Fatalf("expected read(%d) == write(%d)", h.read, h.write)
	}
}

func TestInternalBufferAcrossWrap(t *testing.T) {
	bits, err := NewBitStreamReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHuffLZ(bits)
	for i := range h.window {
		h.window[i] = byte(i)
	}
	h.read = windowSize - 3
	h.write = 2

	first, err := h.InternalBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 3 || first[0] != 0xFD || first[2] != 0xFF {
		t.Fatalf("first view: got % X", first)
	}
	if &first[len(first)-1] != &h.window[windowSize-1] {
		t.Fatal("expected the first view to end at the end of the window")
	}
	if h.read != 0 {
		t.Fatalf("expected(0) != actual(%d)", h.read)
	}

	second, err := h.InternalBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 2 || &second[0] != &h.window[0] {
		t.Fatalf("expected the second view to start the window, got % X", second)
	}
	if h.read != h.write {
		t.Fatalf("expected read(%d) == write(%d)", h.read, h.write)
	}

	if rest, _ := h.InternalBuffer(); len(rest) != 0 {
		t.Fatalf("expected an empty view, got %d bytes", len(rest))
	}
}

// Any bit sequence is a valid stream, so random bytes decode to a long
// mix of literals and runs.
func TestFillNeverOverrunsUnreadData(t *testing.T) {
	payload := make([]byte, 8<<10)
	rand.New(rand.NewSource(1)).Read(payload)
	bits, err := NewBitStreamReader(payload)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHuffLZ(bits)

	var total, wraps int
	p := make([]byte, 97)
	for {
		if err := h.fill(); err != nil {
			t.Fatal(err)
		}
		unread := (h.write - h.read) & windowMask
		if unread > maxFill+maxRunLength-1 {
			t.Fatalf("%d unread bytes after fill, at most %d expected", unread, maxFill+maxRunLength-1)
		}
		if !h.eos && unread < maxFill {
			t.Fatalf("fill stopped early with %d unread bytes", unread)
		}
		if h.write < h.read {
			wraps++
		}

		n := h.copyAvailable(p)
		total += n
		if n == 0 && h.eos {
			break
		}
	}

	if total <= windowSize || wraps == 0 {
		t.Fatalf("expected output to wrap the window, decoded %d bytes with %d wrapped fills", total, wraps)
	}
}
