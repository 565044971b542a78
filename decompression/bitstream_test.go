package decompression

import (
	"github.com/pkg/errors"
	"math"
	"testing"
)

func TestBitStreamReadNextBit(t *testing.T) {
	bs, err := NewBitStreamReader([]byte{0xA5, 0x3C})
	if err != nil {
		t.Fatal(err)
	}

	expected := []bool{
		true, false, true, false, false, true, false, true,
		false, false, true, true, true, true, false, false,
	}
	for i, bit := range expected {
		if bs.EndOfStream() {
			t.Fatalf("%d: unexpected end of stream", i)
		}
		if actual := bs.ReadNextBit(); actual != bit {
			t.Fatalf("%d: expected(%v) != actual(%v)", i, bit, actual)
		}
		if pos := bs.BitReadPos(); pos != uint32(i+1) {
			t.Fatalf("%d: expected position(%d) != actual(%d)", i, i+1, pos)
		}
	}

	if !bs.EndOfStream() {
		t.Fatal("expected end of stream")
	}
	if bs.ReadNextBit() {
		t.Fatal("expected false past the end of the stream")
	}
	if v := bs.ReadNext8Bits(); v != 0 {
		t.Fatalf("expected 0 past the end of the stream, got 0x%02X", v)
	}
}

func TestBitStreamUnalignedBytes(t *testing.T) {
	bs, err := NewBitStreamReader([]byte{0xA5, 0x3C})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		bs.ReadNextBit()
	}

	if v := bs.ReadNext8Bits(); v != 0x29 {
		t.Fatalf("expected(0x29) != actual(0x%02X)", v)
	}
	if pos := bs.BitReadPos(); pos != 11 {
		t.Fatalf("expected(11) != actual(%d)", pos)
	}

	// Only five bits remain; they land in the high end.
	if v := bs.ReadNext8Bits(); v != 0xE0 {
		t.Fatalf("expected(0xE0) != actual(0x%02X)", v)
	}
	if !bs.EndOfStream() {
		t.Fatal("expected end of stream")
	}
}

func TestBitStreamEmpty(t *testing.T) {
	bs, err := NewBitStreamReader(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bs.EndOfStream() {
		t.Fatal("expected an empty stream to start at its end")
	}
	if bs.ReadNextBit() || bs.ReadNext8Bits() != 0 {
		t.Fatal("expected sentinel values")
	}
}

func TestBitStreamTooLarge(t *testing.T) {
	cases := []struct {
		size  uint64
		valid bool
	}{
		{0, true},
		{math.MaxUint32 / 8, true},
		{math.MaxUint32/8 + 1, false},
		{math.MaxUint64, false},
	}
	for _, c := range cases {
		err := verifyBitStreamSize(c.size)
		if c.valid && err != nil {
			t.Fatalf("%d: %v", c.size, err)
		}
		if !c.valid && !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%d: expected ErrInvalidArgument, got %v", c.size, err)
		}
	}
}
