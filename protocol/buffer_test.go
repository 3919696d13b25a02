package protocol

import (
	"errors"
	"math"
	"testing"

	"github.com/bits-and-blooms/bitset"
)

func TestLengthPrefixBrackets(t *testing.T) {
	w := NewWriter(64)
	if err := w.CommitLength(); !errors.Is(err, ErrLengthNotOpen) {
		t.Fatalf("CommitLength without StartLength: got %v", err)
	}
	if err := w.StartLength(); err != nil {
		t.Fatal(err)
	}
	if err := w.StartLength(); !errors.Is(err, ErrLengthOpen) {
		t.Fatalf("nested StartLength: got %v", err)
	}
	w.PutUint8(7)
	w.PutInt32(-1)
	if err := w.CommitLength(); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	if got := r.Uint16(); got != 5 {
		t.Fatalf("length prefix = %d, want 5", got)
	}
	if r.Uint8() != 7 || r.Int32() != -1 {
		t.Fatal("payload mismatch")
	}

	// 提交后可以再次打开
	if err := w.StartLength(); err != nil {
		t.Fatalf("StartLength after commit: %v", err)
	}
}

func TestCommitLengthRejectsOversizedPayload(t *testing.T) {
	w := NewWriter(70010)
	if err := w.StartLength(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 70000; i++ {
		w.PutUint8(uint8(i))
	}
	if err := w.CommitLength(); !errors.Is(err, ErrLengthTooLarge) {
		t.Fatalf("70000-byte payload: got %v, want ErrLengthTooLarge", err)
	}
	if !errors.Is(w.Err(), ErrLengthTooLarge) {
		t.Fatalf("error should stick, got %v", w.Err())
	}

	// 恰好 65535 字节仍然合法
	w = NewWriter(math.MaxUint16 + 2)
	if err := w.StartLength(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < math.MaxUint16; i++ {
		w.PutUint8(0)
	}
	if err := w.CommitLength(); err != nil {
		t.Fatalf("65535-byte payload: %v", err)
	}
	if got := NewReader(w.Bytes()).Uint16(); got != math.MaxUint16 {
		t.Fatalf("prefix = %d, want %d", got, math.MaxUint16)
	}
}

func TestWriteBufferOverflowIsSticky(t *testing.T) {
	w := NewWriter(3)
	w.PutUint16(1)
	w.PutUint16(2)
	w.PutUint8(3)
	if !errors.Is(w.Err(), ErrBufferOverflow) {
		t.Fatalf("Err() = %v, want overflow", w.Err())
	}
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}
	w.Reset()
	if w.Err() != nil || w.Len() != 0 {
		t.Fatal("Reset should clear data and error")
	}
}

func TestReadBufferShortRead(t *testing.T) {
	r := NewReader([]byte{0, 1, 2})
	_ = r.Uint16()
	if r.Uint16() != 0 {
		t.Fatal("over-read should return zero")
	}
	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Fatalf("Err() = %v", r.Err())
	}
}

func TestReadBufferNextBoundsFrame(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4})
	f := r.Next(2)
	if f.Uint8() != 1 || f.Uint8() != 2 {
		t.Fatal("frame bytes mismatch")
	}
	f.Uint8()
	if f.Err() == nil {
		t.Fatal("frame read past its end should fail")
	}
	if r.Uint8() != 3 {
		t.Fatal("parent should continue after the frame")
	}
}

func TestStringRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.PutString("Player_01")
	r := NewReader(w.Bytes())
	if got := r.String(); got != "Player_01" {
		t.Fatalf("got %q", got)
	}
	if r.Remaining() != 0 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}

func TestBitsetWireForm(t *testing.T) {
	tests := []struct {
		name string
		bits []uint
		want []byte
	}{
		{"empty", nil, []byte{0, 0}},
		{"low bits", []uint{0, 3}, []byte{0, 1, 0x09}},
		{"second byte", []uint{9}, []byte{0, 2, 0x00, 0x02}},
		{"crosses word", []uint{63, 64}, []byte{0, 9, 0, 0, 0, 0, 0, 0, 0, 0x80, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := bitset.New(200)
			for _, b := range tt.bits {
				bs.Set(b)
			}
			w := NewWriter(64)
			w.PutBitset(bs)
			if got := w.Bytes(); string(got) != string(tt.want) {
				t.Fatalf("wire = %v, want %v", got, tt.want)
			}

			back := NewReader(w.Bytes()).Bitset()
			if back.Count() != uint(len(tt.bits)) {
				t.Fatalf("decoded count = %d, want %d", back.Count(), len(tt.bits))
			}
			for _, b := range tt.bits {
				if !back.Test(b) {
					t.Fatalf("bit %d lost", b)
				}
			}
		})
	}
}
