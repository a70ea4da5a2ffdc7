package mem

import "testing"

func TestPageRounding(t *testing.T) {
	if got := PageRounddown(0x1fff); got != 0x1000 {
		t.Errorf("PageRounddown(0x1fff) = 0x%x, want 0x1000", got)
	}
	if got := PageRoundup(0x1001); got != 0x2000 {
		t.Errorf("PageRoundup(0x1001) = 0x%x, want 0x2000", got)
	}
	if got := PageRoundup(0x2000); got != 0x2000 {
		t.Errorf("PageRoundup(0x2000) = 0x%x, want 0x2000 (already aligned)", got)
	}
}

func TestFramePaRoundTrip(t *testing.T) {
	f := Frame_t(17)
	pa := PaOf(f)
	if got := FrameOf(pa); got != f {
		t.Errorf("FrameOf(PaOf(%d)) = %d, want %d", f, got, f)
	}
}

func TestRAMZeroAndBytes(t *testing.T) {
	r := NewRAM(4)
	p := r.Page(2)
	for i := range p {
		p[i] = 0xAB
	}
	r.Zero(2)
	for i, b := range r.Bytes(2) {
		if b != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, b)
		}
	}
}

func TestRAMZeroRun(t *testing.T) {
	r := NewRAM(4)
	for f := Frame_t(0); f < 4; f++ {
		p := r.Page(f)
		p[0] = 1
	}
	r.ZeroRun(1, 2)
	if r.Bytes(0)[0] != 1 {
		t.Errorf("frame 0 should be untouched")
	}
	if r.Bytes(1)[0] != 0 || r.Bytes(2)[0] != 0 {
		t.Errorf("frames 1,2 should be zeroed")
	}
	if r.Bytes(3)[0] != 1 {
		t.Errorf("frame 3 should be untouched")
	}
}

func TestRAMOutOfRangePanics(t *testing.T) {
	r := NewRAM(1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range frame")
		}
	}()
	r.Page(5)
}

func TestDmapRoundTrip(t *testing.T) {
	pa := Pa_t(0x2000)
	kva := PaddrToKvaddr(pa)
	if got := KvaddrToPaddr(kva); got != pa {
		t.Errorf("KvaddrToPaddr(PaddrToKvaddr(pa)) = 0x%x, want 0x%x", got, pa)
	}
}

func TestKvaddrToPaddrPanicsBelowBase(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for address below KvaddrBase")
		}
	}()
	KvaddrToPaddr(0x100)
}
