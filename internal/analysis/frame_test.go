// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"tracktweak/pkg/utils"
)

func TestNewFrameFIFORejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -8, 3, 1000} {
		if _, err := NewFrameFIFO(size); err == nil {
			t.Errorf("NewFrameFIFO(%d) should fail", size)
		}
	}
}

func TestFrameFIFOCapture(t *testing.T) {
	f, err := NewFrameFIFO(8)
	if err != nil {
		t.Fatalf("NewFrameFIFO: %v", err)
	}

	n, captured := f.Push([]float32{1, 2, 3, 4, 5})
	if n != 5 || captured || f.Ready() {
		t.Fatalf("partial frame: n=%d captured=%v ready=%v", n, captured, f.Ready())
	}

	// The push stops at the frame boundary.
	n, captured = f.Push([]float32{6, 7, 8, 9, 10})
	if n != 3 || !captured || !f.Ready() {
		t.Fatalf("completed frame: n=%d captured=%v ready=%v", n, captured, f.Ready())
	}
	for i, v := range f.Captured() {
		if v != float64(i+1) {
			t.Fatalf("Captured()[%d] = %v, want %d", i, v, i+1)
		}
	}

	// Ingestion continues while the captured slot stays untouched.
	f.Push([]float32{-1, -2})
	if f.Captured()[0] != 1 {
		t.Errorf("producer overwrote the captured frame")
	}

	f.Release()
	if f.Ready() {
		t.Errorf("Ready() should be false after Release")
	}
	if f.Completed() != 1 || f.Dropped() != 0 {
		t.Errorf("completed=%d dropped=%d, want 1/0", f.Completed(), f.Dropped())
	}
}

func TestFrameFIFODropsWhilePending(t *testing.T) {
	f, _ := NewFrameFIFO(64)
	signal := utils.GenerateConstant(64*3, 0.5)

	captures := 0
	for len(signal) > 0 {
		n, captured := f.Push(signal)
		signal = signal[n:]
		if captured {
			captures++
		}
	}

	if captures != 1 || f.Completed() != 1 || f.Dropped() != 2 {
		t.Errorf("captures=%d completed=%d dropped=%d, want 1/1/2", captures, f.Completed(), f.Dropped())
	}
	if !f.Ready() {
		t.Errorf("first frame should still be pending")
	}
}

func TestFrameFIFOReset(t *testing.T) {
	f, _ := NewFrameFIFO(4)
	f.Push([]float32{1, 1, 1, 1})
	f.Push([]float32{1, 1})
	f.Reset()

	if f.Ready() || f.Completed() != 0 || f.Dropped() != 0 {
		t.Fatalf("Reset left state behind: ready=%v completed=%d dropped=%d", f.Ready(), f.Completed(), f.Dropped())
	}
	// A full frame is needed again after Reset.
	if _, captured := f.Push([]float32{2, 2}); captured {
		t.Errorf("Reset did not rewind the write index")
	}
}

func TestFrameFIFOPushZeroAllocs(t *testing.T) {
	f, _ := NewFrameFIFO(2048)
	block := utils.GenerateConstant(512, 0.1)

	allocs := testing.AllocsPerRun(100, func() {
		if _, captured := f.Push(block); captured {
			f.Release()
		}
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in frame ingestion, got %.1f", allocs)
	}
}
