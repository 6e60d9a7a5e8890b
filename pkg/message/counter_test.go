package message

import (
	"sync"
	"testing"
)

func TestIDGeneratorSeed(t *testing.T) {
	for i := 0; i < 100; i++ {
		g := NewIDGenerator(0xB000)
		if id := g.Current(); id&0xF000 != 0xB000 {
			t.Fatalf("seed %#x does not carry unique nibble", id)
		}
	}
}

func TestIDGeneratorWraps(t *testing.T) {
	g := NewIDGeneratorWithValue(0xAFFE)
	want := []uint16{0xAFFE, 0xAFFF, 0xA000, 0xA001}
	for _, w := range want {
		if got := g.Next(); got != w {
			t.Errorf("Next() = %#x, want %#x", got, w)
		}
	}
}

func TestIDGeneratorConcurrent(t *testing.T) {
	g := NewIDGeneratorWithValue(0xA000)
	const goroutines = 16
	const perGoroutine = 200

	var wg sync.WaitGroup
	values := make(chan uint16, goroutines*perGoroutine)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				values <- g.Next()
			}
		}()
	}
	wg.Wait()
	close(values)

	seen := make(map[uint16]bool)
	for v := range values {
		if seen[v] {
			t.Fatalf("duplicate ID %#x", v)
		}
		seen[v] = true
	}
}

func TestTokenSource(t *testing.T) {
	src := NewTokenSource(0xC000, 0)
	if src.Length() != DefaultTokenLength {
		t.Fatalf("Length() = %d, want %d", src.Length(), DefaultTokenLength)
	}
	a, b := src.Next(), src.Next()
	if a[0] != 0xC0 || b[0] != 0xC0 {
		t.Errorf("tokens %x %x do not start with unique byte", a, b)
	}
	if string(a) == string(b) {
		t.Error("consecutive tokens are equal")
	}
}
