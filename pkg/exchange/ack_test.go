package exchange

import (
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

var testPeerAddr = &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 5683}

func TestAckTableTrackAndStop(t *testing.T) {
	table := NewAckTable()
	key := newPeerKey(testPeerAddr, 100)
	p := &Processor{}

	if _, err := table.Track(key, p, time.Hour, func(*pendingAck) {}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if _, err := table.Track(key, p, time.Hour, func(*pendingAck) {}); !errors.Is(err, ErrAlreadyTracked) {
		t.Errorf("second Track error = %v, want ErrAlreadyTracked", err)
	}
	if !table.Has(key) || table.Count() != 1 {
		t.Fatal("entry should exist")
	}

	if got := table.Stop(key); got != p {
		t.Errorf("Stop returned %p, want %p", got, p)
	}
	// Second stop finds nothing.
	if got := table.Stop(key); got != nil {
		t.Errorf("second Stop returned %p, want nil", got)
	}
	if table.Count() != 0 {
		t.Errorf("Count = %d, want 0", table.Count())
	}
}

func TestAckTableKeyedByPeer(t *testing.T) {
	table := NewAckTable()
	other := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 3), Port: 5683}

	if _, err := table.Track(newPeerKey(testPeerAddr, 7), &Processor{}, time.Hour, func(*pendingAck) {}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if _, err := table.Track(newPeerKey(other, 7), &Processor{}, time.Hour, func(*pendingAck) {}); err != nil {
		t.Fatalf("Track for other peer failed: %v", err)
	}
	if table.Count() != 2 {
		t.Errorf("Count = %d, want 2", table.Count())
	}
	table.Clear()
	if table.Count() != 0 {
		t.Errorf("Count after Clear = %d", table.Count())
	}
}

func TestAckTableTimeout(t *testing.T) {
	table := NewAckTable()
	key := newPeerKey(testPeerAddr, 1)

	fired := make(chan *pendingAck, 4)
	entry, err := table.Track(key, &Processor{}, 10*time.Millisecond, func(e *pendingAck) { fired <- e })
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	select {
	case e := <-fired:
		if e != entry {
			t.Error("callback got a different entry")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout did not fire")
	}

	if !table.Rearm(entry, 10*time.Millisecond) {
		t.Fatal("Rearm of current entry failed")
	}
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("re-armed timeout did not fire")
	}
}

func TestAckTableStaleTimer(t *testing.T) {
	table := NewAckTable()
	key := newPeerKey(testPeerAddr, 2)

	var fired atomic.Int32
	entry, err := table.Track(key, &Processor{}, 20*time.Millisecond, func(*pendingAck) { fired.Add(1) })
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	table.Stop(key)

	if table.Rearm(entry, time.Millisecond) {
		t.Error("Rearm of stopped entry succeeded")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() != 0 {
		t.Errorf("stopped entry fired %d times", fired.Load())
	}
}
