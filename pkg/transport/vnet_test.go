package transport

import (
	"net"
	"testing"
	"time"
)

func TestVirtualNetwork_ThreeEndpoints(t *testing.T) {
	vn, err := NewVirtualNetwork(VirtualNetworkConfig{})
	if err != nil {
		t.Fatalf("NewVirtualNetwork failed: %v", err)
	}
	defer vn.Close()

	ips := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	channels := make([]Channel, len(ips))
	inboxes := make([]chan *ReceivedMessage, len(ips))
	for i, ip := range ips {
		f, err := vn.Endpoint(ip, DefaultPort)
		if err != nil {
			t.Fatalf("Endpoint(%s) failed: %v", ip, err)
		}
		inbox := make(chan *ReceivedMessage, 4)
		inboxes[i] = inbox
		ch, err := f.Create(func(msg *ReceivedMessage) { inbox <- msg })
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := ch.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer f.Retire(ch)
		channels[i] = ch
	}

	vn.SetDropFunc(func(src, dst net.Addr, data []byte) bool {
		return string(data) == "drop"
	})

	if err := channels[0].Send([]byte("drop"), channels[2].LocalAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := channels[0].Send([]byte("to-2"), channels[2].LocalAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := channels[1].Send([]byte("to-0"), channels[0].LocalAddr()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case msg := <-inboxes[2]:
		if string(msg.Data) != "to-2" {
			t.Errorf("endpoint 2 received %q, want to-2", msg.Data)
		}
		if !SameAddr(msg.Source, channels[0].LocalAddr()) {
			t.Errorf("Source = %v, want %v", msg.Source, channels[0].LocalAddr())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout at endpoint 2")
	}

	select {
	case msg := <-inboxes[0]:
		if string(msg.Data) != "to-0" {
			t.Errorf("endpoint 0 received %q, want to-0", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout at endpoint 0")
	}
}

func TestAddrHelpers(t *testing.T) {
	a := &net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5683}
	b := &net.UDPAddr{IP: net.ParseIP("10.0.0.1").To4(), Port: 5683}
	if !SameAddr(a, b) {
		t.Error("SameAddr() = false for equal IPv4 in different forms")
	}
	if AddrKey(a) != AddrKey(b) {
		t.Errorf("AddrKey() = %q and %q", AddrKey(a), AddrKey(b))
	}
	if SameAddr(a, &net.UDPAddr{IP: a.IP, Port: 5684}) {
		t.Error("SameAddr() = true for different ports")
	}

	r, err := ResolveUDPAddr("127.0.0.1")
	if err != nil {
		t.Fatalf("ResolveUDPAddr failed: %v", err)
	}
	if r.Port != DefaultPort {
		t.Errorf("port = %d, want %d", r.Port, DefaultPort)
	}
}
