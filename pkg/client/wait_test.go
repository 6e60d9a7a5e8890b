package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/backkem/coap/pkg/message"
)

func testBuilder() *message.Builder {
	return message.NewBuilder(message.NewIDGeneratorWithValue(0x2000), message.NewTokenSource(0x2000, 4))
}

func build(t *testing.T, b *message.Builder) *message.Message {
	t.Helper()
	m, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return m
}

func TestWaitTableGet(t *testing.T) {
	table := NewWaitTable()
	b := testBuilder()
	req := build(t, b.Reset().CreateRequest(message.Confirmable, message.GET).WithPath("a"))

	holder, err := table.WaitResponse(req)
	if err != nil {
		t.Fatalf("WaitResponse() error = %v", err)
	}
	if _, err := table.WaitResponse(req); !errors.Is(err, ErrAlreadyWaiting) {
		t.Errorf("second WaitResponse() error = %v", err)
	}

	piggybacked := build(t, b.Reset().CreatePiggybackedResponse(req, message.Content))
	delayed := build(t, b.Reset().CreateDelayedResponse(req, message.Content))
	emptyAck := build(t, b.Reset().CreateAck(req.MessageID()))
	otherAck := build(t, b.Reset().CreateAck(req.MessageID()+1))
	stranger := build(t, b.Reset().CreateRequest(message.Confirmable, message.GET))

	tests := []struct {
		name    string
		msg     *message.Message
		checkID bool
		want    bool
	}{
		{"piggybacked by token and id", piggybacked, true, true},
		{"delayed by token", delayed, false, true},
		{"delayed fails id check", delayed, true, false},
		{"empty ack by id", emptyAck, false, true},
		{"empty ack other id", otherAck, false, false},
		{"unknown token", stranger, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Get(tt.msg, tt.checkID)
			if (got != nil) != tt.want {
				t.Errorf("Get() = %v, want found=%v", got, tt.want)
			}
			if got != nil && got != holder.WaitRecord {
				t.Error("Get() returned a different record")
			}
		})
	}

	holder.Close()
	holder.Close()
	if table.Len() != 0 {
		t.Errorf("Len() = %d after Close", table.Len())
	}
	if table.Get(piggybacked, true) != nil {
		t.Error("Get() found a closed record")
	}
}

func TestWaitRecordWait(t *testing.T) {
	table := NewWaitTable()
	b := testBuilder()
	req := build(t, b.Reset().CreateRequest(message.Confirmable, message.GET))
	resp := build(t, b.Reset().CreatePiggybackedResponse(req, message.Content))

	holder, _ := table.WaitResponse(req)
	defer holder.Close()

	if _, err := holder.Wait(context.Background(), 5*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Wait() error = %v, want ErrTimeout", err)
	}

	holder.Acknowledge()
	if _, err := holder.Wait(context.Background(), time.Second); !errors.Is(err, ErrAcknowledged) {
		t.Fatalf("Wait() error = %v, want ErrAcknowledged", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		holder.SetResponse(resp)
	}()
	got, err := holder.Wait(context.Background(), time.Second)
	if err != nil || got != resp {
		t.Fatalf("Wait() = %v, %v", got, err)
	}
	if holder.SetResponse(req) {
		t.Error("second SetResponse() = true")
	}
	if holder.Response() != resp {
		t.Error("Response() changed after second SetResponse")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other, _ := table.WaitResponse(build(t, b.Reset().CreateRequest(message.Confirmable, message.GET)))
	defer other.Close()
	if _, err := other.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait(canceled) error = %v", err)
	}
}
