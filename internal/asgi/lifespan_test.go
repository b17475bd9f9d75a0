package asgi

import (
	"context"
	"testing"
)

func TestLifespanReceiveStartupBeforeShutdown(t *testing.T) {
	h := NewLifespanHandler(func() bool { return false }, nil)
	msg, err := h.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.Type != LifespanStartup {
		t.Fatalf("Receive() = %+v, want lifespan.startup", msg)
	}
}

func TestLifespanReceiveShutdownAfterFlagSet(t *testing.T) {
	h := NewLifespanHandler(func() bool { return true }, nil)
	msg, _ := h.Receive(context.Background())
	if msg.Type != LifespanShutdown {
		t.Fatalf("Receive() = %+v, want lifespan.shutdown", msg)
	}
}

func TestLifespanSendFailedDoesNotError(t *testing.T) {
	h := NewLifespanHandler(func() bool { return false }, nil)
	if err := h.Send(context.Background(), Message{Type: LifespanStartupFailed, Message: "boom"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := h.Send(context.Background(), Message{Type: LifespanShutdownFailed, Message: "boom"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
