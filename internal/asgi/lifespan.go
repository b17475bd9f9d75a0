package asgi

import (
	"context"

	"go.uber.org/zap"
)

// LifespanHandler drives one app through ASGI lifespan startup or shutdown
// (spec §4.7). ShuttingDown is read, never written, by the handler; the
// server skeleton owns it.
type LifespanHandler struct {
	ShuttingDown func() bool
	Log          *zap.Logger
}

// NewLifespanHandler builds a handler; shuttingDown reports the server's
// current shutdown flag and log receives lifespan.*.failed messages.
func NewLifespanHandler(shuttingDown func() bool, log *zap.Logger) *LifespanHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifespanHandler{ShuttingDown: shuttingDown, Log: log}
}

// CreateScope builds the lifespan scope (spec §3).
func (h *LifespanHandler) CreateScope() Scope {
	return Scope{Type: ScopeLifespan, ASGI: Version}
}

// Receive implements the ASGI receive callable: lifespan.startup before any
// request has been served, lifespan.shutdown once the server has entered
// shutdown (spec §4.7).
func (h *LifespanHandler) Receive(ctx context.Context) (Message, error) {
	if h.ShuttingDown != nil && h.ShuttingDown() {
		return Message{Type: LifespanShutdown}, nil
	}
	return Message{Type: LifespanStartup}, nil
}

// Send implements the ASGI send callable: *.failed events log at ERROR;
// *.complete events are silent acknowledgements (spec §4.7).
func (h *LifespanHandler) Send(ctx context.Context, msg Message) error {
	switch msg.Type {
	case LifespanStartupFailed:
		h.Log.Error("app startup failed", zap.String("message", msg.Message))
	case LifespanShutdownFailed:
		h.Log.Error("app shutdown failed", zap.String("message", msg.Message))
	}
	return nil
}
