package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/toolgate/internal/services/toolgate/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrToolNotFound is returned when a call names a tool outside the catalogue.
var ErrToolNotFound = errors.New("tool not found")

const tracerName = "toolgate.dispatcher"

// ToolCallRequest is a decoded tools/call request.
type ToolCallRequest struct {
	Name      string
	Arguments map[string]any
}

// Dispatcher answers tool requests for one session.
//
// It holds no session state of its own; every operation re-reads the store.
type Dispatcher struct {
	sessionID string
	store     storage.SessionStore
	notifier  Notifier
	now       func() time.Time
	tracer    trace.Tracer
	metrics   *dispatcherMetrics
}

// NewDispatcher binds a dispatcher to sessionID. notifier may be nil.
func NewDispatcher(sessionID string, store storage.SessionStore, notifier Notifier) *Dispatcher {
	return &Dispatcher{
		sessionID: sessionID,
		store:     store,
		notifier:  notifier,
		now:       time.Now,
		tracer:    otel.Tracer(tracerName),
		metrics:   globalMetrics(),
	}
}

// SessionID returns the session the dispatcher serves.
func (d *Dispatcher) SessionID() string {
	return d.sessionID
}

// ListTools returns the tools visible to the session.
// A store read failure is logged and answered with the locked view.
func (d *Dispatcher) ListTools(ctx context.Context) []*mcp.Tool {
	ctx, span := d.tracer.Start(ctx, "ListTools", trace.WithAttributes(
		attribute.String("session.id", d.sessionID),
	))
	defer span.End()

	session, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		log.Printf("list tools for session %s: %v", d.sessionID, err)
		span.RecordError(err)
		session = storage.DefaultSession(d.sessionID)
	}
	tools := VisibleTools(session)
	span.SetAttributes(attribute.Int("tools.count", len(tools)))
	return tools
}

// CallTool executes req against the session.
//
// Unknown tools fail with ErrToolNotFound. Locked access, argument type
// mismatches, and repeated unlocks are reported as text results.
func (d *Dispatcher) CallTool(ctx context.Context, req ToolCallRequest) (*mcp.CallToolResult, error) {
	ctx, span := d.tracer.Start(ctx, "CallTool", trace.WithAttributes(
		attribute.String("session.id", d.sessionID),
		attribute.String("tool.name", req.Name),
	))
	defer span.End()

	result, outcome, err := d.callTool(ctx, req)
	d.metrics.recordCall(ctx, req.Name, outcome)
	span.SetAttributes(attribute.String("tool.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (d *Dispatcher) callTool(ctx context.Context, req ToolCallRequest) (*mcp.CallToolResult, string, error) {
	name, ok := ParseToolName(req.Name)
	if !ok {
		return nil, outcomeNotFound, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	if name == ToolUnlock {
		return d.unlock(ctx)
	}

	session, err := d.store.GetSession(ctx, d.sessionID)
	if err != nil {
		return nil, outcomeError, fmt.Errorf("load session %s: %w", d.sessionID, err)
	}
	if !IsCallAllowed(session, name) {
		return textResult(accessDeniedText), outcomeDenied, nil
	}
	handler, ok := gatedHandlers[name]
	if !ok {
		return nil, outcomeNotFound, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return handler(args), outcomeOK, nil
}

// unlock performs the Locked -> Unlocked transition at the store's
// serialization point so concurrent callers see exactly one transition.
func (d *Dispatcher) unlock(ctx context.Context) (*mcp.CallToolResult, string, error) {
	transitioned := false
	_, err := d.store.UpdateSession(ctx, d.sessionID, func(current storage.Session, _ bool) (storage.Session, bool, error) {
		if current.Unlocked {
			return current, false, nil
		}
		current.Unlocked = true
		current.UpdatedAt = d.now().UTC()
		transitioned = true
		return current, true, nil
	})
	if err != nil {
		return nil, outcomeError, fmt.Errorf("unlock session %s: %w", d.sessionID, err)
	}
	if !transitioned {
		return textResult(alreadyUnlockedText), outcomeAlreadyUnlocked, nil
	}

	d.metrics.recordUnlock(ctx)
	unlocked := GatedTools()
	d.notifyUnlocked(ctx, unlocked)
	return textResult(unlockedText(unlocked)), outcomeUnlocked, nil
}

func (d *Dispatcher) notifyUnlocked(ctx context.Context, unlocked []*mcp.Tool) {
	if d.notifier == nil {
		return
	}
	sent := 0
	for _, notification := range UnlockNotifications(d.sessionID, unlocked) {
		if err := d.notifier.Notify(ctx, d.sessionID, notification); err != nil {
			log.Printf("send %s to session %s: %v", notification.Method, d.sessionID, err)
			d.metrics.recordNotifyFailure(ctx, notification.Method)
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Printf("notified session %s of unlocked tools: %s", d.sessionID, toolNames(unlocked))
	}
}
