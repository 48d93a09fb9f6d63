package bot

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/events"
	"github.com/sipeed/clawcord/pkg/logger"
	"github.com/sipeed/clawcord/pkg/metrics"
)

// EventHandler processes one gateway event.
type EventHandler interface {
	Handle(ctx context.Context, ev bus.Event) error
}

// Dispatcher consumes the bus in a single loop and runs each event on a
// bounded worker pool. Errors and panics stop at the invocation boundary.
type Dispatcher struct {
	bus     *bus.MessageBus
	handler EventHandler
	metrics *metrics.Metrics
	workers int
}

func NewDispatcher(mb *bus.MessageBus, handler EventHandler, m *metrics.Metrics, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{bus: mb, handler: handler, metrics: m, workers: workers}
}

// Run blocks until ctx is done or the bus is closed, then waits for
// in-flight invocations.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.InfoCF("dispatch", "Dispatcher started", map[string]interface{}{
		"workers": d.workers,
	})

	var g errgroup.Group
	g.SetLimit(d.workers)

	for {
		ev, ok := d.bus.Consume(ctx)
		if !ok {
			break
		}
		g.Go(func() error {
			d.invoke(ctx, ev)
			return nil
		})
	}

	g.Wait()
	logger.InfoC("dispatch", "Dispatcher stopped")
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, ev bus.Event) {
	meta := ev.Meta()
	kind := string(ev.Kind())

	defer func() {
		if r := recover(); r != nil {
			d.fail(meta.ID, kind, fmt.Sprintf("panic: %v", r), true)
			logger.DebugCF("dispatch", "Handler panic stack", map[string]interface{}{
				"event_id": meta.ID,
				"stack":    string(debug.Stack()),
			})
		}
	}()

	if err := d.handler.Handle(ctx, ev); err != nil {
		d.fail(meta.ID, kind, err.Error(), false)
	}
}

func (d *Dispatcher) fail(eventID, kind, msg string, panicked bool) {
	failureType := "error"
	if panicked {
		failureType = "panic"
	}
	d.metrics.IncrHandlerFailure(kind, failureType)
	logger.ErrorCF("dispatch", "Handler invocation failed", map[string]interface{}{
		"event_id":   eventID,
		"event_kind": kind,
		"error":      msg,
		"panic":      panicked,
	})
	d.bus.PublishSystem(events.New(events.HandlerFailed, "dispatch", events.HandlerEventData{
		EventID:   eventID,
		EventKind: kind,
		Error:     msg,
		Panic:     panicked,
	}))
}
