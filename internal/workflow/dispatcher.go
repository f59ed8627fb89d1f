package workflow

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/events"
	"github.com/proisp/workflow-driver/internal/metrics"
)

// Retrier schedules deferred work for later. Implemented by the
// asynq-backed scheduler client.
type Retrier interface {
	ScheduleReconcile(ctx context.Context, serial string) error
	// ScheduleWhitelist re-runs a whitelist pass end to end. Plain
	// reconciliation would converge the instance but never write the
	// entry's policy_applied/needs_reap markers.
	ScheduleWhitelist(ctx context.Context, operation, serial string) error
}

// Dispatcher routes normalized bus events to the engine's handlers and
// classifies the outcome: deferred conditions are handed to the retrier,
// resolution and not-found failures are logged with full event context and
// dropped, anything else is an error.
type Dispatcher struct {
	engine  *Engine
	retrier Retrier
	log     *zap.SugaredLogger
}

func NewDispatcher(engine *Engine, retrier Retrier, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{engine: engine, retrier: retrier, log: log}
}

// HandleDeviceEvent implements events.Sink.
func (d *Dispatcher) HandleDeviceEvent(ctx context.Context, ev *events.DeviceEvent) error {
	var err error
	switch ev.Type {
	case events.TypeAuth:
		err = d.engine.HandleAuthEvent(ctx, ev)
	case events.TypeDHCP:
		err = d.engine.HandleDhcpEvent(ctx, ev)
	case events.TypeONU:
		err = d.engine.HandleOnuEvent(ctx, ev)
	case events.TypeWhitelist:
		err = d.engine.HandleWhitelistEvent(ctx, ev)
	default:
		d.log.Warnw("no handler for event type", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	if err == nil {
		metrics.Reconciliations.WithLabelValues("ok").Inc()
		return nil
	}

	var de *DeferredError
	if errors.As(err, &de) {
		metrics.Reconciliations.WithLabelValues("deferred").Inc()
		d.log.Infow("reconciliation deferred, scheduling retry",
			"event_id", ev.ID, "serial_number", de.SerialNumber, "reason", de.Reason)
		if d.retrier == nil {
			return err
		}
		if ev.Type == events.TypeWhitelist {
			if rerr := d.retrier.ScheduleWhitelist(ctx, ev.WhitelistOp, ev.SerialNumber); rerr != nil {
				d.log.Errorw("failed to schedule whitelist retry",
					"serial_number", ev.SerialNumber, "error", rerr)
				return rerr
			}
			return nil
		}
		if rerr := d.retrier.ScheduleReconcile(ctx, de.SerialNumber); rerr != nil {
			d.log.Errorw("failed to schedule reconciliation retry",
				"serial_number", de.SerialNumber, "error", rerr)
			return rerr
		}
		return nil
	}

	var re *ResolutionError
	if errors.As(err, &re) {
		metrics.EventsDropped.WithLabelValues(ev.Topic(), "resolution").Inc()
		d.log.Errorw("dropping event, cannot resolve ONU serial number",
			"event_id", ev.ID,
			"topic", ev.Topic(),
			"device_id", re.DeviceID,
			"port_number", re.PortNumber)
		return nil
	}

	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		metrics.EventsDropped.WithLabelValues(ev.Topic(), "not_found").Inc()
		d.log.Errorw("dropping event, required record missing",
			"event_id", ev.ID,
			"topic", ev.Topic(),
			"kind", nfe.Kind,
			"key", nfe.Key)
		return nil
	}

	metrics.Reconciliations.WithLabelValues("error").Inc()
	d.log.Errorw("event handling failed", "event_id", ev.ID, "topic", ev.Topic(), "error", err)
	return err
}
