package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/events"
	"github.com/proisp/workflow-driver/internal/workflow"
)

// Worker consumes deferred-reconciliation tasks. Returning an error makes
// asynq retry with backoff, which is exactly what a DeferredError asks for;
// terminal failures are swallowed so the task is not retried pointlessly.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine *workflow.Engine
	log    *zap.SugaredLogger
}

func NewWorker(redisAddr, redisPassword string, engine *workflow.Engine, log *zap.SugaredLogger) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr, Password: redisPassword},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				QueueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	w := &Worker{server: server, mux: mux, engine: engine, log: log}
	mux.HandleFunc(TaskReconcile, w.handleReconcile)
	mux.HandleFunc(TaskWhitelist, w.handleWhitelist)
	return w
}

// Run blocks serving tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Errorw("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleReconcile(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReconcilePayload(task)
	if err != nil {
		return err
	}

	err = w.engine.Reconcile(ctx, payload.SerialNumber)
	switch {
	case err == nil:
		return nil
	case workflow.IsDeferred(err):
		w.log.Infow("reconciliation still deferred, will retry",
			"serial_number", payload.SerialNumber, "error", err)
		return err
	default:
		// Terminal: the record vanished or the store failed hard. Log and
		// let the task finish; the next event or sweep pass picks it up.
		w.log.Errorw("deferred reconciliation failed terminally",
			"serial_number", payload.SerialNumber, "error", err)
		return nil
	}
}

// handleWhitelist replays the whole whitelist pass. Re-validation alone is
// not enough: the entry markers are only written on a pass that completes,
// so a deferred pass must be repeated end to end.
func (w *Worker) handleWhitelist(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseWhitelistPayload(task)
	if err != nil {
		return err
	}

	ev := &events.DeviceEvent{
		ID:           uuid.New(),
		Type:         events.TypeWhitelist,
		ReceivedAt:   time.Now().UTC(),
		WhitelistOp:  payload.Operation,
		SerialNumber: payload.SerialNumber,
	}

	err = w.engine.HandleWhitelistEvent(ctx, ev)
	switch {
	case err == nil:
		return nil
	case workflow.IsDeferred(err):
		w.log.Infow("whitelist pass still deferred, will retry",
			"serial_number", payload.SerialNumber, "operation", payload.Operation, "error", err)
		return err
	default:
		w.log.Errorw("deferred whitelist pass failed terminally",
			"serial_number", payload.SerialNumber, "operation", payload.Operation, "error", err)
		return nil
	}
}
