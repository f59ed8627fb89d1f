// Package scheduler runs deferred reconciliation retries on an asynq
// (Redis-backed) queue. A reconciliation that hits a not-yet-met
// precondition signals "retry me later"; asynq's retry machinery supplies
// the later, with backoff.
package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TaskReconcile re-runs reconciliation for one serial number.
	TaskReconcile = "workflow:reconcile"

	// TaskWhitelist re-runs a whitelist pass (re-validation plus entry
	// markers) for one serial number.
	TaskWhitelist = "workflow:whitelist"

	// QueueName is the asynq queue the driver uses.
	QueueName = "workflow"
)

// ReconcilePayload identifies the service instance to reconcile.
type ReconcilePayload struct {
	SerialNumber string `json:"serial_number"`
}

// NewReconcileTask builds the retry task for a serial number.
func NewReconcileTask(serial string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{SerialNumber: serial})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcile, payload), nil
}

// ParseReconcilePayload decodes a reconcile task's payload.
func ParseReconcilePayload(task *asynq.Task) (ReconcilePayload, error) {
	var p ReconcilePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decoding %s payload: %w", task.Type(), err)
	}
	if p.SerialNumber == "" {
		return p, fmt.Errorf("%s payload has no serial number", task.Type())
	}
	return p, nil
}

// WhitelistPayload identifies the whitelist change to re-process.
type WhitelistPayload struct {
	Operation    string `json:"operation"`
	SerialNumber string `json:"serial_number"`
}

// NewWhitelistTask builds the retry task for a whitelist change.
func NewWhitelistTask(operation, serial string) (*asynq.Task, error) {
	payload, err := json.Marshal(WhitelistPayload{Operation: operation, SerialNumber: serial})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWhitelist, payload), nil
}

// ParseWhitelistPayload decodes a whitelist task's payload.
func ParseWhitelistPayload(task *asynq.Task) (WhitelistPayload, error) {
	var p WhitelistPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return p, fmt.Errorf("decoding %s payload: %w", task.Type(), err)
	}
	if p.SerialNumber == "" {
		return p, fmt.Errorf("%s payload has no serial number", task.Type())
	}
	if p.Operation == "" {
		return p, fmt.Errorf("%s payload has no operation", task.Type())
	}
	return p, nil
}
