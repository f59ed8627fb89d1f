package workflow

import (
	"context"
	"errors"

	"github.com/proisp/workflow-driver/internal/events"
	"github.com/proisp/workflow-driver/internal/models"
)

// HandleWhitelistEvent reacts to whitelist mutations published by the
// provisioning layer. Create/update re-validates every matching service
// instance (an entry may newly authorize an ONU); delete does the same and
// is expected to demote matching instances to DISABLED. Post-processing
// markers are written back on the entry so the provisioning layer can
// finish its lifecycle; both paths tolerate the entry row already being
// gone.
func (e *Engine) HandleWhitelistEvent(ctx context.Context, ev *events.DeviceEvent) error {
	serial := models.NormalizeSerial(ev.SerialNumber)

	e.log.Infow("whitelist changed, re-validating matching service instances",
		"event_id", ev.ID, "operation", ev.WhitelistOp, "serial_number", serial)

	if ev.WhitelistOp == events.WhitelistOpDeleted {
		// Flag the entry first: a row awaiting reap must no longer
		// authorize, whether or not the provisioning layer has removed it.
		if err := e.markWhitelistEntries(ctx, serial, "needs_reap", func(entry *models.WhitelistEntry) {
			entry.NeedsReap = true
		}); err != nil {
			return err
		}
		return e.revalidateSerial(ctx, serial)
	}

	if err := e.revalidateSerial(ctx, serial); err != nil {
		return err
	}
	return e.markWhitelistEntries(ctx, serial, "policy_applied", func(entry *models.WhitelistEntry) {
		entry.PolicyApplied = true
	})
}

// revalidateSerial reconciles the owning service's instance for serial, if
// one exists. (owner, serial) is unique, so a scoped lookup replaces a scan
// over every instance. Reconciliation re-runs validation from scratch, so
// whitelist-driven and event-driven passes converge on the same state.
func (e *Engine) revalidateSerial(ctx context.Context, serial string) error {
	si, err := e.store.ServiceInstanceBySerial(ctx, e.opts.OwnerID, serial)
	if err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			// No instance discovered for this serial yet.
			return nil
		}
		return err
	}

	if err := e.Reconcile(ctx, si.SerialNumber); err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			// Deleted concurrently; nothing left to re-validate.
			return nil
		}
		return err
	}
	return nil
}

// markWhitelistEntries sets a post-processing marker on every matching
// entry. A missing row means the reaper already finished; that is fine.
func (e *Engine) markWhitelistEntries(ctx context.Context, serial, field string, mark func(*models.WhitelistEntry)) error {
	entries, err := e.store.WhitelistEntries(ctx, e.opts.OwnerID, serial)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		mark(entry)
		if err := e.store.UpdateWhitelistEntryFields(ctx, entry, []string{field}); err != nil {
			var nfe *NotFoundError
			if errors.As(err, &nfe) {
				continue
			}
			return err
		}
	}
	return nil
}
