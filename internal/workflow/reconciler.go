package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/metrics"
	"github.com/proisp/workflow-driver/internal/models"
)

// Options configures the reconciliation engine.
type Options struct {
	// OwnerID is the id of the one workflow-driver service this process
	// runs on behalf of. Injected here instead of looked up at runtime.
	OwnerID uint
	// CreateSubscriberOnDiscovery makes the reconciler create a
	// pre-provisioned subscriber the first time it sees an ONU without one.
	CreateSubscriberOnDiscovery bool
}

// Engine reconciles service instances: given the fields the event handlers
// wrote, it derives a consistent {onu_state, authentication_state,
// dhcp_state} combination and pushes the resulting side effects to the ONU
// inventory and the subscriber record.
type Engine struct {
	store Store
	topo  Topology
	log   *zap.SugaredLogger
	opts  Options
	locks *keyLocks
}

func NewEngine(store Store, topo Topology, log *zap.SugaredLogger, opts Options) *Engine {
	return &Engine{
		store: store,
		topo:  topo,
		log:   log,
		opts:  opts,
		locks: newKeyLocks(),
	}
}

// Reconcile runs a full reconciliation pass for the service instance with
// the given serial number, serialized against any other work on the same
// serial. A returned *DeferredError must be retried later by the caller;
// *NotFoundError is terminal.
func (e *Engine) Reconcile(ctx context.Context, serial string) error {
	serial = models.NormalizeSerial(serial)
	release := e.locks.acquire(serial)
	defer release()
	return e.reconcileLocked(ctx, serial)
}

// reconcileLocked is the ordered state machine. Callers must hold the
// per-serial lock. Step order matters: auth depends on the ONU outcome,
// DHCP depends on the auth outcome.
func (e *Engine) reconcileLocked(ctx context.Context, serial string) error {
	si, err := e.store.ServiceInstanceBySerial(ctx, e.opts.OwnerID, serial)
	if err != nil {
		return err
	}

	// Entry guard: never derive state from a record the access network has
	// not confirmed yet; a pre-sync snapshot may be stale.
	if !si.Synced {
		return deferredf(serial, "service instance %s has not been confirmed synced", serial)
	}

	prev := *si

	if err := e.processONUState(ctx, si); err != nil {
		return err
	}
	e.processAuthState(si)
	e.processDHCPState(si)
	e.checkStateInvariants(si)

	if err := e.reconcileSubscriber(ctx, si); err != nil {
		return err
	}

	if fields := si.ChangedFields(&prev); len(fields) > 0 {
		if err := e.store.UpdateServiceInstanceFields(ctx, si, fields); err != nil {
			return fmt.Errorf("persisting service instance %s: %w", serial, err)
		}
		e.log.Debugw("service instance reconciled", "serial_number", serial, "changed_fields", fields)
	}
	return nil
}

// processONUState runs whitelist validation and applies the ONU admin-state
// side effect. An already DISABLED ONU is never re-enabled by validation
// alone; the DISABLED admin state is re-applied regardless of validity.
func (e *Engine) processONUState(ctx context.Context, si *models.ServiceInstance) error {
	valid, message, err := e.validateONU(ctx, si)
	if err != nil {
		var amb *AmbiguousWhitelistError
		if !errors.As(err, &amb) {
			return err
		}
		// A broken whitelist cannot authorize anything.
		e.log.Errorw("whitelist is ambiguous, treating ONU as invalid",
			"serial_number", si.SerialNumber, "entries", amb.Count)
		valid = false
		message = amb.Error()
	}

	switch si.OnuState {
	case models.OnuStateAwaiting, models.OnuStateEnabled:
		si.StatusMessage = message
		if valid {
			si.Valid = models.ValidationValid
			si.OnuState = models.OnuStateEnabled
			return e.updateONU(ctx, si.SerialNumber, models.AdminStateEnabled)
		}
		si.Valid = models.ValidationInvalid
		si.OnuState = models.OnuStateDisabled
		return e.updateONU(ctx, si.SerialNumber, models.AdminStateDisabled)

	case models.OnuStateDisabled:
		// Someone disabled this ONU on purpose; keep the device down but
		// record whether validation also failed.
		if valid {
			si.Valid = models.ValidationValid
			si.StatusMessage = "ONU has been disabled"
		} else {
			si.Valid = models.ValidationInvalid
			si.StatusMessage = message
		}
		return e.updateONU(ctx, si.SerialNumber, models.AdminStateDisabled)
	}
	return nil
}

var authMessages = map[models.AuthState]string{
	models.AuthStateAwaiting:  "Awaiting Authentication",
	models.AuthStateRequested: "Authentication requested",
	models.AuthStateStarted:   "Authentication started",
	models.AuthStateApproved:  "Authentication succeeded",
	models.AuthStateDenied:    "Authentication denied",
}

// processAuthState forces authentication back to AWAITING on a disabled
// ONU, otherwise appends the auth progress to the status message.
func (e *Engine) processAuthState(si *models.ServiceInstance) {
	if si.OnuState == models.OnuStateDisabled {
		si.AuthenticationState = models.AuthStateAwaiting
		return
	}
	if msg, ok := authMessages[si.AuthenticationState]; ok {
		si.StatusMessage += " - " + msg
	}
}

// processDHCPState clears any lease state while authentication has not
// been approved or denied: a subscriber without approved authentication
// must not retain an address.
func (e *Engine) processDHCPState(si *models.ServiceInstance) {
	switch si.AuthenticationState {
	case models.AuthStateAwaiting, models.AuthStateRequested, models.AuthStateStarted:
		si.IPAddress = ""
		si.MacAddress = ""
		si.DhcpState = models.DhcpStateAwaiting
	}
}

// checkStateInvariants asserts the tri-state combination is one the state
// machine can produce. A violation is logged, not fatal: a concurrent event
// may have legitimately moved state since the pass began, and the next pass
// self-heals.
func (e *Engine) checkStateInvariants(si *models.ServiceInstance) {
	ok := false
	switch si.OnuState {
	case models.OnuStateAwaiting, models.OnuStateDisabled:
		ok = si.AuthenticationState == models.AuthStateAwaiting && si.DhcpState == models.DhcpStateAwaiting
	case models.OnuStateEnabled:
		ok = si.AuthenticationState == models.AuthStateApproved || si.DhcpState == models.DhcpStateAwaiting
	}
	if !ok {
		e.log.Warnw("service instance reached an unexpected state combination",
			"serial_number", si.SerialNumber,
			"onu_state", si.OnuState,
			"authentication_state", si.AuthenticationState,
			"dhcp_state", si.DhcpState)
	}
}

// updateONU pushes the admin state to the inventory record, suppressing the
// write when nothing changed.
func (e *Engine) updateONU(ctx context.Context, serial string, state models.AdminState) error {
	onu, err := e.store.ONUDeviceBySerial(ctx, serial)
	if err != nil {
		return err
	}
	if onu.AdminState == state {
		return nil
	}
	e.log.Infow("updating ONU admin state", "serial_number", serial, "admin_state", state)
	return e.store.UpdateONUAdminState(ctx, serial, state)
}

// reconcileSubscriber derives the subscriber status from the reconciled
// tri-state and applies lease side effects. The subscriber row is written
// only when the status changed or a DHCPACK must be recorded, to avoid
// write amplification on every event.
func (e *Engine) reconcileSubscriber(ctx context.Context, si *models.ServiceInstance) error {
	sub, err := e.store.SubscriberByONUSerial(ctx, si.SerialNumber)
	if err != nil {
		var nfe *NotFoundError
		if !errors.As(err, &nfe) {
			return err
		}
		if !e.opts.CreateSubscriberOnDiscovery {
			// Subscriber provisioning is someone else's job.
			e.log.Debugw("no subscriber for service instance, skipping",
				"serial_number", si.SerialNumber)
			return nil
		}
		sub = &models.Subscriber{
			ONUDevice: si.SerialNumber,
			Status:    models.SubscriberStatusPreProvisioned,
		}
		if err := e.store.CreateSubscriber(ctx, sub); err != nil {
			return err
		}
		e.log.Infow("created subscriber on discovery", "serial_number", si.SerialNumber)
	}

	// An operator hold wins over anything the workflow derives.
	if sub.Status == models.SubscriberStatusDisabled {
		return nil
	}

	newStatus := deriveSubscriberStatus(si)
	statusChanged := newStatus != sub.Status
	gotLease := si.DhcpState == models.DhcpStateAck && si.IPAddress != "" && si.MacAddress != ""

	if !statusChanged && si.DhcpState != models.DhcpStateAck {
		return nil
	}

	prevStatus := sub.Status
	sub.Status = newStatus
	fields := []string{"status"}

	if statusChanged && newStatus == models.SubscriberStatusAwaitingAuth && prevStatus != models.SubscriberStatusAwaitingAuth {
		if err := e.store.DeleteIPAssignmentBySubscriber(ctx, sub.ID); err != nil {
			return err
		}
		sub.IPAddress = ""
		sub.MacAddress = ""
		fields = append(fields, "ip_address", "mac_address")
	}

	if gotLease {
		if err := e.upsertIPAssignment(ctx, sub.ID, si.IPAddress); err != nil {
			return err
		}
		sub.IPAddress = si.IPAddress
		sub.MacAddress = si.MacAddress
		fields = append(fields, "ip_address", "mac_address")
	}

	e.log.Infow("updating subscriber",
		"serial_number", si.SerialNumber,
		"status", sub.Status,
		"authentication_state", si.AuthenticationState)
	metrics.SubscriberWrites.Inc()
	return e.store.UpdateSubscriberFields(ctx, sub, fields)
}

func deriveSubscriberStatus(si *models.ServiceInstance) models.SubscriberStatus {
	if si.OnuState == models.OnuStateDisabled {
		return models.SubscriberStatusAwaitingAuth
	}
	switch si.AuthenticationState {
	case models.AuthStateApproved:
		return models.SubscriberStatusEnabled
	case models.AuthStateDenied:
		return models.SubscriberStatusAuthFailed
	default:
		return models.SubscriberStatusAwaitingAuth
	}
}

func (e *Engine) upsertIPAssignment(ctx context.Context, subscriberID uint, ip string) error {
	a, err := e.store.IPAssignmentBySubscriber(ctx, subscriberID)
	if err != nil {
		var nfe *NotFoundError
		if !errors.As(err, &nfe) {
			return err
		}
		a = &models.IPAddressAssignment{
			SubscriberID: subscriberID,
			Description:  models.DHCPAssignedDescription,
		}
	}
	a.IP = ip
	return e.store.SaveIPAssignment(ctx, a)
}
