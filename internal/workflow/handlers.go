package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/proisp/workflow-driver/internal/events"
	"github.com/proisp/workflow-driver/internal/models"
)

// Event handlers: thin adapters that locate (or create) the service
// instance a bus event refers to, apply the event's narrow field delta, and
// run a reconciliation pass. All of them hold the per-serial lock across
// the delta write and the reconciliation.

// HandleAuthEvent applies an 802.1X state change. The service instance must
// already exist; an authentication event for an unknown ONU is a fact about
// a device we never discovered and is dropped.
func (e *Engine) HandleAuthEvent(ctx context.Context, ev *events.DeviceEvent) error {
	serial, err := e.resolveSerial(ctx, ev.DeviceID, ev.PortNumber)
	if err != nil {
		return err
	}

	release := e.locks.acquire(serial)
	defer release()

	si, err := e.store.ServiceInstanceBySerial(ctx, e.opts.OwnerID, serial)
	if err != nil {
		return err
	}

	prev := *si
	si.AuthenticationState = models.AuthState(ev.AuthenticationState)
	if err := e.persistDelta(ctx, si, &prev); err != nil {
		return err
	}

	e.log.Infow("applied authentication event",
		"event_id", ev.ID,
		"serial_number", serial,
		"authentication_state", si.AuthenticationState)
	return e.reconcileLocked(ctx, serial)
}

// HandleDhcpEvent applies a DHCP lease event, creating the service instance
// if the lease raced ahead of ONU discovery. A record created here stays
// unsynced, so reconciliation defers until the ONU activation confirms it.
func (e *Engine) HandleDhcpEvent(ctx context.Context, ev *events.DeviceEvent) error {
	serial, err := e.resolveSerial(ctx, ev.DeviceID, ev.PortNumber)
	if err != nil {
		return err
	}

	release := e.locks.acquire(serial)
	defer release()

	si, err := e.findOrCreateInstance(ctx, serial)
	if err != nil {
		return err
	}

	prev := *si
	si.DhcpState = ev.DhcpMessageType
	si.IPAddress = ev.IPAddress
	si.MacAddress = ev.MacAddress
	if err := e.persistDelta(ctx, si, &prev); err != nil {
		return err
	}

	e.log.Infow("applied dhcp event",
		"event_id", ev.ID,
		"serial_number", serial,
		"dhcp_state", si.DhcpState,
		"ip_address", si.IPAddress)
	return e.reconcileLocked(ctx, serial)
}

// HandleOnuEvent processes ONU activation and disablement. Activation
// records the attachment point and confirms the instance synced; a
// disabled status performs an explicit transition to onu_state=DISABLED so
// the reconciler cascades the auth/dhcp resets.
func (e *Engine) HandleOnuEvent(ctx context.Context, ev *events.DeviceEvent) error {
	serial := models.NormalizeSerial(ev.SerialNumber)

	release := e.locks.acquire(serial)
	defer release()

	switch ev.OnuStatus {
	case events.OnuStatusActivated:
		si, err := e.findOrCreateInstance(ctx, serial)
		if err != nil {
			return err
		}
		prev := *si
		si.OfDpid = ev.OfDpid
		si.UniPortID = ev.UniPortID
		si.Synced = true
		if err := e.persistDelta(ctx, si, &prev); err != nil {
			return err
		}
		e.log.Infow("onu activated", "event_id", ev.ID, "serial_number", serial, "of_dpid", si.OfDpid)

	case events.OnuStatusDisabled:
		si, err := e.store.ServiceInstanceBySerial(ctx, e.opts.OwnerID, serial)
		if err != nil {
			return err
		}
		prev := *si
		si.OnuState = models.OnuStateDisabled
		if err := e.persistDelta(ctx, si, &prev); err != nil {
			return err
		}
		e.log.Infow("onu disabled", "event_id", ev.ID, "serial_number", serial)

	default:
		e.log.Warnw("ignoring onu event with unknown status",
			"event_id", ev.ID, "status", ev.OnuStatus, "serial_number", serial)
		return nil
	}

	return e.reconcileLocked(ctx, serial)
}

// resolveSerial maps an event's attachment point to a canonical serial.
func (e *Engine) resolveSerial(ctx context.Context, deviceID string, portNo uint32) (string, error) {
	serial, err := e.topo.ONUSerial(ctx, deviceID, portNo)
	if err != nil {
		return "", err
	}
	return models.NormalizeSerial(serial), nil
}

// findOrCreateInstance returns the service instance for serial, creating a
// fresh unsynced record owned by the configured service when absent.
func (e *Engine) findOrCreateInstance(ctx context.Context, serial string) (*models.ServiceInstance, error) {
	si, err := e.store.ServiceInstanceBySerial(ctx, e.opts.OwnerID, serial)
	if err == nil {
		return si, nil
	}
	var nfe *NotFoundError
	if !errors.As(err, &nfe) {
		return nil, err
	}

	si = &models.ServiceInstance{
		SerialNumber:        serial,
		OwnerID:             e.opts.OwnerID,
		OnuState:            models.OnuStateAwaiting,
		AuthenticationState: models.AuthStateAwaiting,
		DhcpState:           models.DhcpStateAwaiting,
		Valid:               models.ValidationAwaiting,
	}
	if err := e.store.CreateServiceInstance(ctx, si); err != nil {
		return nil, err
	}
	e.log.Infow("created service instance", "serial_number", serial, "owner_id", e.opts.OwnerID)
	return si, nil
}

// persistDelta writes only the fields that changed relative to prev.
func (e *Engine) persistDelta(ctx context.Context, si, prev *models.ServiceInstance) error {
	fields := si.ChangedFields(prev)
	if len(fields) == 0 {
		return nil
	}
	if err := e.store.UpdateServiceInstanceFields(ctx, si, fields); err != nil {
		return fmt.Errorf("persisting event delta for %s: %w", si.SerialNumber, err)
	}
	return nil
}
