package workflow

import (
	"context"
	"errors"

	"github.com/proisp/workflow-driver/internal/models"
)

// Validation messages surfaced on ServiceInstance.StatusMessage.
const (
	msgNotInWhitelist = "ONU not found in whitelist"
	msgWrongLocation  = "ONU activated in wrong location"
	msgValidated      = "ONU has been validated"
)

// validateONU decides whether the service instance's ONU is authorized:
// a whitelist entry owned by the same service must match the serial number
// and the device's actual attachment location.
//
// Returns (valid, message, err). A *DeferredError means the ONU is not in
// inventory yet and the caller must retry later; it does not mean invalid.
// An *AmbiguousWhitelistError means the whitelist itself is broken.
func (e *Engine) validateONU(ctx context.Context, si *models.ServiceInstance) (bool, string, error) {
	entries, err := e.store.WhitelistEntries(ctx, si.OwnerID, si.SerialNumber)
	if err != nil {
		return false, "", err
	}

	if len(entries) == 0 {
		e.log.Warnw("ONU not found in whitelist", "serial_number", si.SerialNumber, "owner_id", si.OwnerID)
		return false, msgNotInWhitelist, nil
	}
	if len(entries) > 1 {
		return false, "", &AmbiguousWhitelistError{SerialNumber: si.SerialNumber, Count: len(entries)}
	}
	entry := entries[0]

	onu, err := e.store.ONUDeviceBySerial(ctx, si.SerialNumber)
	if err != nil {
		var nfe *NotFoundError
		if errors.As(err, &nfe) {
			// Inventory has not caught up yet; retry, don't invalidate.
			return false, "", deferredf(si.SerialNumber, "ONU device %s is not known to inventory yet", si.SerialNumber)
		}
		return false, "", err
	}

	if onu.PonPortNo != entry.PonPortID || si.OfDpid != entry.DeviceID {
		e.log.Warnw("ONU location does not match whitelist",
			"serial_number", si.SerialNumber,
			"pon_port", onu.PonPortNo,
			"whitelisted_pon_port", entry.PonPortID,
			"device_id", si.OfDpid,
			"whitelisted_device_id", entry.DeviceID)
		return false, msgWrongLocation, nil
	}

	return true, msgValidated, nil
}
