package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSerial(t *testing.T) {
	assert.Equal(t, "BRCM1234", NormalizeSerial("brcm1234"))
	assert.Equal(t, "BRCM1234", NormalizeSerial("  BRCM1234 "))
	assert.Equal(t, "BRCM1234", NormalizeSerial("BrCm1234"))
	assert.Equal(t, "", NormalizeSerial("   "))
}

func TestChangedFieldsEmptyWhenIdentical(t *testing.T) {
	si := &ServiceInstance{
		SerialNumber:        "BRCM1234",
		OnuState:            OnuStateEnabled,
		AuthenticationState: AuthStateApproved,
		DhcpState:           DhcpStateAck,
		IPAddress:           "10.11.2.5",
	}
	prev := *si
	assert.Empty(t, si.ChangedFields(&prev))
}

func TestChangedFieldsReportsOnlyDeltas(t *testing.T) {
	prev := ServiceInstance{
		SerialNumber:        "BRCM1234",
		OnuState:            OnuStateAwaiting,
		AuthenticationState: AuthStateAwaiting,
		DhcpState:           DhcpStateAwaiting,
	}
	si := prev
	si.OnuState = OnuStateEnabled
	si.Valid = ValidationValid
	si.StatusMessage = "ONU has been validated"
	si.Synced = true

	assert.ElementsMatch(t,
		[]string{"onu_state", "valid", "status_message", "synced"},
		si.ChangedFields(&prev))
}

func TestChangedFieldsCoversLeaseFields(t *testing.T) {
	prev := ServiceInstance{DhcpState: DhcpStateAwaiting}
	si := prev
	si.DhcpState = DhcpStateAck
	si.IPAddress = "10.11.2.5"
	si.MacAddress = "aa:bb:cc:dd:ee:ff"

	assert.ElementsMatch(t,
		[]string{"dhcp_state", "ip_address", "mac_address"},
		si.ChangedFields(&prev))
}
