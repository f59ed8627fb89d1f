// Package models defines the persisted records of the workflow driver.
package models

import (
	"strings"
	"time"
)

// OnuState is the workflow's view of an ONU.
type OnuState string

const (
	OnuStateAwaiting OnuState = "AWAITING"
	OnuStateEnabled  OnuState = "ENABLED"
	OnuStateDisabled OnuState = "DISABLED"
)

// AuthState tracks 802.1X progress for a service instance.
type AuthState string

const (
	AuthStateAwaiting  AuthState = "AWAITING"
	AuthStateRequested AuthState = "REQUESTED"
	AuthStateStarted   AuthState = "STARTED"
	AuthStateApproved  AuthState = "APPROVED"
	AuthStateDenied    AuthState = "DENIED"
)

// DHCP state mirrors the DHCP message type and is otherwise free-form.
const (
	DhcpStateAwaiting = "AWAITING"
	DhcpStateAck      = "DHCPACK"
)

// ValidationState is the whitelist validation outcome.
type ValidationState string

const (
	ValidationAwaiting ValidationState = "awaiting"
	ValidationValid    ValidationState = "valid"
	ValidationInvalid  ValidationState = "invalid"
)

// ServiceInstance is the per-ONU workflow record: one row per serial number
// per owning service, combining ONU, authentication and DHCP state.
type ServiceInstance struct {
	ID                  uint            `gorm:"column:id;primaryKey" json:"id"`
	SerialNumber        string          `gorm:"column:serial_number;size:100;not null;uniqueIndex:idx_si_serial_owner" json:"serial_number"`
	OwnerID             uint            `gorm:"column:owner_id;not null;uniqueIndex:idx_si_serial_owner" json:"owner_id"`
	OfDpid              string          `gorm:"column:of_dpid;size:100" json:"of_dpid"`
	UniPortID           int64           `gorm:"column:uni_port_id" json:"uni_port_id"`
	OnuState            OnuState        `gorm:"column:onu_state;size:20;default:AWAITING" json:"onu_state"`
	AuthenticationState AuthState       `gorm:"column:authentication_state;size:20;default:AWAITING" json:"authentication_state"`
	DhcpState           string          `gorm:"column:dhcp_state;size:20;default:AWAITING" json:"dhcp_state"`
	IPAddress           string          `gorm:"column:ip_address;size:50" json:"ip_address"`
	MacAddress          string          `gorm:"column:mac_address;size:50" json:"mac_address"`
	Valid               ValidationState `gorm:"column:valid;size:20;default:awaiting" json:"valid"`
	StatusMessage       string          `gorm:"column:status_message;size:255" json:"status_message"`
	Synced              bool            `gorm:"column:synced;default:false" json:"synced"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func (ServiceInstance) TableName() string {
	return "service_instances"
}

// NormalizeSerial converts a serial number to its canonical form. Every
// ingestion boundary normalizes once so lookups and lock keys agree.
func NormalizeSerial(serial string) string {
	return strings.ToUpper(strings.TrimSpace(serial))
}

// ChangedFields returns the column names whose values differ from prev,
// for use with partial updates. ID, owner and timestamps never change.
func (si *ServiceInstance) ChangedFields(prev *ServiceInstance) []string {
	var fields []string
	if si.OfDpid != prev.OfDpid {
		fields = append(fields, "of_dpid")
	}
	if si.UniPortID != prev.UniPortID {
		fields = append(fields, "uni_port_id")
	}
	if si.OnuState != prev.OnuState {
		fields = append(fields, "onu_state")
	}
	if si.AuthenticationState != prev.AuthenticationState {
		fields = append(fields, "authentication_state")
	}
	if si.DhcpState != prev.DhcpState {
		fields = append(fields, "dhcp_state")
	}
	if si.IPAddress != prev.IPAddress {
		fields = append(fields, "ip_address")
	}
	if si.MacAddress != prev.MacAddress {
		fields = append(fields, "mac_address")
	}
	if si.Valid != prev.Valid {
		fields = append(fields, "valid")
	}
	if si.StatusMessage != prev.StatusMessage {
		fields = append(fields, "status_message")
	}
	if si.Synced != prev.Synced {
		fields = append(fields, "synced")
	}
	return fields
}
