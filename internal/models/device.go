package models

import "time"

// AdminState is the administrative state pushed to the ONU inventory.
type AdminState string

const (
	AdminStateEnabled  AdminState = "ENABLED"
	AdminStateDisabled AdminState = "DISABLED"
)

// ONUDevice mirrors the access-network inventory's view of an ONU. The rows
// are written by the inventory; the workflow only ever mutates admin_state.
type ONUDevice struct {
	ID           uint       `gorm:"column:id;primaryKey" json:"id"`
	SerialNumber string     `gorm:"column:serial_number;size:100;not null;uniqueIndex" json:"serial_number"`
	AdminState   AdminState `gorm:"column:admin_state;size:20;default:ENABLED" json:"admin_state"`
	PonPortNo    uint32     `gorm:"column:pon_port_no" json:"pon_port_no"`
	DeviceID     string     `gorm:"column:device_id;size:100" json:"device_id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ONUDevice) TableName() string {
	return "onu_devices"
}

// AccessDevicePort maps an OLT device/port pair to the serial number of the
// ONU attached there. Written by topology discovery, read by the resolver.
type AccessDevicePort struct {
	ID        uint      `gorm:"column:id;primaryKey" json:"id"`
	DeviceID  string    `gorm:"column:device_id;size:100;not null;uniqueIndex:idx_adp_device_port" json:"device_id"`
	PortNo    uint32    `gorm:"column:port_no;not null;uniqueIndex:idx_adp_device_port" json:"port_no"`
	ONUSerial string    `gorm:"column:onu_serial;size:100;not null" json:"onu_serial"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AccessDevicePort) TableName() string {
	return "access_device_ports"
}
