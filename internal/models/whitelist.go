package models

import "time"

// WhitelistEntry authorizes one ONU serial number at one attachment point.
// The rows are owned by the provisioning layer; the workflow only reads them
// and writes back the post-processing markers.
type WhitelistEntry struct {
	ID           uint      `gorm:"column:id;primaryKey" json:"id"`
	SerialNumber string    `gorm:"column:serial_number;size:100;not null;index" json:"serial_number"`
	OwnerID      uint      `gorm:"column:owner_id;not null;index" json:"owner_id"`
	PonPortID    uint32    `gorm:"column:pon_port_id" json:"pon_port_id"`
	DeviceID     string    `gorm:"column:device_id;size:100" json:"device_id"`
	// PolicyApplied is set once the entry's create/update has been processed.
	PolicyApplied bool `gorm:"column:policy_applied;default:false" json:"policy_applied"`
	// NeedsReap is set once delete processing finished; the provisioning
	// layer removes the row afterwards.
	NeedsReap bool      `gorm:"column:needs_reap;default:false" json:"needs_reap"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WhitelistEntry) TableName() string {
	return "whitelist_entries"
}
