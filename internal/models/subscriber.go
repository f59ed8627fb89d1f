package models

import "time"

// SubscriberStatus is the provisioning status of a broadband subscriber
type SubscriberStatus string

const (
	SubscriberStatusPreProvisioned SubscriberStatus = "pre-provisioned"
	SubscriberStatusAwaitingAuth   SubscriberStatus = "awaiting-auth"
	SubscriberStatusEnabled        SubscriberStatus = "enabled"
	SubscriberStatusAuthFailed     SubscriberStatus = "auth-failed"
	// SubscriberStatusDisabled is only ever set by an operator and is never
	// overridden by the workflow.
	SubscriberStatusDisabled SubscriberStatus = "disabled"
)

// Subscriber links a provisioned customer to the ONU that serves them.
// Created by subscription provisioning (or by the driver on first discovery
// when CREATE_SUBSCRIBER_ON_DISCOVERY is set); the workflow only updates
// status, IP and MAC.
type Subscriber struct {
	ID         uint             `gorm:"column:id;primaryKey" json:"id"`
	ONUDevice  string           `gorm:"column:onu_device;size:100;not null;index" json:"onu_device"`
	Status     SubscriberStatus `gorm:"column:status;size:30;default:pre-provisioned" json:"status"`
	IPAddress  string           `gorm:"column:ip_address;size:50" json:"ip_address"`
	MacAddress string           `gorm:"column:mac_address;size:50" json:"mac_address"`
	CTag       *int             `gorm:"column:c_tag" json:"c_tag,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (Subscriber) TableName() string {
	return "subscribers"
}

// IPAddressAssignment records the DHCP lease handed to a subscriber.
// Zero or one row per subscriber; upserted on DHCPACK and deleted when the
// subscriber falls back to awaiting-auth.
type IPAddressAssignment struct {
	ID           uint      `gorm:"column:id;primaryKey" json:"id"`
	SubscriberID uint      `gorm:"column:subscriber_id;not null;uniqueIndex" json:"subscriber_id"`
	IP           string    `gorm:"column:ip;size:50;not null" json:"ip"`
	Description  string    `gorm:"column:description;size:100" json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (IPAddressAssignment) TableName() string {
	return "ip_address_assignments"
}

// DHCPAssignedDescription is the description written on lease-driven
// IP address assignments.
const DHCPAssignedDescription = "DHCP Assigned IP Address"
