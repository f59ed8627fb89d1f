// Package events normalizes raw bus payloads into canonical device events.
// Packet-level parsing (802.1X, DHCP) happens upstream; by the time a
// message reaches a topic here it is already a small JSON document.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Bus topics the driver subscribes to.
const (
	TopicAuth      = "authentication.events"
	TopicDHCP      = "dhcp.events"
	TopicONU       = "onu.events"
	TopicWhitelist = "whitelist.events"
)

// Topics lists every topic the driver consumes.
var Topics = []string{TopicAuth, TopicDHCP, TopicONU, TopicWhitelist}

// Type discriminates normalized events.
type Type string

const (
	TypeAuth      Type = "auth"
	TypeDHCP      Type = "dhcp"
	TypeONU       Type = "onu"
	TypeWhitelist Type = "whitelist"
)

// ONU event statuses.
const (
	OnuStatusActivated = "activated"
	OnuStatusDisabled  = "disabled"
)

// Whitelist change operations.
const (
	WhitelistOpCreated = "created"
	WhitelistOpUpdated = "updated"
	WhitelistOpDeleted = "deleted"
)

// Raw payloads as they appear on the wire. Port numbers arrive as JSON
// strings on auth/dhcp topics.

type authPayload struct {
	DeviceID            string `json:"deviceId" validate:"required"`
	PortNumber          string `json:"portNumber" validate:"required,number"`
	AuthenticationState string `json:"authenticationState" validate:"required,oneof=AWAITING STARTED REQUESTED APPROVED DENIED"`
}

type dhcpPayload struct {
	DeviceID    string `json:"deviceId" validate:"required"`
	PortNumber  string `json:"portNumber" validate:"required,number"`
	MacAddress  string `json:"macAddress" validate:"omitempty,mac"`
	IPAddress   string `json:"ipAddress" validate:"omitempty,ip"`
	MessageType string `json:"messageType" validate:"required"`
}

type onuPayload struct {
	Status       string `json:"status" validate:"required,oneof=activated disabled"`
	SerialNumber string `json:"serial_number" validate:"required"`
	OfDpid       string `json:"of_dpid" validate:"required_if=Status activated"`
	UniPortID    int64  `json:"uni_port_id" validate:"omitempty,gte=0"`
}

type whitelistPayload struct {
	Operation    string `json:"operation" validate:"required,oneof=created updated deleted"`
	SerialNumber string `json:"serialNumber" validate:"required"`
	PonPortID    uint32 `json:"ponPortId"`
	DeviceID     string `json:"deviceId"`
}

// DeviceEvent is the canonical record every handler consumes. Only the
// fields relevant to the event's Type are set.
type DeviceEvent struct {
	ID         uuid.UUID
	Type       Type
	ReceivedAt time.Time

	// auth + dhcp
	DeviceID   string
	PortNumber uint32

	// auth
	AuthenticationState string

	// dhcp
	DhcpMessageType string
	IPAddress       string
	MacAddress      string

	// onu
	OnuStatus    string
	SerialNumber string
	OfDpid       string
	UniPortID    int64

	// whitelist
	WhitelistOp string
	PonPortID   uint32
}

// Topic returns the bus topic an event of this type arrives on.
func (ev *DeviceEvent) Topic() string {
	switch ev.Type {
	case TypeAuth:
		return TopicAuth
	case TypeDHCP:
		return TopicDHCP
	case TypeONU:
		return TopicONU
	case TypeWhitelist:
		return TopicWhitelist
	}
	return string(ev.Type)
}

// Normalizer decodes and validates raw topic payloads.
type Normalizer struct {
	validate *validator.Validate
}

func NewNormalizer() *Normalizer {
	return &Normalizer{validate: validator.New()}
}

// Normalize converts a raw bus message into a DeviceEvent. Malformed
// payloads fail here once instead of deep inside a handler.
func (n *Normalizer) Normalize(topic string, payload []byte) (*DeviceEvent, error) {
	ev := &DeviceEvent{
		ID:         uuid.New(),
		ReceivedAt: time.Now().UTC(),
	}

	switch topic {
	case TopicAuth:
		var p authPayload
		if err := n.decode(payload, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		port, err := parsePort(p.PortNumber)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		ev.Type = TypeAuth
		ev.DeviceID = p.DeviceID
		ev.PortNumber = port
		ev.AuthenticationState = p.AuthenticationState

	case TopicDHCP:
		var p dhcpPayload
		if err := n.decode(payload, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		port, err := parsePort(p.PortNumber)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		ev.Type = TypeDHCP
		ev.DeviceID = p.DeviceID
		ev.PortNumber = port
		ev.DhcpMessageType = p.MessageType
		ev.IPAddress = p.IPAddress
		ev.MacAddress = p.MacAddress

	case TopicONU:
		var p onuPayload
		if err := n.decode(payload, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		ev.Type = TypeONU
		ev.OnuStatus = p.Status
		ev.SerialNumber = p.SerialNumber
		ev.OfDpid = p.OfDpid
		ev.UniPortID = p.UniPortID

	case TopicWhitelist:
		var p whitelistPayload
		if err := n.decode(payload, &p); err != nil {
			return nil, fmt.Errorf("%s: %w", topic, err)
		}
		ev.Type = TypeWhitelist
		ev.WhitelistOp = p.Operation
		ev.SerialNumber = p.SerialNumber
		ev.PonPortID = p.PonPortID
		ev.DeviceID = p.DeviceID

	default:
		return nil, fmt.Errorf("unknown topic %q", topic)
	}

	return ev, nil
}

func (n *Normalizer) decode(payload []byte, dest interface{}) error {
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if err := n.validate.Struct(dest); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func parsePort(s string) (uint32, error) {
	port, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid port number %q", s)
	}
	return uint32(port), nil
}
