package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/models"
	"github.com/proisp/workflow-driver/internal/workflow"
)

const sweepOwnerID uint = 7

// sweepStore is a minimal in-memory workflow.Store for sweep tests. It
// counts per-serial instance lookups so the skip-unsynced rule is visible.
type sweepStore struct {
	instances map[string]*models.ServiceInstance
	whitelist []*models.WhitelistEntry
	onus      map[string]*models.ONUDevice
	lookups   map[string]int
}

func newSweepStore() *sweepStore {
	return &sweepStore{
		instances: make(map[string]*models.ServiceInstance),
		onus:      make(map[string]*models.ONUDevice),
		lookups:   make(map[string]int),
	}
}

func (s *sweepStore) ServiceInstanceBySerial(_ context.Context, _ uint, serial string) (*models.ServiceInstance, error) {
	s.lookups[serial]++
	si, ok := s.instances[serial]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "service instance", Key: serial}
	}
	cp := *si
	return &cp, nil
}

func (s *sweepStore) ServiceInstancesByOwner(_ context.Context, ownerID uint) ([]*models.ServiceInstance, error) {
	var out []*models.ServiceInstance
	for _, si := range s.instances {
		if si.OwnerID == ownerID {
			cp := *si
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *sweepStore) CreateServiceInstance(_ context.Context, si *models.ServiceInstance) error {
	s.instances[si.SerialNumber] = si
	return nil
}

func (s *sweepStore) UpdateServiceInstanceFields(_ context.Context, si *models.ServiceInstance, fields []string) error {
	stored, ok := s.instances[si.SerialNumber]
	if !ok {
		return &workflow.NotFoundError{Kind: "service instance", Key: si.SerialNumber}
	}
	for _, f := range fields {
		switch f {
		case "onu_state":
			stored.OnuState = si.OnuState
		case "authentication_state":
			stored.AuthenticationState = si.AuthenticationState
		case "dhcp_state":
			stored.DhcpState = si.DhcpState
		case "ip_address":
			stored.IPAddress = si.IPAddress
		case "mac_address":
			stored.MacAddress = si.MacAddress
		case "valid":
			stored.Valid = si.Valid
		case "status_message":
			stored.StatusMessage = si.StatusMessage
		case "synced":
			stored.Synced = si.Synced
		}
	}
	return nil
}

func (s *sweepStore) WhitelistEntries(_ context.Context, ownerID uint, serial string) ([]*models.WhitelistEntry, error) {
	var out []*models.WhitelistEntry
	for _, e := range s.whitelist {
		if e.OwnerID == ownerID && !e.NeedsReap && models.NormalizeSerial(e.SerialNumber) == serial {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *sweepStore) UpdateWhitelistEntryFields(context.Context, *models.WhitelistEntry, []string) error {
	return nil
}

func (s *sweepStore) ONUDeviceBySerial(_ context.Context, serial string) (*models.ONUDevice, error) {
	onu, ok := s.onus[serial]
	if !ok {
		return nil, &workflow.NotFoundError{Kind: "onu device", Key: serial}
	}
	return onu, nil
}

func (s *sweepStore) UpdateONUAdminState(_ context.Context, serial string, state models.AdminState) error {
	onu, ok := s.onus[serial]
	if !ok {
		return &workflow.NotFoundError{Kind: "onu device", Key: serial}
	}
	onu.AdminState = state
	return nil
}

func (s *sweepStore) SubscriberByONUSerial(_ context.Context, serial string) (*models.Subscriber, error) {
	return nil, &workflow.NotFoundError{Kind: "subscriber", Key: serial}
}

func (s *sweepStore) CreateSubscriber(context.Context, *models.Subscriber) error { return nil }

func (s *sweepStore) UpdateSubscriberFields(context.Context, *models.Subscriber, []string) error {
	return nil
}

func (s *sweepStore) IPAssignmentBySubscriber(_ context.Context, subscriberID uint) (*models.IPAddressAssignment, error) {
	return nil, &workflow.NotFoundError{Kind: "ip address assignment", Key: "0"}
}

func (s *sweepStore) SaveIPAssignment(context.Context, *models.IPAddressAssignment) error { return nil }

func (s *sweepStore) DeleteIPAssignmentBySubscriber(context.Context, uint) error { return nil }

type noTopology struct{}

func (noTopology) ONUSerial(_ context.Context, deviceID string, portNo uint32) (string, error) {
	return "", &workflow.ResolutionError{DeviceID: deviceID, PortNumber: portNo}
}

func TestSweepReconcilesSyncedAndSkipsUnsynced(t *testing.T) {
	st := newSweepStore()
	st.whitelist = append(st.whitelist, &models.WhitelistEntry{
		ID: 1, SerialNumber: "BRCM1234", OwnerID: sweepOwnerID,
		PonPortID: 1, DeviceID: "of:0000000000000001",
	})
	st.onus["BRCM1234"] = &models.ONUDevice{
		SerialNumber: "BRCM1234", AdminState: models.AdminStateEnabled,
		PonPortNo: 1, DeviceID: "of:0000000000000001",
	}
	st.instances["BRCM1234"] = &models.ServiceInstance{
		SerialNumber:        "BRCM1234",
		OwnerID:             sweepOwnerID,
		OfDpid:              "of:0000000000000001",
		OnuState:            models.OnuStateAwaiting,
		AuthenticationState: models.AuthStateAwaiting,
		DhcpState:           models.DhcpStateAwaiting,
		Valid:               models.ValidationAwaiting,
		Synced:              true,
	}
	st.instances["PENDING1"] = &models.ServiceInstance{
		SerialNumber:        "PENDING1",
		OwnerID:             sweepOwnerID,
		OnuState:            models.OnuStateAwaiting,
		AuthenticationState: models.AuthStateAwaiting,
		DhcpState:           models.DhcpStateAwaiting,
		Valid:               models.ValidationAwaiting,
		Synced:              false,
	}

	engine := workflow.NewEngine(st, noTopology{}, zap.NewNop().Sugar(), workflow.Options{OwnerID: sweepOwnerID})
	svc := NewPolicySweepService(engine, st, sweepOwnerID, 10, zap.NewNop().Sugar())

	svc.sweep()

	// The synced instance converged through a full reconciliation pass.
	si, err := st.ServiceInstanceBySerial(context.Background(), sweepOwnerID, "BRCM1234")
	require.NoError(t, err)
	assert.Equal(t, models.OnuStateEnabled, si.OnuState)
	assert.Equal(t, models.ValidationValid, si.Valid)

	// The unsynced one was never even loaded for reconciliation.
	assert.Zero(t, st.lookups["PENDING1"])
	assert.False(t, st.instances["PENDING1"].Synced)
	assert.Equal(t, models.ValidationAwaiting, st.instances["PENDING1"].Valid)
}

func TestSweepStartStop(t *testing.T) {
	st := newSweepStore()
	engine := workflow.NewEngine(st, noTopology{}, zap.NewNop().Sugar(), workflow.Options{OwnerID: sweepOwnerID})
	svc := NewPolicySweepService(engine, st, sweepOwnerID, 10, zap.NewNop().Sugar())

	svc.Start()
	// Idempotent start.
	svc.Start()
	svc.Stop()
	// Idempotent stop.
	svc.Stop()
}
