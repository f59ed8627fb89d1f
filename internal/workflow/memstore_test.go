package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/models"
)

// memStore is an in-memory Store with the same lookup semantics as the
// Postgres implementation (case-insensitive serial matching on externally
// owned tables). It counts writes so suppression rules can be asserted.
type memStore struct {
	mu sync.Mutex

	instances   map[string]*models.ServiceInstance // owner/serial
	whitelist   map[uint]*models.WhitelistEntry
	onus        map[string]*models.ONUDevice // canonical serial
	subscribers map[uint]*models.Subscriber
	assignments map[uint]*models.IPAddressAssignment // by subscriber id

	nextID uint

	siWrites         int
	onuWrites        int
	subscriberWrites int
}

func newMemStore() *memStore {
	return &memStore{
		instances:   make(map[string]*models.ServiceInstance),
		whitelist:   make(map[uint]*models.WhitelistEntry),
		onus:        make(map[string]*models.ONUDevice),
		subscribers: make(map[uint]*models.Subscriber),
		assignments: make(map[uint]*models.IPAddressAssignment),
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func siKey(ownerID uint, serial string) string {
	return fmt.Sprintf("%d/%s", ownerID, serial)
}

func (m *memStore) ServiceInstanceBySerial(_ context.Context, ownerID uint, serial string) (*models.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	si, ok := m.instances[siKey(ownerID, serial)]
	if !ok {
		return nil, &NotFoundError{Kind: "service instance", Key: serial}
	}
	cp := *si
	return &cp, nil
}

func (m *memStore) ServiceInstancesByOwner(_ context.Context, ownerID uint) ([]*models.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ServiceInstance
	for _, si := range m.instances {
		if si.OwnerID == ownerID {
			cp := *si
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CreateServiceInstance(_ context.Context, si *models.ServiceInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	si.ID = m.id()
	cp := *si
	m.instances[siKey(si.OwnerID, si.SerialNumber)] = &cp
	return nil
}

func (m *memStore) UpdateServiceInstanceFields(_ context.Context, si *models.ServiceInstance, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.instances[siKey(si.OwnerID, si.SerialNumber)]
	if !ok {
		return &NotFoundError{Kind: "service instance", Key: si.SerialNumber}
	}
	m.siWrites++
	for _, f := range fields {
		switch f {
		case "of_dpid":
			stored.OfDpid = si.OfDpid
		case "uni_port_id":
			stored.UniPortID = si.UniPortID
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

func (m *memStore) WhitelistEntries(_ context.Context, ownerID uint, serial string) ([]*models.WhitelistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.WhitelistEntry
	for _, e := range m.whitelist {
		if e.OwnerID == ownerID && !e.NeedsReap && models.NormalizeSerial(e.SerialNumber) == serial {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) UpdateWhitelistEntryFields(_ context.Context, entry *models.WhitelistEntry, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.whitelist[entry.ID]
	if !ok {
		return &NotFoundError{Kind: "whitelist entry", Key: entry.SerialNumber}
	}
	for _, f := range fields {
		switch f {
		case "policy_applied":
			stored.PolicyApplied = entry.PolicyApplied
		case "needs_reap":
			stored.NeedsReap = entry.NeedsReap
		}
	}
	return nil
}

func (m *memStore) ONUDeviceBySerial(_ context.Context, serial string) (*models.ONUDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	onu, ok := m.onus[serial]
	if !ok {
		return nil, &NotFoundError{Kind: "onu device", Key: serial}
	}
	cp := *onu
	return &cp, nil
}

func (m *memStore) UpdateONUAdminState(_ context.Context, serial string, state models.AdminState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	onu, ok := m.onus[serial]
	if !ok {
		return &NotFoundError{Kind: "onu device", Key: serial}
	}
	m.onuWrites++
	onu.AdminState = state
	return nil
}

func (m *memStore) SubscriberByONUSerial(_ context.Context, serial string) (*models.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.subscribers {
		if models.NormalizeSerial(sub.ONUDevice) == serial {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, &NotFoundError{Kind: "subscriber", Key: serial}
}

func (m *memStore) CreateSubscriber(_ context.Context, sub *models.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = m.id()
	cp := *sub
	m.subscribers[sub.ID] = &cp
	return nil
}

func (m *memStore) UpdateSubscriberFields(_ context.Context, sub *models.Subscriber, fields []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.subscribers[sub.ID]
	if !ok {
		return &NotFoundError{Kind: "subscriber", Key: fmt.Sprint(sub.ID)}
	}
	m.subscriberWrites++
	for _, f := range fields {
		switch f {
		case "status":
			stored.Status = sub.Status
		case "ip_address":
			stored.IPAddress = sub.IPAddress
		case "mac_address":
			stored.MacAddress = sub.MacAddress
		}
	}
	return nil
}

func (m *memStore) IPAssignmentBySubscriber(_ context.Context, subscriberID uint) (*models.IPAddressAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[subscriberID]
	if !ok {
		return nil, &NotFoundError{Kind: "ip address assignment", Key: fmt.Sprint(subscriberID)}
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) SaveIPAssignment(_ context.Context, a *models.IPAddressAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	cp := *a
	m.assignments[a.SubscriberID] = &cp
	return nil
}

func (m *memStore) DeleteIPAssignmentBySubscriber(_ context.Context, subscriberID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, subscriberID)
	return nil
}

// fakeTopology maps "device/port" to serials.
type fakeTopology struct {
	mappings map[string]string
}

func newFakeTopology() *fakeTopology {
	return &fakeTopology{mappings: make(map[string]string)}
}

func (t *fakeTopology) add(deviceID string, portNo uint32, serial string) {
	t.mappings[fmt.Sprintf("%s/%d", deviceID, portNo)] = serial
}

func (t *fakeTopology) ONUSerial(_ context.Context, deviceID string, portNo uint32) (string, error) {
	serial, ok := t.mappings[fmt.Sprintf("%s/%d", deviceID, portNo)]
	if !ok {
		return "", &ResolutionError{DeviceID: deviceID, PortNumber: portNo}
	}
	return serial, nil
}

const testOwnerID uint = 7

func newTestEngine(opts ...func(*Options)) (*Engine, *memStore, *fakeTopology) {
	o := Options{OwnerID: testOwnerID}
	for _, fn := range opts {
		fn(&o)
	}
	ms := newMemStore()
	topo := newFakeTopology()
	return NewEngine(ms, topo, zap.NewNop().Sugar(), o), ms, topo
}

// Seed helpers. All serials are stored as given; lookups normalize.

func (m *memStore) seedInstance(si *models.ServiceInstance) *models.ServiceInstance {
	si.SerialNumber = models.NormalizeSerial(si.SerialNumber)
	if si.OwnerID == 0 {
		si.OwnerID = testOwnerID
	}
	if si.OnuState == "" {
		si.OnuState = models.OnuStateAwaiting
	}
	if si.AuthenticationState == "" {
		si.AuthenticationState = models.AuthStateAwaiting
	}
	if si.DhcpState == "" {
		si.DhcpState = models.DhcpStateAwaiting
	}
	if si.Valid == "" {
		si.Valid = models.ValidationAwaiting
	}
	si.ID = m.id()
	m.instances[siKey(si.OwnerID, si.SerialNumber)] = si
	return si
}

func (m *memStore) seedWhitelist(serial, deviceID string, ponPort uint32) *models.WhitelistEntry {
	e := &models.WhitelistEntry{
		ID:           m.id(),
		SerialNumber: serial,
		OwnerID:      testOwnerID,
		PonPortID:    ponPort,
		DeviceID:     deviceID,
	}
	m.whitelist[e.ID] = e
	return e
}

func (m *memStore) seedONU(serial, deviceID string, ponPort uint32) *models.ONUDevice {
	onu := &models.ONUDevice{
		ID:           m.id(),
		SerialNumber: serial,
		AdminState:   models.AdminStateEnabled,
		PonPortNo:    ponPort,
		DeviceID:     deviceID,
	}
	m.onus[models.NormalizeSerial(serial)] = onu
	return onu
}

func (m *memStore) seedSubscriber(onuSerial string, status models.SubscriberStatus) *models.Subscriber {
	sub := &models.Subscriber{
		ID:        m.id(),
		ONUDevice: onuSerial,
		Status:    status,
	}
	m.subscribers[sub.ID] = sub
	return sub
}

func (m *memStore) deleteWhitelist(id uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.whitelist, id)
}
