package workflow

import (
	"context"

	"github.com/proisp/workflow-driver/internal/models"
)

// Store is the keyed object store the workflow runs against. Lookups by
// serial number expect the serial already normalized via
// models.NormalizeSerial. Absent records surface as *NotFoundError.
// Implementations may be remote; every call takes a context.
type Store interface {
	ServiceInstanceBySerial(ctx context.Context, ownerID uint, serial string) (*models.ServiceInstance, error)
	ServiceInstancesByOwner(ctx context.Context, ownerID uint) ([]*models.ServiceInstance, error)
	CreateServiceInstance(ctx context.Context, si *models.ServiceInstance) error
	// UpdateServiceInstanceFields persists only the named columns of si.
	UpdateServiceInstanceFields(ctx context.Context, si *models.ServiceInstance, fields []string) error

	// WhitelistEntries returns the live entries for (owner, serial);
	// entries already flagged needs_reap are excluded.
	WhitelistEntries(ctx context.Context, ownerID uint, serial string) ([]*models.WhitelistEntry, error)
	UpdateWhitelistEntryFields(ctx context.Context, entry *models.WhitelistEntry, fields []string) error

	ONUDeviceBySerial(ctx context.Context, serial string) (*models.ONUDevice, error)
	UpdateONUAdminState(ctx context.Context, serial string, state models.AdminState) error

	SubscriberByONUSerial(ctx context.Context, serial string) (*models.Subscriber, error)
	CreateSubscriber(ctx context.Context, sub *models.Subscriber) error
	UpdateSubscriberFields(ctx context.Context, sub *models.Subscriber, fields []string) error

	IPAssignmentBySubscriber(ctx context.Context, subscriberID uint) (*models.IPAddressAssignment, error)
	// SaveIPAssignment upserts the zero-or-one lease row for a subscriber.
	SaveIPAssignment(ctx context.Context, a *models.IPAddressAssignment) error
	DeleteIPAssignmentBySubscriber(ctx context.Context, subscriberID uint) error
}

// Topology resolves an OpenFlow attachment point to the serial number of
// the ONU behind it. A miss is a *ResolutionError.
type Topology interface {
	ONUSerial(ctx context.Context, deviceID string, portNo uint32) (string, error)
}
