package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/proisp/workflow-driver/internal/database"
	"github.com/proisp/workflow-driver/internal/models"
	"github.com/proisp/workflow-driver/internal/workflow"
)

// GormTopology resolves OpenFlow attachment points to ONU serial numbers
// from the access_device_ports table, with a short-TTL Redis read-through
// cache in front. The table is maintained by topology discovery.
type GormTopology struct {
	db *gorm.DB
}

func NewTopology(db *gorm.DB) *GormTopology {
	return &GormTopology{db: db}
}

func (t *GormTopology) ONUSerial(ctx context.Context, deviceID string, portNo uint32) (string, error) {
	key := fmt.Sprintf("%s%s:%d", database.CacheKeyTopology, deviceID, portNo)

	if database.Redis != nil {
		var cached string
		if err := database.CacheGet(ctx, key, &cached); err == nil && cached != "" {
			return cached, nil
		}
	}

	var port models.AccessDevicePort
	err := t.db.WithContext(ctx).
		Where("device_id = ? AND port_no = ?", deviceID, portNo).
		First(&port).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", &workflow.ResolutionError{DeviceID: deviceID, PortNumber: portNo}
	}
	if err != nil {
		return "", fmt.Errorf("resolving %s/%d: %w", deviceID, portNo, err)
	}

	serial := models.NormalizeSerial(port.ONUSerial)
	if database.Redis != nil {
		// Cache population is best effort.
		_ = database.CacheSet(ctx, key, serial, database.CacheTTLTopology)
	}
	return serial, nil
}
