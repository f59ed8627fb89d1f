// Package store implements the workflow's object-store contracts on top of
// the shared Postgres database.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/proisp/workflow-driver/internal/models"
	"github.com/proisp/workflow-driver/internal/workflow"
)

// GormStore is the Postgres-backed workflow.Store. Serial-number lookups on
// externally owned tables (ONU inventory, subscribers, whitelist) compare
// case-insensitively because those rows are written by systems that do not
// share our canonical form.
type GormStore struct {
	db *gorm.DB
}

func New(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ServiceInstanceBySerial(ctx context.Context, ownerID uint, serial string) (*models.ServiceInstance, error) {
	var si models.ServiceInstance
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND serial_number = ?", ownerID, serial).
		First(&si).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Kind: "service instance", Key: serial}
	}
	if err != nil {
		return nil, fmt.Errorf("loading service instance %s: %w", serial, err)
	}
	return &si, nil
}

func (s *GormStore) ServiceInstancesByOwner(ctx context.Context, ownerID uint) ([]*models.ServiceInstance, error) {
	var sis []*models.ServiceInstance
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Find(&sis).Error; err != nil {
		return nil, fmt.Errorf("listing service instances: %w", err)
	}
	return sis, nil
}

func (s *GormStore) CreateServiceInstance(ctx context.Context, si *models.ServiceInstance) error {
	if err := s.db.WithContext(ctx).Create(si).Error; err != nil {
		return fmt.Errorf("creating service instance %s: %w", si.SerialNumber, err)
	}
	return nil
}

func (s *GormStore) UpdateServiceInstanceFields(ctx context.Context, si *models.ServiceInstance, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Model(si).Select(fields).Updates(si).Error
	if err != nil {
		return fmt.Errorf("updating service instance %s: %w", si.SerialNumber, err)
	}
	return nil
}

func (s *GormStore) WhitelistEntries(ctx context.Context, ownerID uint, serial string) ([]*models.WhitelistEntry, error) {
	var entries []*models.WhitelistEntry
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND UPPER(serial_number) = ? AND needs_reap = false", ownerID, serial).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("loading whitelist entries for %s: %w", serial, err)
	}
	return entries, nil
}

func (s *GormStore) UpdateWhitelistEntryFields(ctx context.Context, entry *models.WhitelistEntry, fields []string) error {
	result := s.db.WithContext(ctx).Model(entry).Select(fields).Updates(entry)
	if result.Error != nil {
		return fmt.Errorf("updating whitelist entry %d: %w", entry.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &workflow.NotFoundError{Kind: "whitelist entry", Key: entry.SerialNumber}
	}
	return nil
}

func (s *GormStore) ONUDeviceBySerial(ctx context.Context, serial string) (*models.ONUDevice, error) {
	var onu models.ONUDevice
	err := s.db.WithContext(ctx).Where("UPPER(serial_number) = ?", serial).First(&onu).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Kind: "onu device", Key: serial}
	}
	if err != nil {
		return nil, fmt.Errorf("loading onu device %s: %w", serial, err)
	}
	return &onu, nil
}

func (s *GormStore) UpdateONUAdminState(ctx context.Context, serial string, state models.AdminState) error {
	result := s.db.WithContext(ctx).
		Model(&models.ONUDevice{}).
		Where("UPPER(serial_number) = ?", serial).
		Update("admin_state", state)
	if result.Error != nil {
		return fmt.Errorf("updating onu %s admin state: %w", serial, result.Error)
	}
	if result.RowsAffected == 0 {
		return &workflow.NotFoundError{Kind: "onu device", Key: serial}
	}
	return nil
}

func (s *GormStore) SubscriberByONUSerial(ctx context.Context, serial string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.WithContext(ctx).Where("UPPER(onu_device) = ?", serial).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Kind: "subscriber", Key: serial}
	}
	if err != nil {
		return nil, fmt.Errorf("loading subscriber for %s: %w", serial, err)
	}
	return &sub, nil
}

func (s *GormStore) CreateSubscriber(ctx context.Context, sub *models.Subscriber) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("creating subscriber for %s: %w", sub.ONUDevice, err)
	}
	return nil
}

func (s *GormStore) UpdateSubscriberFields(ctx context.Context, sub *models.Subscriber, fields []string) error {
	if err := s.db.WithContext(ctx).Model(sub).Select(fields).Updates(sub).Error; err != nil {
		return fmt.Errorf("updating subscriber %d: %w", sub.ID, err)
	}
	return nil
}

func (s *GormStore) IPAssignmentBySubscriber(ctx context.Context, subscriberID uint) (*models.IPAddressAssignment, error) {
	var a models.IPAddressAssignment
	err := s.db.WithContext(ctx).Where("subscriber_id = ?", subscriberID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Kind: "ip address assignment", Key: fmt.Sprint(subscriberID)}
	}
	if err != nil {
		return nil, fmt.Errorf("loading ip assignment for subscriber %d: %w", subscriberID, err)
	}
	return &a, nil
}

func (s *GormStore) SaveIPAssignment(ctx context.Context, a *models.IPAddressAssignment) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("saving ip assignment for subscriber %d: %w", a.SubscriberID, err)
	}
	return nil
}

func (s *GormStore) DeleteIPAssignmentBySubscriber(ctx context.Context, subscriberID uint) error {
	err := s.db.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Delete(&models.IPAddressAssignment{}).Error
	if err != nil {
		return fmt.Errorf("deleting ip assignment for subscriber %d: %w", subscriberID, err)
	}
	return nil
}
