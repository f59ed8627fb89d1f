package models

import "gorm.io/gorm"

// AutoMigrate creates or updates the driver's tables. The inventory and
// subscriber tables are normally owned by other services; migrating them
// here keeps single-node deployments self-contained.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&ServiceInstance{},
		&WhitelistEntry{},
		&ONUDevice{},
		&AccessDevicePort{},
		&Subscriber{},
		&IPAddressAssignment{},
	)
}
