// Package handlers exposes the read-only ops API. All mutation flows
// through the event bus; this surface exists for operators to inspect
// workflow state.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/proisp/workflow-driver/internal/database"
	"github.com/proisp/workflow-driver/internal/models"
)

// StatusHandler serves workflow state scoped to the owning service.
type StatusHandler struct {
	OwnerID uint
}

func NewStatusHandler(ownerID uint) *StatusHandler {
	return &StatusHandler{OwnerID: ownerID}
}

// Health reports database and Redis liveness.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	status := fiber.Map{"status": "ok"}
	code := fiber.StatusOK

	if sqlDB, err := database.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["status"] = "degraded"
		status["database"] = "down"
		code = fiber.StatusServiceUnavailable
	}
	if err := database.Redis.Ping(ctx).Err(); err != nil {
		status["status"] = "degraded"
		status["redis"] = "down"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(status)
}

// ListServiceInstances returns every service instance of the owning service.
func (h *StatusHandler) ListServiceInstances(c *fiber.Ctx) error {
	var sis []models.ServiceInstance
	if err := database.DB.Where("owner_id = ?", h.OwnerID).Order("serial_number").Find(&sis).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load service instances"})
	}
	return c.JSON(fiber.Map{"service_instances": sis, "count": len(sis)})
}

// GetServiceInstance returns one service instance by serial number.
func (h *StatusHandler) GetServiceInstance(c *fiber.Ctx) error {
	serial := models.NormalizeSerial(c.Params("serial"))

	var si models.ServiceInstance
	err := database.DB.Where("owner_id = ? AND serial_number = ?", h.OwnerID, serial).First(&si).Error
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "service instance not found"})
	}
	return c.JSON(si)
}

// ListWhitelist returns the whitelist entries of the owning service.
func (h *StatusHandler) ListWhitelist(c *fiber.Ctx) error {
	var entries []models.WhitelistEntry
	if err := database.DB.Where("owner_id = ?", h.OwnerID).Order("serial_number").Find(&entries).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load whitelist"})
	}
	return c.JSON(fiber.Map{"whitelist": entries, "count": len(entries)})
}

// GetSubscriber returns the subscriber (and lease) behind an ONU serial.
func (h *StatusHandler) GetSubscriber(c *fiber.Ctx) error {
	serial := models.NormalizeSerial(c.Params("serial"))

	var sub models.Subscriber
	if err := database.DB.Where("UPPER(onu_device) = ?", serial).First(&sub).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "subscriber not found"})
	}

	resp := fiber.Map{"subscriber": sub}
	var lease models.IPAddressAssignment
	if err := database.DB.Where("subscriber_id = ?", sub.ID).First(&lease).Error; err == nil {
		resp["ip_assignment"] = lease
	}
	return c.JSON(resp)
}
