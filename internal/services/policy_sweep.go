package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/proisp/workflow-driver/internal/workflow"
)

// PolicySweepService periodically re-reconciles every synced service
// instance of the owning service. The bus gives no delivery guarantees, so
// the sweep is what makes the system converge after a missed or reordered
// message. Deferred instances are left for the retry queue.
type PolicySweepService struct {
	engine   *workflow.Engine
	store    workflow.Store
	ownerID  uint
	interval time.Duration
	log      *zap.SugaredLogger

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewPolicySweepService(engine *workflow.Engine, store workflow.Store, ownerID uint, intervalMinutes int, log *zap.SugaredLogger) *PolicySweepService {
	if intervalMinutes <= 0 {
		intervalMinutes = 10
	}
	return &PolicySweepService{
		engine:   engine,
		store:    store,
		ownerID:  ownerID,
		interval: time.Duration(intervalMinutes) * time.Minute,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

// Start begins the sweep loop
func (s *PolicySweepService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	s.log.Infow("policy sweep started", "interval", s.interval)
}

// Stop stops the sweep loop and waits for an in-flight pass to finish
func (s *PolicySweepService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.log.Infow("policy sweep stopped")
}

func (s *PolicySweepService) run() {
	defer s.wg.Done()

	// First pass after a short delay, letting the consumers settle.
	select {
	case <-time.After(30 * time.Second):
		s.sweep()
	case <-s.stopChan:
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *PolicySweepService) sweep() {
	ctx := context.Background()

	sis, err := s.store.ServiceInstancesByOwner(ctx, s.ownerID)
	if err != nil {
		s.log.Errorw("policy sweep: listing service instances failed", "error", err)
		return
	}

	var reconciled, deferred, failed int
	for _, si := range sis {
		if !si.Synced {
			continue
		}
		err := s.engine.Reconcile(ctx, si.SerialNumber)
		switch {
		case err == nil:
			reconciled++
		case workflow.IsDeferred(err):
			deferred++
		default:
			failed++
			s.log.Errorw("policy sweep: reconciliation failed",
				"serial_number", si.SerialNumber, "error", err)
		}
	}

	if reconciled+deferred+failed > 0 {
		s.log.Infow("policy sweep complete",
			"reconciled", reconciled, "deferred", deferred, "failed", failed)
	}
}
