package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anthropics/trello-discord-bridge/internal/biz/usecase"
)

// WebhookReconciler keeps the webhook registry converged in the
// background: boards that gained configuration get a webhook, local rows
// whose external webhook disappeared get removed. The external API is
// the source of truth for webhook existence; the local store records
// intent.
type WebhookReconciler struct {
	registry    *usecase.WebhookRegistry
	callbackURL string

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewWebhookReconciler creates a new webhook reconciler
func NewWebhookReconciler(registry *usecase.WebhookRegistry, callbackURL string, interval time.Duration) *WebhookReconciler {
	return &WebhookReconciler{
		registry:    registry,
		callbackURL: callbackURL,
		interval:    interval,
	}
}

// Start starts the reconciliation loop
func (r *WebhookReconciler) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop()

	fmt.Printf("[Reconciler] Started with interval %v\n", r.interval)
}

// Stop stops the reconciliation loop
func (r *WebhookReconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	fmt.Println("[Reconciler] Stopped")
}

func (r *WebhookReconciler) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.Reconcile(r.ctx)
		}
	}
}

// Reconcile runs one convergence pass: drop local rows orphaned by
// external deletion, then register webhooks for configured boards.
// Cleanup runs first so a board whose webhook vanished externally gets
// a fresh one in the same pass. Each half is best-effort; a failure in
// one never blocks the other.
func (r *WebhookReconciler) Reconcile(ctx context.Context) {
	cleaned, err := r.registry.CleanupOrphanedWebhooks(ctx)
	if err != nil {
		fmt.Printf("[Reconciler] Orphan cleanup failed: %v\n", err)
	} else if cleaned > 0 {
		fmt.Printf("[Reconciler] Removed %d orphaned registrations\n", cleaned)
	}

	result, err := r.registry.AutoRegisterForConfiguredBoards(ctx, r.callbackURL)
	if err != nil {
		fmt.Printf("[Reconciler] Auto-register pass failed: %v\n", err)
		return
	}
	if result.Total > 0 {
		fmt.Printf("[Reconciler] Auto-register: %d/%d boards registered\n", result.Successful, result.Total)
	}
}
