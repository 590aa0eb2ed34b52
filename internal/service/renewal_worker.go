package service

import (
	"context"
	"time"

	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

const renewalLockName = "subscription-renewal"

// Locker распределенная блокировка фоновых задач
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error)
}

// RenewalWorkerConfig параметры фонового продления подписок
type RenewalWorkerConfig struct {
	// CheckInterval период между проходами
	CheckInterval time.Duration

	// RenewBefore за сколько до окончания подписка считается готовой
	// к продлению
	RenewBefore time.Duration

	// LockTTL время жизни распределенной блокировки прохода
	LockTTL time.Duration
}

// RenewalWorker фоновый процесс: продлевает подписки с автопродлением,
// переводит просроченные в EXPIRED и предупреждает об истечении
// за 7, 3 и 1 день
type RenewalWorker struct {
	subs   *SubscriptionService
	locker Locker
	cfg    RenewalWorkerConfig
	log    *logger.Logger
}

// NewRenewalWorker создает новый воркер продления подписок
func NewRenewalWorker(subs *SubscriptionService, locker Locker, cfg RenewalWorkerConfig, log *logger.Logger) *RenewalWorker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.RenewBefore == 0 {
		cfg.RenewBefore = 24 * time.Hour
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &RenewalWorker{subs: subs, locker: locker, cfg: cfg, log: log}
}

// Run выполняет проходы до отмены контекста
func (w *RenewalWorker) Run(ctx context.Context) {
	w.log.Infow("Renewal worker started",
		"checkInterval", w.cfg.CheckInterval, "renewBefore", w.cfg.RenewBefore)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Infow("Renewal worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход под распределенной блокировкой:
// проход выполняет ровно один экземпляр сервиса
func (w *RenewalWorker) RunOnce(ctx context.Context) {
	release, acquired, err := w.locker.Acquire(ctx, renewalLockName, w.cfg.LockTTL)
	if err != nil {
		w.log.Errorw("Failed to acquire renewal lock", "error", err)
		return
	}
	if !acquired {
		w.log.Debugw("Renewal lock held by another instance, skipping pass")
		return
	}
	defer release()

	w.subs.RenewDueSubscriptions(ctx, w.cfg.RenewBefore)
	w.subs.ExpireOverdueSubscriptions(ctx)
	w.subs.NotifyExpiringSubscriptions(ctx, 7, 3, 1)
}
