package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Dhoini/Billing-microservice/internal/domain"
	"github.com/Dhoini/Billing-microservice/pkg/logger"
)

const subscriptionColumns = `id, user_id, plan, status, billing_cycle,
	start_date, end_date, customer_key, billing_key, auto_renewal,
	cancel_reason, created_at, updated_at`

// PostgresSubscriptionRepository реализация репозитория подписок на PostgreSQL
type PostgresSubscriptionRepository struct {
	q   querier
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый репозиторий подписок на PostgreSQL
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{q: pool, log: log}
}

// Create создает новую подписку
func (r *PostgresSubscriptionRepository) Create(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	query := fmt.Sprintf(`
		INSERT INTO subscriptions (id, user_id, plan, status, billing_cycle,
			start_date, end_date, customer_key, billing_key, auto_renewal,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING %s`, subscriptionColumns)

	row := r.q.QueryRow(ctx, query,
		sub.ID, sub.UserID, sub.Plan, sub.Status, sub.BillingCycle,
		sub.StartDate, sub.EndDate, sub.CustomerKey,
		nullString(sub.BillingKey), sub.AutoRenewal)

	created, err := scanSubscription(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// Частичный уникальный индекс: user_id WHERE status = 'active'
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Subscription{}, domain.ErrSubscriptionAlreadyExists
		}
		r.log.Errorw("Failed to create subscription", "userId", sub.UserID, "error", err)
		return domain.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	return created, nil
}

// Update обновляет подписку
func (r *PostgresSubscriptionRepository) Update(ctx context.Context, sub domain.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan = $2, status = $3, billing_cycle = $4, start_date = $5,
			end_date = $6, customer_key = $7, billing_key = $8,
			auto_renewal = $9, cancel_reason = $10, updated_at = now()
		WHERE id = $1`

	tag, err := r.q.Exec(ctx, query,
		sub.ID, sub.Plan, sub.Status, sub.BillingCycle, sub.StartDate,
		sub.EndDate, sub.CustomerKey, nullString(sub.BillingKey),
		sub.AutoRenewal, nullString(sub.CancelReason))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSubscriptionAlreadyExists
		}
		r.log.Errorw("Failed to update subscription", "subscriptionId", sub.ID, "error", err)
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает подписку по идентификатору
func (r *PostgresSubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	return r.getOne(ctx, query, id)
}

// GetByUserID возвращает последнюю подписку пользователя
func (r *PostgresSubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, subscriptionColumns)
	return r.getOne(ctx, query, userID)
}

// GetActiveByUserID возвращает активную подписку пользователя
func (r *PostgresSubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID) (domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1 AND status = $2`, subscriptionColumns)

	sub, err := scanSubscription(r.q.QueryRow(ctx, query, userID, domain.SubscriptionStatusActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("get active subscription: %w", err)
	}
	return sub, nil
}

// ExistsActiveByUserID проверяет наличие активной подписки
func (r *PostgresSubscriptionRepository) ExistsActiveByUserID(ctx context.Context, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND status = $2)`

	var exists bool
	err := r.q.QueryRow(ctx, query, userID, domain.SubscriptionStatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active subscription: %w", err)
	}
	return exists, nil
}

// GetByBillingKey возвращает подписку по биллинговому ключу
func (r *PostgresSubscriptionRepository) GetByBillingKey(ctx context.Context, billingKey string) (domain.Subscription, error) {
	if billingKey == "" {
		return domain.Subscription{}, ErrInvalidData
	}
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE billing_key = $1`, subscriptionColumns)
	return r.getOne(ctx, query, billingKey)
}

// FindRenewable возвращает активные автопродляемые подписки
func (r *PostgresSubscriptionRepository) FindRenewable(ctx context.Context, threshold time.Time) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status = $1 AND auto_renewal = true
			AND billing_key IS NOT NULL AND end_date <= $2
		ORDER BY end_date`, subscriptionColumns)
	return r.getMany(ctx, query, domain.SubscriptionStatusActive, threshold)
}

// FindExpired возвращает активные подписки с истекшим сроком
func (r *PostgresSubscriptionRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status = $1 AND end_date < $2
		ORDER BY end_date`, subscriptionColumns)
	return r.getMany(ctx, query, domain.SubscriptionStatusActive, now)
}

// FindExpiringBetween возвращает активные подписки, истекающие в интервале
func (r *PostgresSubscriptionRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE status = $1 AND end_date >= $2 AND end_date < $3
		ORDER BY end_date`, subscriptionColumns)
	return r.getMany(ctx, query, domain.SubscriptionStatusActive, from, to)
}

func (r *PostgresSubscriptionRepository) getOne(ctx context.Context, query string, arg any) (domain.Subscription, error) {
	sub, err := scanSubscription(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Subscription{}, ErrNotFound
		}
		return domain.Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepository) getMany(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var s domain.Subscription
	var billingKey, cancelReason *string

	err := row.Scan(
		&s.ID, &s.UserID, &s.Plan, &s.Status, &s.BillingCycle,
		&s.StartDate, &s.EndDate, &s.CustomerKey, &billingKey, &s.AutoRenewal,
		&cancelReason, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.BillingKey = derefString(billingKey)
	s.CancelReason = derefString(cancelReason)
	return s, nil
}
