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

// querier общий интерфейс pgxpool.Pool и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const paymentColumns = `id, user_id, subscription_id, order_id, payment_key, amount,
	plan, billing_cycle, customer_key, method, status, type,
	paid_at, canceled_at, cancel_reason, fail_reason, created_at, updated_at`

// PostgresPaymentRepository реализация репозитория платежей на PostgreSQL
type PostgresPaymentRepository struct {
	pool *pgxpool.Pool
	q    querier
	log  *logger.Logger
}

// NewPostgresPaymentRepository создает новый репозиторий платежей на PostgreSQL
func NewPostgresPaymentRepository(pool *pgxpool.Pool, log *logger.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{pool: pool, q: pool, log: log}
}

// Create создает новый платеж
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	query := fmt.Sprintf(`
		INSERT INTO payments (id, user_id, subscription_id, order_id, payment_key, amount,
			plan, billing_cycle, customer_key, method, status, type,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING %s`, paymentColumns)

	row := r.q.QueryRow(ctx, query,
		payment.ID, payment.UserID, payment.SubscriptionID, payment.OrderID,
		nullString(payment.PaymentKey), payment.Amount,
		payment.Plan, payment.BillingCycle, payment.CustomerKey,
		nullString(payment.Method), payment.Status, payment.Type)

	created, err := scanPayment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Payment{}, ErrDuplicate
		}
		r.log.Errorw("Failed to create payment", "orderId", payment.OrderID, "error", err)
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	return created, nil
}

// GetByOrderID возвращает платеж по идентификатору заказа
func (r *PostgresPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE order_id = $1`, paymentColumns)
	return r.getOne(ctx, query, orderID)
}

// GetByPaymentKey возвращает платеж по ключу платежа шлюза
func (r *PostgresPaymentRepository) GetByPaymentKey(ctx context.Context, paymentKey string) (domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE payment_key = $1`, paymentColumns)
	return r.getOne(ctx, query, paymentKey)
}

func (r *PostgresPaymentRepository) getOne(ctx context.Context, query string, arg any) (domain.Payment, error) {
	p, err := scanPayment(r.q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, ErrNotFound
		}
		return domain.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// WithOrderLock открывает транзакцию и удерживает SELECT ... FOR UPDATE
// на строке платежа, пока выполняется fn
func (r *PostgresPaymentRepository) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, repo PaymentRepository, payment domain.Payment) error) error {
	if r.pool == nil {
		// Вложенный вызов внутри уже открытой транзакции
		return ErrInvalidOperation
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE order_id = $1 FOR UPDATE`, paymentColumns)
	payment, err := scanPayment(tx.QueryRow(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock payment: %w", err)
	}

	txRepo := &PostgresPaymentRepository{q: tx, log: r.log}
	if err := fn(ctx, txRepo, payment); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// TryComplete атомарно переводит платеж PENDING -> COMPLETED
func (r *PostgresPaymentRepository) TryComplete(ctx context.Context, orderID, paymentKey, method string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2, payment_key = $3, method = $4, paid_at = $5, updated_at = now()
		WHERE order_id = $1 AND status = $6`

	tag, err := r.q.Exec(ctx, query,
		orderID, domain.PaymentStatusCompleted, paymentKey, nullString(method), paidAt,
		domain.PaymentStatusPending)
	if err != nil {
		r.log.Errorw("Failed to complete payment", "orderId", orderID, "error", err)
		return false, fmt.Errorf("complete payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel переводит платеж COMPLETED -> CANCELED
func (r *PostgresPaymentRepository) Cancel(ctx context.Context, orderID, reason string, canceledAt time.Time) error {
	query := `
		UPDATE payments
		SET status = $2, cancel_reason = $3, canceled_at = $4, updated_at = now()
		WHERE order_id = $1 AND status = $5`

	_, err := r.q.Exec(ctx, query,
		orderID, domain.PaymentStatusCanceled, reason, canceledAt,
		domain.PaymentStatusCompleted)
	if err != nil {
		r.log.Errorw("Failed to cancel payment", "orderId", orderID, "error", err)
		return fmt.Errorf("cancel payment: %w", err)
	}
	return nil
}

// Fail переводит платеж PENDING -> FAILED
func (r *PostgresPaymentRepository) Fail(ctx context.Context, orderID, reason string) error {
	query := `
		UPDATE payments
		SET status = $2, fail_reason = $3, updated_at = now()
		WHERE order_id = $1 AND status = $4`

	_, err := r.q.Exec(ctx, query,
		orderID, domain.PaymentStatusFailed, reason,
		domain.PaymentStatusPending)
	if err != nil {
		r.log.Errorw("Failed to fail payment", "orderId", orderID, "error", err)
		return fmt.Errorf("fail payment: %w", err)
	}
	return nil
}

// LinkSubscription привязывает платеж к подписке
func (r *PostgresPaymentRepository) LinkSubscription(ctx context.Context, orderID string, subscriptionID uuid.UUID) error {
	query := `UPDATE payments SET subscription_id = $2, updated_at = now() WHERE order_id = $1`

	tag, err := r.q.Exec(ctx, query, orderID, subscriptionID)
	if err != nil {
		return fmt.Errorf("link subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCompletedByUserID возвращает завершенные платежи пользователя
func (r *PostgresPaymentRepository) FindCompletedByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM payments
		WHERE user_id = $1 AND status = $2
		ORDER BY paid_at DESC
		LIMIT $3 OFFSET $4`, paymentColumns)

	rows, err := r.q.Query(ctx, query, userID, domain.PaymentStatusCompleted, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	var paymentKey, method, cancelReason, failReason *string

	err := row.Scan(
		&p.ID, &p.UserID, &p.SubscriptionID, &p.OrderID, &paymentKey, &p.Amount,
		&p.Plan, &p.BillingCycle, &p.CustomerKey, &method, &p.Status, &p.Type,
		&p.PaidAt, &p.CanceledAt, &cancelReason, &failReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}

	p.PaymentKey = derefString(paymentKey)
	p.Method = derefString(method)
	p.CancelReason = derefString(cancelReason)
	p.FailReason = derefString(failReason)
	return p, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
