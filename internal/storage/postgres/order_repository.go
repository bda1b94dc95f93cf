package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
)

const (
	pgUniqueViolation    = "23505"
	orderNumberConstrain = "pedidos_numero_key"
	couponCodeConstrain  = "cupons_codigo_key"

	orderColumns = `id, numero, nome_destinario, telefone_contato,
		cep, rua, numero_endereco, bairro, complemento,
		forma_pagamento, valor_total, itens, status_entrega, status_pedido,
		data_pedido, updated_at`
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

// Create вставляет заказ, только если номер выше максимального удалённого.
// Коллизия по номеру или номер ниже floor дают ErrDuplicateSequence.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if err := order.ValidateInvariants(); err != nil {
		return domain.Order{}, err
	}
	if order.Number <= 0 {
		return domain.Order{}, domain.NewValidationError("id", "sequence number must be positive")
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	items, err := json.Marshal(order.Items)
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal order items: %w", err)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pedidos (`+orderColumns+`)
		SELECT $1::text, $2::bigint, $3::text, $4::text, $5::text, $6::text, $7::integer, $8::text, $9::text,
			$10::text, $11::numeric, $12::jsonb, $13::text, $14::text, $15::timestamptz, $16::timestamptz
		WHERE $2::bigint > (SELECT last_deleted FROM order_sequence_floor WHERE id = 1 FOR SHARE)
	`,
		order.ID, order.Number, order.RecipientName, order.ContactPhone,
		order.PostalCode, order.Street, order.Address.Number, order.Neighborhood, order.Complement,
		string(order.PaymentMethod), money(order.TotalValue), string(items),
		nullString(order.DeliveryStatus), nullString(order.OrderStatus),
		order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err, orderNumberConstrain) {
			return domain.Order{}, domain.ErrDuplicateSequence
		}
		return domain.Order{}, persistenceErr("insert order", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Order{}, persistenceErr("rows affected", err)
	}
	if affected == 0 {
		return domain.Order{}, domain.ErrDuplicateSequence
	}
	return order, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.getOne(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE id = $1`, id)
}

func (r *orderRepository) GetByNumber(ctx context.Context, number int64) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.getOne(ctx, `SELECT `+orderColumns+` FROM pedidos WHERE numero = $1`, number)
}

func (r *orderRepository) getOne(ctx context.Context, query string, arg any) (domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistenceErr("select order", err)
	}
	return order, nil
}

func (r *orderRepository) ListByPhone(ctx context.Context, phone string) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM pedidos
		WHERE telefone_contato = $1
		ORDER BY data_pedido DESC, numero DESC
	`, phone)
	if err != nil {
		return nil, persistenceErr("list orders by phone", err)
	}
	return collectOrders(rows)
}

func (r *orderRepository) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var result domain.ListResult
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pedidos WHERE ($1 = '' OR status_pedido = $1)
	`, filter.Status).Scan(&result.Total); err != nil {
		return domain.ListResult{}, persistenceErr("count orders", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM pedidos
		WHERE ($1 = '' OR status_pedido = $1)
		ORDER BY data_pedido DESC, numero DESC
		LIMIT $2 OFFSET $3
	`, filter.Status, filter.Limit, filter.Skip())
	if err != nil {
		return domain.ListResult{}, persistenceErr("list orders", err)
	}
	result.Orders, err = collectOrders(rows)
	if err != nil {
		return domain.ListResult{}, err
	}
	return result, nil
}

// UpdateStatus обновляет только переданные поля. NULL-параметр оставляет значение как есть.
func (r *orderRepository) UpdateStatus(ctx context.Context, number int64, patch domain.StatusPatch) (domain.Order, error) {
	if patch.Empty() {
		return domain.Order{}, domain.ErrNoFieldsProvided
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		UPDATE pedidos
		SET status_entrega = COALESCE($2, status_entrega),
		    status_pedido = COALESCE($3, status_pedido),
		    updated_at = $4
		WHERE numero = $1
		RETURNING `+orderColumns,
		number, nullString(patch.DeliveryStatus), nullString(patch.OrderStatus), time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, persistenceErr("update order status", err)
	}
	return order, nil
}

// Delete удаляет заказ и в той же транзакции поднимает floor до его номера.
func (r *orderRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var number int64
	err = tx.QueryRowContext(ctx, `SELECT numero FROM pedidos WHERE id = $1 FOR UPDATE`, id).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return persistenceErr("lock order", err)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE order_sequence_floor SET last_deleted = GREATEST(last_deleted, $1) WHERE id = 1
	`, number); err != nil {
		return persistenceErr("raise sequence floor", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM pedidos WHERE id = $1`, id); err != nil {
		return persistenceErr("delete order", err)
	}

	if err = tx.Commit(); err != nil {
		return persistenceErr("commit delete order", err)
	}
	return nil
}

func (r *orderRepository) Stats(ctx context.Context) (domain.Stats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var total decimal.Decimal
	stats := domain.Stats{ByPaymentMethod: []domain.PaymentMethodCount{}}
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(valor_total), 0) FROM pedidos
	`).Scan(&stats.TotalOrders, &total); err != nil {
		return domain.Stats{}, persistenceErr("order totals", err)
	}
	stats.TotalValue = total.Round(2).InexactFloat64()

	rows, err := r.db.QueryContext(ctx, `
		SELECT forma_pagamento, COUNT(*)
		FROM pedidos
		GROUP BY forma_pagamento
		ORDER BY forma_pagamento
	`)
	if err != nil {
		return domain.Stats{}, persistenceErr("orders by payment method", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			method string
			count  int64
		)
		if err := rows.Scan(&method, &count); err != nil {
			return domain.Stats{}, persistenceErr("scan payment method count", err)
		}
		stats.ByPaymentMethod = append(stats.ByPaymentMethod, domain.PaymentMethodCount{
			PaymentMethod: domain.PaymentMethod(method),
			Count:         count,
		})
	}
	if err := rows.Err(); err != nil {
		return domain.Stats{}, persistenceErr("iterate payment method counts", err)
	}
	return stats, nil
}

// LastNumber учитывает и живые заказы, и floor удалённых.
func (r *orderRepository) LastNumber(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var last int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT GREATEST(
			COALESCE((SELECT MAX(numero) FROM pedidos), 0),
			COALESCE((SELECT last_deleted FROM order_sequence_floor WHERE id = 1), 0)
		)
	`).Scan(&last); err != nil {
		return 0, persistenceErr("read last order number", err)
	}
	return last, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order          domain.Order
		method         string
		total          decimal.Decimal
		items          []byte
		deliveryStatus sql.NullString
		orderStatus    sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.RecipientName, &order.ContactPhone,
		&order.PostalCode, &order.Street, &order.Address.Number, &order.Neighborhood, &order.Complement,
		&method, &total, &items, &deliveryStatus, &orderStatus,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}

	if err := json.Unmarshal(items, &order.Items); err != nil {
		return domain.Order{}, fmt.Errorf("decode order items: %w", err)
	}
	order.PaymentMethod = domain.PaymentMethod(method)
	order.TotalValue = total.InexactFloat64()
	order.DeliveryStatus = stringPtr(deliveryStatus)
	order.OrderStatus = stringPtr(orderStatus)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, persistenceErr("scan order row", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate order rows", err)
	}
	return orders, nil
}

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

// isUniqueViolation проверяет код 23505. Пустой constraint совпадает с любым ограничением.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || strings.EqualFold(pgErr.ConstraintName, constraint)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
