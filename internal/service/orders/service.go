package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/camisetas/internal/domain"
	"github.com/vladislavdragonenkov/camisetas/internal/metrics"
	"github.com/vladislavdragonenkov/camisetas/internal/service/sequence"
)

// DefaultShippingFee: стоимость доставки, добавляемая к сводному заказу.
const DefaultShippingFee = 10.0

// CreateOrderInput: данные клиента для создания заказа.
type CreateOrderInput struct {
	RecipientName string `json:"nome_destinario"`
	ContactPhone  string `json:"telefone_contato"`
	domain.Address
	PaymentMethod domain.PaymentMethod `json:"forma_pagamento"`
	// TotalValue учитывается только для сводного заказа. nil: посчитать по позициям.
	TotalValue     *float64          `json:"valor_total,omitempty"`
	Items          []domain.LineItem `json:"itens"`
	DeliveryStatus *string           `json:"statusEntrega,omitempty"`
	OrderStatus    *string           `json:"statusPedido,omitempty"`
}

// Config задаёт параметры сервиса заказов.
type Config struct {
	Retry       RetryConfig
	ShippingFee float64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		Retry:       DefaultRetryConfig(),
		ShippingFee: DefaultShippingFee,
	}
}

// Service реализует создание заказов с последовательными номерами и операции над ними.
type Service struct {
	orders   domain.OrderRepository
	assigner *sequence.Assigner
	outbox   domain.OutboxRepository
	logger   *log.Entry
	metrics  *metrics.OrderMetrics
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option настраивает Service.
type Option func(*Service)

// WithOutbox включает запись событий заказа в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Service) {
		s.outbox = outbox
	}
}

// WithMetrics подключает prometheus-метрики.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer задаёт tracer для span'ов создания заказа.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService создаёт сервис заказов.
func NewService(orders domain.OrderRepository, cfg Config, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	cfg.Retry = cfg.Retry.normalized()
	if cfg.ShippingFee < 0 {
		cfg.ShippingFee = 0
	}

	s := &Service{
		orders:   orders,
		assigner: sequence.NewAssigner(orders),
		logger:   logger,
		tracer:   otel.Tracer("github.com/vladislavdragonenkov/camisetas/internal/service/orders"),
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateConsolidatedOrder сохраняет все позиции корзины одним заказом.
// Сумма берётся из запроса, если указана, иначе Σ цен + доставка.
func (s *Service) CreateConsolidatedOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.create_consolidated")
	defer span.End()
	start := time.Now()

	draft := in.draft(in.Items)
	if in.TotalValue != nil {
		draft.TotalValue = *in.TotalValue
	} else {
		draft.TotalValue = s.consolidatedTotal(in.Items)
	}
	if err := draft.ValidateInvariants(); err != nil {
		s.recordValidationFailed()
		span.SetStatus(codes.Error, "validation failed")
		return domain.Order{}, err
	}

	created, err := s.persistWithNumber(ctx, draft)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.Order{}, err
	}

	span.SetAttributes(
		attribute.Int64("order.number", created.Number),
		attribute.Int("order.items", len(created.Items)),
	)
	s.afterCreate(ctx, created, metrics.ModeConsolidated, start)
	return created, nil
}

// CreatePerItemOrders создаёт отдельный заказ на каждую позицию корзины.
// Сумма каждого заказа: цена позиции без доставки. При ошибке возвращает
// уже созданные заказы вместе с ошибкой.
func (s *Service) CreatePerItemOrders(ctx context.Context, in CreateOrderInput) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.create_per_item")
	defer span.End()

	// Вся корзина проверяется до выдачи первого номера.
	whole := in.draft(in.Items)
	if err := whole.ValidateInvariants(); err != nil {
		s.recordValidationFailed()
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	created := make([]domain.Order, 0, len(in.Items))
	for _, item := range in.Items {
		start := time.Now()
		draft := in.draft([]domain.LineItem{item})
		draft.TotalValue = item.Price

		order, err := s.persistWithNumber(ctx, draft)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.WithError(err).WithField("created", len(created)).Warn("per-item order creation stopped")
			return created, err
		}
		s.afterCreate(ctx, order, metrics.ModePerItem, start)
		created = append(created, order)
	}

	span.SetAttributes(attribute.Int("orders.created", len(created)))
	return created, nil
}

// persistWithNumber присваивает номер и сохраняет заказ, повторяя попытку при коллизии.
func (s *Service) persistWithNumber(ctx context.Context, draft domain.Order) (domain.Order, error) {
	delay := s.cfg.Retry.InitialDelay

	for attempt := 1; attempt <= s.cfg.Retry.MaxAttempts; attempt++ {
		number, err := s.assigner.Next(ctx)
		if err != nil {
			return domain.Order{}, err
		}

		order := draft
		order.Number = number
		order.CreatedAt = s.now()
		order.UpdatedAt = order.CreatedAt

		created, err := s.orders.Create(ctx, order)
		if err == nil {
			if attempt > 1 {
				s.logger.WithFields(log.Fields{
					"order_number": number,
					"attempt":      attempt,
				}).Info("order number assigned after retry")
			}
			return created, nil
		}
		if !domain.IsDuplicateSequence(err) {
			if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrPersistence) {
				return domain.Order{}, err
			}
			return domain.Order{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		}

		if s.metrics != nil {
			s.metrics.RecordSequenceCollision()
		}
		s.logger.WithFields(log.Fields{
			"order_number": number,
			"attempt":      attempt,
			"delay":        delay,
		}).Warn("order number collision, retrying")

		if attempt < s.cfg.Retry.MaxAttempts {
			if err := s.sleep(ctx, delay); err != nil {
				return domain.Order{}, err
			}
			delay = s.cfg.Retry.next(delay)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordAssignmentFailed()
	}
	s.logger.WithField("max_attempts", s.cfg.Retry.MaxAttempts).Error("order number assignment failed after all attempts")
	return domain.Order{}, fmt.Errorf("%w after %d attempts", domain.ErrSequenceAssignmentFailed, s.cfg.Retry.MaxAttempts)
}

// GetByID возвращает заказ по внутреннему идентификатору.
func (s *Service) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetByNumber возвращает заказ по последовательному номеру.
func (s *Service) GetByNumber(ctx context.Context, number int64) (domain.Order, error) {
	return s.orders.GetByNumber(ctx, number)
}

// ListByPhone возвращает заказы клиента, новые первыми.
func (s *Service) ListByPhone(ctx context.Context, phone string) ([]domain.Order, error) {
	if phone == "" {
		return nil, domain.NewValidationError("telefone", "is required")
	}
	return s.orders.ListByPhone(ctx, phone)
}

// List возвращает страницу заказов. Некорректные page/limit заменяются значениями по умолчанию.
func (s *Service) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 10
	}
	return s.orders.List(ctx, filter)
}

// UpdateStatusByNumber меняет статусы заказа с указанным номером.
func (s *Service) UpdateStatusByNumber(ctx context.Context, number int64, patch domain.StatusPatch) (domain.Order, error) {
	if patch.Empty() {
		return domain.Order{}, domain.ErrNoFieldsProvided
	}
	updated, err := s.orders.UpdateStatus(ctx, number, patch)
	if err != nil {
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordStatusUpdated()
	}
	s.enqueue(ctx, domain.EventOrderStatusUpdated, updated.Number, statusEvent{
		ID:             updated.Number,
		DeliveryStatus: updated.DeliveryStatus,
		OrderStatus:    updated.OrderStatus,
	})
	return updated, nil
}

// UpdateStatusByID меняет статусы заказа, найденного по внутреннему идентификатору.
func (s *Service) UpdateStatusByID(ctx context.Context, id string, patch domain.StatusPatch) (domain.Order, error) {
	if patch.Empty() {
		return domain.Order{}, domain.ErrNoFieldsProvided
	}
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return s.UpdateStatusByNumber(ctx, current.Number, patch)
}

// Delete удаляет заказ по внутреннему идентификатору. Его номер больше не выдаётся.
func (s *Service) Delete(ctx context.Context, id string) error {
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordOrderDeleted()
	}
	s.logger.WithField("order_number", current.Number).Info("order deleted")
	s.enqueue(ctx, domain.EventOrderDeleted, current.Number, deletedEvent{ID: current.Number, InternalID: current.ID})
	return nil
}

// Stats возвращает агрегированную статистику по заказам.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	return s.orders.Stats(ctx)
}

func (s *Service) consolidatedTotal(items []domain.LineItem) float64 {
	total := decimal.NewFromFloat(s.cfg.ShippingFee)
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Price))
	}
	return total.Round(2).InexactFloat64()
}

func (s *Service) afterCreate(ctx context.Context, order domain.Order, mode string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordOrderCreated(mode, order.Number)
		s.metrics.RecordCreateDuration(mode, time.Since(start))
	}
	s.logger.WithFields(log.Fields{
		"order_number": order.Number,
		"order_id":     order.ID,
		"mode":         mode,
		"total":        order.TotalValue,
	}).Info("order created")
	s.enqueue(ctx, domain.EventOrderCreated, order.Number, order)
}

func (s *Service) recordValidationFailed() {
	if s.metrics != nil {
		s.metrics.RecordValidationFailed()
	}
}

// enqueue пишет событие в outbox. Ошибка outbox не отменяет уже сохранённую операцию.
func (s *Service) enqueue(ctx context.Context, eventType string, number int64, payload any) {
	if s.outbox == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event_type", eventType).Warn("failed to marshal outbox payload")
		return
	}
	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   strconv.FormatInt(number, 10),
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     s.now(),
	}); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"event_type":   eventType,
			"order_number": number,
		}).Warn("failed to enqueue outbox message")
	}
}

type statusEvent struct {
	ID             int64   `json:"id"`
	DeliveryStatus *string `json:"statusEntrega,omitempty"`
	OrderStatus    *string `json:"statusPedido,omitempty"`
}

type deletedEvent struct {
	ID         int64  `json:"id"`
	InternalID string `json:"_id"`
}

func (in CreateOrderInput) draft(items []domain.LineItem) domain.Order {
	return domain.Order{
		RecipientName:  in.RecipientName,
		ContactPhone:   in.ContactPhone,
		Address:        in.Address,
		PaymentMethod:  in.PaymentMethod,
		Items:          append([]domain.LineItem(nil), items...),
		DeliveryStatus: in.DeliveryStatus,
		OrderStatus:    in.OrderStatus,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
