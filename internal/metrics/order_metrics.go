package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Режимы создания заказа, используются как значение label `mode`.
const (
	ModeConsolidated = "consolidado"
	ModePerItem      = "por_item"
)

// OrderMetrics содержит метрики создания и изменения заказов.
type OrderMetrics struct {
	// Счётчики операций
	ordersCreated  *prometheus.CounterVec
	ordersDeleted  prometheus.Counter
	statusUpdates  prometheus.Counter
	validationFail prometheus.Counter

	// Конкуренция за номер заказа
	sequenceCollisions prometheus.Counter
	assignmentFailures prometheus.Counter

	// Гистограмма времени создания
	createDuration *prometheus.HistogramVec

	// Наибольший выданный номер; gauge только растёт
	lastNumberMu sync.Mutex
	lastIssued   int64
	lastNumber   prometheus.Gauge
}

// NewOrderMetrics создаёт метрики заказов в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer создаёт метрики в указанном registerer (удобно для тестов).
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_orders_created_total",
			Help: "Total number of orders persisted, grouped by creation mode",
		}, []string{"mode"}),
		ordersDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_orders_deleted_total",
			Help: "Total number of orders deleted",
		}),
		statusUpdates: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_status_updates_total",
			Help: "Total number of order status updates",
		}),
		validationFail: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_validation_failures_total",
			Help: "Total number of order creation requests rejected by validation",
		}),
		sequenceCollisions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_sequence_collisions_total",
			Help: "Total number of order number collisions detected by the store",
		}),
		assignmentFailures: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_order_sequence_assignment_failures_total",
			Help: "Total number of order creations that exhausted number assignment attempts",
		}),
		createDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "shop_order_create_duration_seconds",
			Help:    "Duration of order creation including number assignment retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"mode"}),
		lastNumber: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "shop_order_last_number",
			Help: "Last order number issued by this process",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов и поднимает последний номер.
// Запросы завершаются не по порядку номеров, поэтому меньший номер gauge не опускает.
func (m *OrderMetrics) RecordOrderCreated(mode string, number int64) {
	m.ordersCreated.WithLabelValues(mode).Inc()

	m.lastNumberMu.Lock()
	defer m.lastNumberMu.Unlock()
	if number > m.lastIssued {
		m.lastIssued = number
		m.lastNumber.Set(float64(number))
	}
}

// RecordOrderDeleted увеличивает счётчик удалённых заказов.
func (m *OrderMetrics) RecordOrderDeleted() {
	m.ordersDeleted.Inc()
}

// RecordStatusUpdated увеличивает счётчик обновлений статуса.
func (m *OrderMetrics) RecordStatusUpdated() {
	m.statusUpdates.Inc()
}

// RecordValidationFailed увеличивает счётчик отклонённых запросов.
func (m *OrderMetrics) RecordValidationFailed() {
	m.validationFail.Inc()
}

// RecordSequenceCollision фиксирует коллизию номера заказа.
func (m *OrderMetrics) RecordSequenceCollision() {
	m.sequenceCollisions.Inc()
}

// RecordAssignmentFailed фиксирует исчерпание попыток присвоить номер.
func (m *OrderMetrics) RecordAssignmentFailed() {
	m.assignmentFailures.Inc()
}

// RecordCreateDuration записывает время создания заказа.
func (m *OrderMetrics) RecordCreateDuration(mode string, duration time.Duration) {
	m.createDuration.WithLabelValues(mode).Observe(duration.Seconds())
}
