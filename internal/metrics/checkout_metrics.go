package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Результаты checkout для метки result.
const (
	ResultConfirmed          = "confirmed"
	ResultReservationExpired = "reservation_expired"
	ResultInvalidState       = "invalid_state"
	ResultNotFound           = "not_found"
	ResultBusy               = "busy"
	ResultError              = "error"
)

// CheckoutMetrics содержит метрики резервов и checkout.
type CheckoutMetrics struct {
	checkouts        *prometheus.CounterVec
	checkoutDuration prometheus.Histogram
	activeCheckouts  prometheus.Gauge

	// reservationOps считает операции над складским резервом: reserve, release, confirm.
	reservationOps   *prometheus.CounterVec
	reservationUnits *prometheus.CounterVec
}

// NewCheckoutMetrics создаёт метрики в реестре по умолчанию.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики в указанном реестре.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_checkouts_total",
			Help: "Total number of checkout attempts by result",
		}, []string{"result"}),
		checkoutDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "marketplace_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		activeCheckouts: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "marketplace_active_checkouts",
			Help: "Number of checkouts currently in progress",
		}),
		reservationOps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_stock_operations_total",
			Help: "Total number of stock ledger operations by kind and result",
		}, []string{"op", "result"}),
		reservationUnits: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "marketplace_stock_units_total",
			Help: "Total number of stock units moved by ledger operations",
		}, []string{"op"}),
	}
}

// CheckoutStarted отмечает начало checkout и возвращает функцию завершения.
func (m *CheckoutMetrics) CheckoutStarted() func(err error) {
	if m == nil {
		return func(error) {}
	}
	started := time.Now()
	m.activeCheckouts.Inc()
	return func(err error) {
		m.activeCheckouts.Dec()
		m.checkoutDuration.Observe(time.Since(started).Seconds())
		m.checkouts.WithLabelValues(CheckoutResult(err)).Inc()
	}
}

// RecordStockOperation учитывает операцию над резервом и число единиц.
func (m *CheckoutMetrics) RecordStockOperation(op string, units int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.reservationOps.WithLabelValues(op, result).Inc()
	if err == nil && units > 0 {
		m.reservationUnits.WithLabelValues(op).Add(float64(units))
	}
}

// CheckoutResult сводит ошибку checkout к значению метки result.
func CheckoutResult(err error) string {
	switch {
	case err == nil:
		return ResultConfirmed
	case errors.Is(err, domain.ErrReservationExpired):
		return ResultReservationExpired
	case errors.Is(err, domain.ErrConflict):
		return ResultBusy
	case errors.Is(err, domain.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidInput):
		return ResultInvalidState
	default:
		return ResultError
	}
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}
