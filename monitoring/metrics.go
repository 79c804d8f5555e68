package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"raffle-system/models"
)

// RaffleLister is the part of the store the collector reads.
type RaffleLister interface {
	ListRaffles(ctx context.Context) ([]*models.Raffle, error)
}

type Monitor struct {
	raffles RaffleLister

	sales          *prometheus.CounterVec
	saleConflicts  *prometheus.CounterVec
	saleDuration   *prometheus.HistogramVec
	ticketsSold    *prometheus.GaugeVec
	draws          *prometheus.CounterVec
	goroutineCount prometheus.Gauge
}

// NewMonitor registers the raffle metrics on reg. A nil reg uses the
// default registerer.
func NewMonitor(reg prometheus.Registerer, raffles RaffleLister) *Monitor {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Monitor{
		raffles: raffles,
		sales: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_sales_total",
				Help: "Sale registrations by origin and outcome",
			},
			[]string{"origin", "outcome"},
		),
		saleConflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_sale_conflicts_total",
				Help: "Uniqueness conflicts hit while registering sales",
			},
			[]string{"field"},
		),
		saleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "raffle_sale_duration_seconds",
				Help:    "Duration of sale registrations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"origin"},
		),
		ticketsSold: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "raffle_tickets_sold",
				Help: "Tickets sold per raffle",
			},
			[]string{"raffle_id"},
		),
		draws: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "raffle_draws_total",
				Help: "Winner draws by outcome",
			},
			[]string{"outcome"},
		),
		goroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_goroutines_total",
				Help: "Current number of active goroutines",
			},
		),
	}
}

func (m *Monitor) ObserveSale(origin, outcome string, elapsed time.Duration) {
	m.sales.WithLabelValues(origin, outcome).Inc()
	m.saleDuration.WithLabelValues(origin).Observe(elapsed.Seconds())
}

func (m *Monitor) IncSaleConflict(field string) {
	m.saleConflicts.WithLabelValues(field).Inc()
}

func (m *Monitor) SetTicketsSold(raffleID string, sold int) {
	m.ticketsSold.WithLabelValues(raffleID).Set(float64(sold))
}

func (m *Monitor) IncDraw(outcome string) {
	m.draws.WithLabelValues(outcome).Inc()
}

// DefaultRefresh is used by Run when the interval is not positive.
const DefaultRefresh = 30 * time.Second

// Run refreshes the collected gauges every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Collect(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Collect(ctx)
		}
	}
}

// Collect reloads the sold gauges from the store, so counts written by other
// instances show up here too.
func (m *Monitor) Collect(ctx context.Context) {
	m.goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.raffles == nil {
		return
	}
	raffles, err := m.raffles.ListRaffles(ctx)
	if err != nil {
		slog.Warn("Failed to collect raffle metrics", "error", err)
		return
	}
	for _, r := range raffles {
		m.ticketsSold.WithLabelValues(r.ID).Set(float64(r.TicketsSold))
	}
}
