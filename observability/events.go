package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts token movements and the contract events committed
// alongside them.
type LedgerMetrics struct {
	movements *prometheus.CounterVec
	committed *prometheus.CounterVec
}

var (
	ledgerOnce    sync.Once
	ledgerMetrics *LedgerMetrics
)

// Ledger returns the process-wide ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerMetrics = &LedgerMetrics{
			movements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "ledger",
				Name:      "movements_total",
				Help:      "Token balance movements by symbol and action.",
			}, []string{"symbol", "action"}),
			committed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "genproxy",
				Subsystem: "ledger",
				Name:      "events_committed_total",
				Help:      "Contract events published after a successful commit.",
			}, []string{"contract", "type"}),
		}
		prometheus.MustRegister(ledgerMetrics.movements, ledgerMetrics.committed)
	})
	return ledgerMetrics
}

// RecordMovement counts one transfer, send, mint or burn of symbol.
func (m *LedgerMetrics) RecordMovement(symbol, action string) {
	if m == nil {
		return
	}
	m.movements.WithLabelValues(labelOrUnknown(strings.ToUpper(symbol)), labelOrUnknown(action)).Inc()
}

// RecordCommitted counts an event emitted by contract once its transaction
// has been written.
func (m *LedgerMetrics) RecordCommitted(contract, eventType string) {
	if m == nil {
		return
	}
	m.committed.WithLabelValues(labelOrUnknown(contract), labelOrUnknown(eventType)).Inc()
}
