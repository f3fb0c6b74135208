// Package metrics counts what the processes of a run did.
package metrics

import (
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds the metrics of every process sharing it. Processes are
// told apart by their group and global rank labels.
type Registry struct {
	reg          *prometheus.Registry
	blocks       *prometheus.CounterVec
	wins         *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	replacements *prometheus.CounterVec
	length       *prometheus.GaugeVec
}

var labels = []string{"group", "rank"}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multichain_blocks_appended_total",
			Help: "Blocks appended to the local ledger.",
		}, labels),
		wins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multichain_blocks_won_total",
			Help: "Rounds won by the local miner.",
		}, labels),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multichain_nonce_attempts_total",
			Help: "Nonces tested by the local miner.",
		}, labels),
		replacements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "multichain_ledger_replacements_total",
			Help: "Times the local ledger was replaced by reconciliation.",
		}, labels),
		length: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "multichain_chain_length",
			Help: "Length of the local ledger.",
		}, labels),
	}
	r.reg.MustRegister(r.blocks, r.wins, r.attempts, r.replacements, r.length)
	return r
}

// Gatherer exposes the underlying registry, e.g. to an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// For returns the recorder of one process.
func (r *Registry) For(group int, rank int) *Recorder {
	l := prometheus.Labels{"group": strconv.Itoa(group), "rank": strconv.Itoa(rank)}
	return &Recorder{
		blocks:       r.blocks.With(l),
		wins:         r.wins.With(l),
		attempts:     r.attempts.With(l),
		replacements: r.replacements.With(l),
		length:       r.length.With(l),
	}
}

// Write writes every metric in the Prometheus text format.
func (r *Registry) Write(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Recorder updates the metrics of one process. A nil Recorder records
// nothing.
type Recorder struct {
	blocks       prometheus.Counter
	wins         prometheus.Counter
	attempts     prometheus.Counter
	replacements prometheus.Counter
	length       prometheus.Gauge
}

// BlockAppended records a block appended at the given chain length.
func (r *Recorder) BlockAppended(length int, won bool, attempts uint64) {
	if r == nil {
		return
	}
	r.blocks.Inc()
	if won {
		r.wins.Inc()
	}
	r.attempts.Add(float64(attempts))
	r.length.Set(float64(length))
}

func (r *Recorder) Reconciled(length int, replaced bool) {
	if r == nil {
		return
	}
	if replaced {
		r.replacements.Inc()
	}
	r.length.Set(float64(length))
}
