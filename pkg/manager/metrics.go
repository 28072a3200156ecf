package manager

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics are per-manager collectors. Every collector carries the session id
// as a constant label so several managers can share one registry.
type metrics struct {
	statesExtracted      prometheus.Counter
	statesUnchanged      prometheus.Counter
	blobsStored          prometheus.Counter
	blobsDeduplicated    prometheus.Counter
	objectsConstructed   prometheus.Counter
	objectsUpdated       prometheus.Counter
	constructionFailures prometheus.Counter
	staleObjects         prometheus.Counter
	passDuration         *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, session string) (*metrics, error) {
	labels := prometheus.Labels{"session": session}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "graphstate",
			Subsystem:   "manager",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	m := &metrics{
		statesExtracted:      counter("states_extracted_total", "State records produced by extraction."),
		statesUnchanged:      counter("states_unchanged_total", "Extractions that reproduced the current record."),
		blobsStored:          counter("blobs_stored_total", "Distinct blobs added to the blob store."),
		blobsDeduplicated:    counter("blobs_deduplicated_total", "Blob writes satisfied by an existing blob."),
		objectsConstructed:   counter("objects_constructed_total", "Objects created by reconstruction."),
		objectsUpdated:       counter("objects_updated_total", "Existing objects updated from a changed record."),
		constructionFailures: counter("construction_failures_total", "Ids that failed reconstruction."),
		staleObjects:         counter("stale_objects_total", "Tracked objects found released."),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "graphstate",
			Subsystem:   "manager",
			Name:        "pass_duration_seconds",
			Help:        "Duration of extraction, reconstruction and export passes.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"pass"}),
	}
	if reg == nil {
		return m, nil
	}
	// Managers sharing a registry and a session count into one set of
	// collectors.
	counters := []*prometheus.Counter{
		&m.statesExtracted,
		&m.statesUnchanged,
		&m.blobsStored,
		&m.blobsDeduplicated,
		&m.objectsConstructed,
		&m.objectsUpdated,
		&m.constructionFailures,
		&m.staleObjects,
	}
	for _, c := range counters {
		shared, err := register(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = shared
	}
	hist, err := register(reg, m.passDuration)
	if err != nil {
		return nil, err
	}
	m.passDuration = hist
	return m, nil
}

// register registers c, or returns the equal collector already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *metrics) observePass(pass string, start time.Time) {
	m.passDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

func (m *metrics) blobWritten(added bool) {
	if added {
		m.blobsStored.Inc()
		return
	}
	m.blobsDeduplicated.Inc()
}
