package manager

import (
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/odvcencio/graphstate/pkg/scene"
)

func TestMetricsCountBlobsAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := scene.Sample()
	m := snapshot(t, w, WithMetrics(reg), WithSession("metrics-test"))

	if got := testutil.ToFloat64(m.metrics.blobsStored); got != 1 {
		t.Fatalf("blobs stored = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.metrics.blobsDeduplicated); got != 1 {
		t.Fatalf("blobs deduplicated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.metrics.statesExtracted); got != 10 {
		t.Fatalf("states extracted = %v, want 10", got)
	}

	w.Modified()
	if err := m.UpdateStatesFromObjects(); err != nil {
		t.Fatalf("UpdateStatesFromObjects: %v", err)
	}
	if got := testutil.ToFloat64(m.metrics.statesUnchanged); got != 1 {
		t.Fatalf("states unchanged = %v, want 1", got)
	}

	expected := `
# HELP graphstate_manager_blobs_stored_total Distinct blobs added to the blob store.
# TYPE graphstate_manager_blobs_stored_total counter
graphstate_manager_blobs_stored_total{session="metrics-test"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "graphstate_manager_blobs_stored_total"); err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}
	runtime.KeepAlive(w)
}

func TestMetricsShareRegistryAcrossSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	newTestManager(t, WithMetrics(reg), WithSession("a"))
	newTestManager(t, WithMetrics(reg), WithSession("b"))

	n, err := testutil.GatherAndCount(reg, "graphstate_manager_states_extracted_total")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("series = %d, want one per session", n)
	}
}

func TestMetricsSharedWithinSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	w1, w2 := scene.Sample(), scene.Sample()
	a := snapshot(t, w1, WithMetrics(reg), WithSession("shared"))
	b := snapshot(t, w2, WithMetrics(reg), WithSession("shared"))
	if a.metrics.blobsStored != b.metrics.blobsStored {
		t.Fatal("managers in one session registered separate collectors")
	}

	expected := `
# HELP graphstate_manager_blobs_stored_total Distinct blobs added to the blob store.
# TYPE graphstate_manager_blobs_stored_total counter
graphstate_manager_blobs_stored_total{session="shared"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "graphstate_manager_blobs_stored_total"); err != nil {
		t.Fatalf("GatherAndCompare: %v", err)
	}
	runtime.KeepAlive(w1)
	runtime.KeepAlive(w2)
}

func TestConstructionFailuresAreCounted(t *testing.T) {
	m := newTestManager(t)
	registerStates(t, m, nodeRecord(1, "root", 2), nodeRecord(2, "boom", 0))
	if _, err := m.UpdateObjectsFromStates(); err == nil {
		t.Fatal("expected an error")
	}
	if got := testutil.ToFloat64(m.metrics.constructionFailures); got != 2 {
		t.Fatalf("construction failures = %v, want 2", got)
	}
}
