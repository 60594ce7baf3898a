package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authlife"
)

func TestCounterDefsUniqueAndNamespaced(t *testing.T) {
	names := map[string]bool{}
	ids := map[authlife.MetricID]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "authlife_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate definition %q", def.Name)
		}
		names[def.Name] = true
		ids[def.ID] = true
	}
	for _, def := range HistogramDefs {
		if ids[def.ID] {
			t.Fatalf("histogram %q reuses a counter id", def.Name)
		}
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundLabels) {
		t.Fatal("bounds and labels disagree")
	}
}
