package metrics

import (
	"strings"
	"testing"

	"tracktweak/internal/meter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	stats meter.Stats
}

func (f *fakeSource) ID() string                  { return "m-1" }
func (f *fakeSource) Stats() meter.Stats          { return f.stats }
func (f *fakeSource) Level() float64              { return 0.5 }
func (f *fakeSource) MomentaryLoudness() float64  { return -20 }
func (f *fakeSource) ShortTermLoudness() float64  { return -23 }
func (f *fakeSource) IntegratedLoudness() float64 { return -23 }

func TestRegister(t *testing.T) {
	src := &fakeSource{stats: meter.Stats{Blocks: 10, FramesCompleted: 3, FramesDropped: 1, Transforms: 2}}
	reg := prometheus.NewRegistry()
	if err := Register(reg, src); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP tracktweak_meter_blocks_total Audio blocks processed
# TYPE tracktweak_meter_blocks_total counter
tracktweak_meter_blocks_total{meter_id="m-1"} 10
# HELP tracktweak_meter_frames_dropped_total Analysis frames discarded while another was pending
# TYPE tracktweak_meter_frames_dropped_total counter
tracktweak_meter_frames_dropped_total{meter_id="m-1"} 1
# HELP tracktweak_meter_short_term_lufs Short-term loudness (3 s)
# TYPE tracktweak_meter_short_term_lufs gauge
tracktweak_meter_short_term_lufs{meter_id="m-1"} -23
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"tracktweak_meter_blocks_total",
		"tracktweak_meter_frames_dropped_total",
		"tracktweak_meter_short_term_lufs")
	if err != nil {
		t.Error(err)
	}

	// Values are read at scrape time.
	src.stats.Blocks = 11
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 9 {
		t.Errorf("GatherAndCount = %d, %v; want 9", n, err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() == "tracktweak_meter_blocks_total" {
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 11 {
				t.Errorf("blocks after update = %v, want 11", got)
			}
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSource{}
	if err := Register(reg, src); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(reg, src); err == nil {
		t.Error("second Register of the same meter succeeded")
	}
}

func TestRegister_RealMeter(t *testing.T) {
	m, err := meter.New(meter.DefaultOptions())
	if err != nil {
		t.Fatalf("meter.New: %v", err)
	}
	m.ProcessBlock([][]float32{make([]float32, 512)})

	reg := prometheus.NewRegistry()
	if err := Register(reg, m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 9 {
		t.Errorf("GatherAndCount = %d, %v; want 9", n, err)
	}
}
