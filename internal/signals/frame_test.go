// SPDX-License-Identifier: MIT
package signals

import (
	"encoding/json"
	"testing"
	"time"

	"lumen/internal/analyzer"
	"lumen/internal/beat"
)

type fakeAudio struct{ snap analyzer.Snapshot }

func (f fakeAudio) Snapshot() analyzer.Snapshot { return f.snap }
func (f fakeAudio) RawSPL() float64             { return -42 }

type fakeTempo struct{ phase beat.Phase }

func (f fakeTempo) Phase() beat.Phase { return f.phase }

func TestCollect(t *testing.T) {
	audio := fakeAudio{analyzer.Snapshot{
		SPL:    0.75,
		Spec3:  []float64{0.1, 0.2, 0.3},
		Spec4:  []float64{0.1, 0.2, 0.3, 0.4},
		Spec12: make([]float64, 12),
	}}
	tempo := fakeTempo{beat.Phase{BPM: 120, TimeSignature: 4, BeatRaw: 0.5, DownbeatRaw: 0.375, BeatCount: 1.5, Beats: 7}}

	c := NewCollector(audio, tempo)
	c.now = func() time.Time { return time.Unix(0, 1234) }

	f := c.Collect()
	if f.Seq != 1 || f.Timestamp != 1234 {
		t.Errorf("header = %d/%d", f.Seq, f.Timestamp)
	}
	if f.SPL != 0.75 || f.RawSPL != -42 || len(f.Spec4) != 4 || len(f.Spec12) != 12 {
		t.Errorf("audio fields = %+v", f)
	}
	if f.BPM != 120 || f.BeatCount != 1.5 || f.Beats != 7 || f.TimeSignature != 4 {
		t.Errorf("tempo fields = %+v", f)
	}

	if next := c.Collect(); next.Seq != 2 {
		t.Errorf("second Seq = %d", next.Seq)
	}
}

func TestCollectNilSources(t *testing.T) {
	f := NewCollector(nil, nil).Collect()
	if f.Seq != 1 || f.SPL != 0 || f.Spec3 != nil || f.BPM != 0 {
		t.Errorf("Collect() = %+v", f)
	}
}

func TestFrameJSON(t *testing.T) {
	f := Frame{Seq: 3, Spec3: []float64{1, 2, 3}, BPM: 90, BeatRaw: 0.25}
	data, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"seq", "ts", "spl", "spl_raw", "spec3", "spec4", "spec12", "bpm", "time_signature", "beat_raw", "downbeat_raw", "beat_count", "beats"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
}
