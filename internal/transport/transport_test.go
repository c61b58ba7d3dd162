// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lumen/internal/params"
	"lumen/internal/signals"
	"lumen/pkg/utils"
)

func ptr(v float64) *float64 { return &v }

func TestApplyControl(t *testing.T) {
	tests := []struct {
		name    string
		msg     ControlMessage
		wantErr error
		check   func(*testing.T, *params.Store)
	}{
		{
			name: "tap",
			msg:  ControlMessage{Type: TypeTap},
			check: func(t *testing.T, s *params.Store) {
				if !s.ReadAndClear(params.TriggerTap) {
					t.Error("tap trigger not raised")
				}
			},
		},
		{
			name: "set one",
			msg:  ControlMessage{Type: TypeSet, Name: params.BPM, Value: ptr(128)},
			check: func(t *testing.T, s *params.Store) {
				if got := s.Tempo().BPM; got != 128 {
					t.Errorf("bpm = %v", got)
				}
			},
		},
		{
			name: "set clamps",
			msg:  ControlMessage{Type: TypeSet, Name: params.DBRange, Value: ptr(1000)},
			check: func(t *testing.T, s *params.Store) {
				if got := s.Normalization().Range; got != 36 {
					t.Errorf("db_range = %v", got)
				}
			},
		},
		{
			name: "set many",
			msg:  ControlMessage{Type: TypeSet, Values: map[string]float64{params.DBRange: 12, params.DBBaseline: 0.25}},
			check: func(t *testing.T, s *params.Store) {
				if n := s.Normalization(); n.Range != 12 || n.Baseline != 0.25 {
					t.Errorf("normalization = %+v", n)
				}
			},
		},
		{name: "unknown param", msg: ControlMessage{Type: TypeSet, Name: "nope", Value: ptr(1)}, wantErr: params.ErrUnknownParam},
		{name: "set without value", msg: ControlMessage{Type: TypeSet, Name: params.BPM}, wantErr: ErrBadControl},
		{name: "unknown type", msg: ControlMessage{Type: "dance"}, wantErr: ErrBadControl},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := params.NewStore()
			err := ApplyControl(store, tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ApplyControl() error = %v, want %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, store)
			}
		})
	}
}

type scriptedSource struct {
	beats []uint64
	i     int
}

func (s *scriptedSource) Collect() signals.Frame {
	f := signals.Frame{Seq: uint32(s.i + 1), Beats: s.beats[s.i]}
	if s.i < len(s.beats)-1 {
		s.i++
	}
	return f
}

func TestPublisherBeatEvents(t *testing.T) {
	rec := &utils.MockTransport{}
	src := &scriptedSource{beats: []uint64{5, 5, 6, 6, 7}}
	p, err := NewPublisher(time.Hour, src, rec)
	if err != nil {
		t.Fatal(err)
	}

	for range 5 {
		p.Publish()
	}

	var frames, events int
	for _, m := range rec.Messages() {
		switch m := m.(type) {
		case FrameMessage:
			frames++
			if m.Type != TypeFrame {
				t.Errorf("frame type = %q", m.Type)
			}
		case Event:
			events++
			if m.Name != EventBeat {
				t.Errorf("event name = %q", m.Name)
			}
		}
	}
	// The first frame only primes the counter.
	if frames != 5 || events != 2 {
		t.Errorf("frames=%d events=%d, want 5 and 2", frames, events)
	}
}

func TestPublisherStartStop(t *testing.T) {
	rec := &utils.MockTransport{}
	p, err := NewPublisher(time.Millisecond, signals.NewCollector(nil, nil), rec)
	if err != nil {
		t.Fatal(err)
	}

	p.Start()
	p.Start() // no-op
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.Messages()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if len(rec.Messages()) < 3 {
		t.Errorf("published %d messages", len(rec.Messages()))
	}
	if !rec.Closed() {
		t.Error("transport not closed")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestNewPublisherRejectsNilSource(t *testing.T) {
	if _, err := NewPublisher(time.Second, nil); err == nil {
		t.Error("expected error for nil source")
	}
}

func TestMessageJSON(t *testing.T) {
	data, err := json.Marshal(NewFrameMessage(signals.Frame{Seq: 9, BPM: 100}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"frame"`) || !strings.Contains(string(data), `"seq":9`) {
		t.Errorf("frame JSON = %s", data)
	}

	data, err = json.Marshal(NewBeatEvent(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"type":"event","name":"beat"`) {
		t.Errorf("event JSON = %s", data)
	}
}

func dialTest(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(wst.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketSchemaAndControl(t *testing.T) {
	store := params.NewStore()
	wst := NewWebSocketTransport("", store)
	t.Cleanup(func() { wst.Close() })
	conn := dialTest(t, wst)

	var schema SchemaMessage
	if err := conn.ReadJSON(&schema); err != nil {
		t.Fatal(err)
	}
	if schema.Type != TypeSchema || len(schema.Params) != len(params.Declared()) {
		t.Errorf("schema = %+v", schema)
	}
	if len(schema.Triggers) != 1 || schema.Triggers[0] != params.TriggerTap {
		t.Errorf("triggers = %v", schema.Triggers)
	}

	// Malformed input is skipped without dropping the connection.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(ControlMessage{Type: TypeTap}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tap", func() bool { return store.ReadAndClear(params.TriggerTap) })

	if err := conn.WriteJSON(ControlMessage{Type: TypeSet, Name: params.BPM, Value: ptr(140)}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "bpm", func() bool { return store.Tempo().BPM == 140 })
}

func TestWebSocketBroadcast(t *testing.T) {
	wst := NewWebSocketTransport("", params.NewStore())
	t.Cleanup(func() { wst.Close() })
	conn := dialTest(t, wst)

	var schema SchemaMessage
	if err := conn.ReadJSON(&schema); err != nil {
		t.Fatal(err)
	}

	if err := wst.Send(NewFrameMessage(signals.Frame{Seq: 3, Spec3: []float64{0.1, 0.2, 0.3}})); err != nil {
		t.Fatal(err)
	}
	if err := wst.Send(NewBeatEvent(10, 1)); err != nil {
		t.Fatal(err)
	}

	var frame FrameMessage
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatal(err)
	}
	if frame.Type != TypeFrame || frame.Seq != 3 || len(frame.Spec3) != 3 {
		t.Errorf("frame = %+v", frame)
	}

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != TypeEvent || ev.Name != EventBeat || ev.Count != 1 {
		t.Errorf("event = %+v", ev)
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst := NewWebSocketTransport("", nil)
	t.Cleanup(func() { wst.Close() })
	conn := dialTest(t, wst)

	waitFor(t, "client registration", func() bool { return wst.Clients() == 1 })
	conn.Close()
	waitFor(t, "client removal", func() bool { return wst.Clients() == 0 })
}

func TestWebSocketStartAndClose(t *testing.T) {
	wst := NewWebSocketTransport("127.0.0.1:0", nil)
	if err := wst.Start(); err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
