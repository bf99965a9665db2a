package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/thermostat/internal/logic"
	"github.com/sweeney/thermostat/internal/port"
	"github.com/sweeney/thermostat/internal/state"
)

type recordingSink struct {
	relays    []bool
	occupancy []bool
}

func (r *recordingSink) OnTemperature(any, time.Time) {}
func (r *recordingSink) OnRelayState(on bool) { r.relays = append(r.relays, on) }
func (r *recordingSink) OnOccupancy(o bool) { r.occupancy = append(r.occupancy, o) }

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"0", false, false},
		{"on", true, false},
		{"OFF", false, false},
		{" true\n", true, false},
		{"false", false, false},
		{"", false, true},
		{"2", false, true},
		{"status", false, true},
	}

	for _, tc := range tests {
		got, err := ParseSwitch([]byte(tc.in))
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseSwitch(%q): err=%v, wantErr=%v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseSwitch(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRelayCommands(t *testing.T) {
	c := NewFakeClient()
	topics := DefaultTopics()
	r := NewRelay(c, topics)

	if err := r.SetRelay(true); err != nil {
		t.Fatalf("SetRelay(true): %v", err)
	}
	if err := r.SetRelay(false); err != nil {
		t.Fatalf("SetRelay(false): %v", err)
	}
	if err := r.RequestRelayState(); err != nil {
		t.Fatalf("RequestRelayState: %v", err)
	}

	msgs := c.Published(topics.RelayInput)
	want := []string{"on", "off", "status"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if string(m.Payload) != want[i] {
			t.Errorf("message %d: got %q, want %q", i, m.Payload, want[i])
		}
		if m.Retained {
			t.Errorf("message %d: relay commands must not be retained", i)
		}
	}
}

func TestRelayReports(t *testing.T) {
	c := NewFakeClient()
	topics := DefaultTopics()
	r := NewRelay(c, topics)
	sink := &recordingSink{}
	if err := r.Bind(sink); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	c.Deliver(topics.RelayOutput, []byte("1"))
	c.Deliver(topics.RelayOutput, []byte("garbage"))
	c.Deliver(topics.RelayOutput, []byte("0"))

	if len(sink.relays) != 2 || !sink.relays[0] || sink.relays[1] {
		t.Errorf("relay reports: got %v, want [true false]", sink.relays)
	}
}

func TestRelayPublishErrorIsTransportError(t *testing.T) {
	c := NewFakeClient()
	c.PublishError = errors.New("broken pipe")
	r := NewRelay(c, DefaultTopics())

	err := r.SetRelay(true)
	if !port.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, c.PublishError) {
		t.Error("TransportError should wrap the publish error")
	}
}

func TestRelayBindError(t *testing.T) {
	c := NewFakeClient()
	c.SubscribeError = errors.New("not authorised")
	if err := NewRelay(c, DefaultTopics()).Bind(&recordingSink{}); !port.IsTransport(err) {
		t.Errorf("expected TransportError, got %v", err)
	}
}

func TestOccupancy(t *testing.T) {
	c := NewFakeClient()
	o := NewOccupancy(c, "home/occupancy")
	sink := &recordingSink{}
	if err := o.Bind(sink); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	// Nothing known yet: request delivers nothing.
	if err := o.RequestOccupancy(); err != nil {
		t.Fatalf("RequestOccupancy: %v", err)
	}
	if len(sink.occupancy) != 0 {
		t.Fatalf("unexpected delivery before first report: %v", sink.occupancy)
	}

	c.Deliver("home/occupancy", []byte("false"))
	if err := o.RequestOccupancy(); err != nil {
		t.Fatalf("RequestOccupancy: %v", err)
	}
	if len(sink.occupancy) != 2 || sink.occupancy[0] || sink.occupancy[1] {
		t.Errorf("occupancy: got %v, want [false false]", sink.occupancy)
	}
}

func TestOccupancyDisconnected(t *testing.T) {
	c := NewFakeClient()
	c.Connected = false
	o := NewOccupancy(c, "home/occupancy")
	o.Bind(&recordingSink{})

	err := o.RequestOccupancy()
	if !errors.Is(err, ErrNotConnected) || !port.IsTransport(err) {
		t.Errorf("expected TransportError wrapping ErrNotConnected, got %v", err)
	}
}

func TestStatePublisher(t *testing.T) {
	c := NewFakeClient()
	p := NewStatePublisher(c, "home/heating/thermostat/state")

	snap := state.Snapshot{
		ID:                 "id-1",
		Relay:              logic.RelayOn,
		DesiredTemperature: 20,
		UpdatedAt:          time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC),
	}
	if err := p.PublishSnapshot(snap); err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}

	msgs := c.Published("home/heating/thermostat/state")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if !msgs[0].Retained || msgs[0].QoS != 1 {
		t.Errorf("expected retained QoS 1, got retained=%v qos=%d", msgs[0].Retained, msgs[0].QoS)
	}

	got, err := state.ParseJSON(msgs[0].Payload)
	if err != nil {
		t.Fatalf("payload does not parse: %v", err)
	}
	if got.ID != "id-1" || got.Relay != logic.RelayOn {
		t.Errorf("round trip: %+v", got)
	}
}

func TestStatePublisherError(t *testing.T) {
	c := NewFakeClient()
	c.PublishError = errors.New("offline")
	if err := NewStatePublisher(c, "x").PublishSnapshot(state.Snapshot{}); err == nil {
		t.Error("expected error")
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	got, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 1, 5, 7, 0, 0, 0, time.FixedZone("CET", 3600)),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"system":{"timestamp":"2026-01-05T06:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(got) != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestWillPayloadOmitsTimestamp(t *testing.T) {
	got, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]map[string]string
	if err := json.Unmarshal(got, &parsed); err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed["system"]["timestamp"]; ok {
		t.Error("will payload should not carry a timestamp")
	}
	if parsed["system"]["event"] != "OFFLINE" {
		t.Errorf("event: %q", parsed["system"]["event"])
	}
}

func TestPublishSystem(t *testing.T) {
	c := NewFakeClient()
	if err := PublishSystem(c, "sys", SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}); err != nil {
		t.Fatal(err)
	}
	msgs := c.Published("sys")
	if len(msgs) != 1 || !msgs[0].Retained || msgs[0].QoS != 1 {
		t.Errorf("unexpected system publish: %+v", msgs)
	}
}

func TestFakeClientReset(t *testing.T) {
	c := NewFakeClient()
	c.Publish("a", 0, false, []byte("x"))
	c.PublishError = errors.New("e")
	c.Reset()
	if len(c.Messages) != 0 || c.PublishError != nil {
		t.Error("Reset did not clear state")
	}
	if c.Deliver("a", nil) {
		t.Error("Deliver without a subscription should report false")
	}
}
