package report

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"

	"hidreader/queue"
	"hidreader/wiegand"
)

// Publisher sends a payload to a topic. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Event kinds, also used as the last topic segment.
const (
	KindFrame    = "frame"
	KindCard     = "card"
	KindRejected = "rejected"
)

// Event is the payload published for each record.
type Event struct {
	Kind         string  `json:"kind" cbor:"kind"`
	FrameID      string  `json:"frame_id" cbor:"frame_id"`
	Data         string  `json:"data" cbor:"data"`
	Timestamp    int64   `json:"timestamp" cbor:"timestamp"`
	FacilityCode *uint8  `json:"facility_code,omitempty" cbor:"facility_code,omitempty"`
	CardCode     *uint16 `json:"card_code,omitempty" cbor:"card_code,omitempty"`
	Reason       string  `json:"reason,omitempty" cbor:"reason,omitempty"`
	Error        string  `json:"error,omitempty" cbor:"error,omitempty"`
}

// Encoder marshals an Event into a payload.
type Encoder func(Event) ([]byte, error)

// NewEncoder returns the encoder for format: "json" (or empty) or "cbor".
func NewEncoder(format string) (Encoder, error) {
	switch format {
	case "", "json":
		return func(e Event) ([]byte, error) { return json.Marshal(e) }, nil
	case "cbor":
		return func(e Event) ([]byte, error) { return cbor.Marshal(e) }, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// MQTT publishes each record as an Event under
// hidreader/status/node/<client_id>/<kind>.
type MQTT struct {
	pub      Publisher
	clientID string
	encode   Encoder
	logger   *slog.Logger
}

// NewMQTT creates an MQTT reporter.
func NewMQTT(pub Publisher, clientID string, encode Encoder, logger *slog.Logger) *MQTT {
	return &MQTT{pub: pub, clientID: clientID, encode: encode, logger: logger}
}

// Topic returns the topic events of kind are published to.
func (m *MQTT) Topic(kind string) string {
	return fmt.Sprintf("hidreader/status/node/%s/%s", m.clientID, kind)
}

// FrameRead implements Reporter.FrameRead.
func (m *MQTT) FrameRead(f queue.Frame) {
	m.publish(newEvent(KindFrame, f))
}

// Decoded implements Reporter.Decoded.
func (m *MQTT) Decoded(f queue.Frame, card wiegand.Card) {
	e := newEvent(KindCard, f)
	fc, cc := card.FacilityCode, card.CardCode
	e.FacilityCode = &fc
	e.CardCode = &cc
	m.publish(e)
}

// Rejected implements Reporter.Rejected.
func (m *MQTT) Rejected(f queue.Frame, err error) {
	e := newEvent(KindRejected, f)
	e.Reason = wiegand.Reason(err)
	if err != nil {
		e.Error = err.Error()
	}
	m.publish(e)
}

func (m *MQTT) publish(e Event) {
	payload, err := m.encode(e)
	if err != nil {
		m.logger.Error("encode event", "kind", e.Kind, "frame_id", e.FrameID, "error", err)
		return
	}
	m.pub.Publish(m.Topic(e.Kind), payload)
}

func newEvent(kind string, f queue.Frame) Event {
	return Event{
		Kind:      kind,
		FrameID:   f.ID.String(),
		Data:      f.Data,
		Timestamp: f.ReadAt.Unix(),
	}
}
