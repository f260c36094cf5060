package events

import (
	"encoding/json"
	"fmt"
)

// Message is the body carried by the broadcast channel. Data holds the JSON
// encoded event and travels base64 encoded, the way pub/sub transports
// deliver opaque payloads.
type Message struct {
	Topic string `json:"topic"`
	Data  []byte `json:"data"`
}

// Encode wraps an event into a broadcast message for topic.
func Encode(topic string, ev Event) (Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	return Message{Topic: topic, Data: data}, nil
}

// Decode unwraps the event carried by m.
func (m Message) Decode() (Event, error) {
	if len(m.Data) == 0 {
		return Event{}, fmt.Errorf("message on %q has no data", m.Topic)
	}
	var ev Event
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode message on %q: %w", m.Topic, err)
	}
	return ev, nil
}
