package display

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
	"github.com/relabs-tech/stroke_classifier/internal/presentation"
)

// Intent kinds.
const (
	IntentCounters = "counters"
	IntentFlash    = "flash"
	IntentIdle     = "idle"
	IntentIntro    = "intro"
)

// Intent is one render request as published on the display topic, so a
// remote screen can mirror the device.
type Intent struct {
	Kind     string             `json:"kind"`
	Counters *pipeline.Snapshot `json:"counters,omitempty"`
	Category string             `json:"category,omitempty"`
	Message  string             `json:"message,omitempty"`
	Phase    int                `json:"phase,omitempty"`
	Frame    int                `json:"frame,omitempty"`
}

// DecodeIntent parses a display topic payload.
func DecodeIntent(payload []byte) (Intent, error) {
	var in Intent
	if err := json.Unmarshal(payload, &in); err != nil {
		return Intent{}, fmt.Errorf("display intent: %w", err)
	}
	switch in.Kind {
	case IntentCounters:
		if in.Counters == nil {
			return Intent{}, fmt.Errorf("display intent: counters missing")
		}
	case IntentFlash, IntentIdle, IntentIntro:
	default:
		return Intent{}, fmt.Errorf("display intent: unknown kind %q", in.Kind)
	}
	return in, nil
}

// Apply replays an intent on r.
func (in Intent) Apply(r presentation.Renderer) {
	switch in.Kind {
	case IntentCounters:
		r.RenderCounters(*in.Counters)
	case IntentFlash:
		r.RenderFlash(in.Category, in.Message)
	case IntentIdle:
		r.RenderIdle(in.Phase)
	case IntentIntro:
		r.RenderIntro(in.Frame)
	}
}

// MQTT publishes every render request as a retained Intent.
type MQTT struct {
	client mqtt.Client
	topic  string
}

// NewMQTT publishes on topic through an already connected client.
func NewMQTT(client mqtt.Client, topic string) *MQTT {
	return &MQTT{client: client, topic: topic}
}

func (m *MQTT) publish(in Intent) {
	payload, err := json.Marshal(in)
	if err != nil {
		log.Printf("display: intent marshal error: %v", err)
		return
	}
	// The control loop never waits on the broker.
	token := m.client.Publish(m.topic, 0, true, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("display: MQTT publish error on %s: %v", m.topic, token.Error())
		}
	}()
}

func (m *MQTT) RenderCounters(snap pipeline.Snapshot) {
	m.publish(Intent{Kind: IntentCounters, Counters: &snap})
}

func (m *MQTT) RenderFlash(category, message string) {
	m.publish(Intent{Kind: IntentFlash, Category: category, Message: message})
}

func (m *MQTT) RenderIdle(phase int) {
	m.publish(Intent{Kind: IntentIdle, Phase: phase})
}

func (m *MQTT) RenderIntro(frame int) {
	m.publish(Intent{Kind: IntentIntro, Frame: frame})
}
