package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// StrokeEvent is published on TOPIC_STROKES for every accepted stroke.
type StrokeEvent struct {
	Time       time.Time `json:"time"`
	Category   string    `json:"category"`
	Label      int       `json:"label"`
	Confidence float64   `json:"confidence"`
	Sample     uint64    `json:"sample"`
	LatencyMS  float64   `json:"latency_ms"`
	Total      uint64    `json:"total"`
}

// connectMQTT connects to the broker and blocks until the connection is up.
func connectMQTT(component, broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%s: MQTT connect to %s: %w", component, broker, token.Error())
	}
	log.Printf("%s: connected to MQTT broker at %s", component, broker)
	return client, nil
}

// publishJSON marshals v and publishes it without blocking the caller.
func publishJSON(client mqtt.Client, component, topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("%s: marshal error for %s: %v", component, topic, err)
		return
	}
	token := client.Publish(topic, 0, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("%s: MQTT publish error on %s: %v", component, topic, token.Error())
		}
	}()
}

// subscribe registers handler on topic and waits for the broker ack.
func subscribe(client mqtt.Client, component, topic string, handler mqtt.MessageHandler) error {
	token := client.Subscribe(topic, 0, handler)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("%s: subscribe %s: %w", component, topic, token.Error())
	}
	log.Printf("%s: subscribed to %s", component, topic)
	return nil
}
