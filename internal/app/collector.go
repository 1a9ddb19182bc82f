package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stroke_classifier/internal/capture"
	"github.com/relabs-tech/stroke_classifier/internal/config"
)

// openRelay opens the relay named by CAPTURE_RELAY. The MQTT client is
// returned so the caller can disconnect it.
func openRelay(cfg *config.Config) (capture.Relay, mqtt.Client, error) {
	switch cfg.CaptureRelay {
	case "mqtt":
		client, err := connectMQTT("collector", cfg.MQTTBroker, cfg.MQTTClientIDCollector)
		if err != nil {
			return nil, nil, err
		}
		return capture.NewMQTTRelay(client, cfg.TopicCapture), client, nil
	case "serial":
		r, err := capture.OpenSerialRelay(cfg.CaptureSerialPort, cfg.CaptureSerialBaud)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	case "file":
		r, err := capture.OpenFileRelay(cfg.CaptureFile)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown capture relay %q", cfg.CaptureRelay)
	}
}

// RunCollector samples the IMU and relays a labelled record around every
// impact, for building training data. It does not classify.
func RunCollector(ctx context.Context) error {
	cfg := config.Get()

	capturer, err := capture.NewCapturer(capture.Config{
		PreSamples:  cfg.CapturePreSamples,
		PostSamples: cfg.CapturePostSamples,
		TriggerG:    cfg.CaptureTriggerG,
		Cooldown:    config.Millis(cfg.CaptureCooldown),
		Label:       cfg.CaptureLabel,
		Interval:    cfg.SampleInterval(),
	})
	if err != nil {
		return err
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	relay, client, err := openRelay(cfg)
	if err != nil {
		return err
	}
	defer relay.Close()
	if client != nil {
		defer client.Disconnect(250)
	}

	log.Printf("collector: label %q, %d+%d samples per record, trigger %.1fg, cooldown %dms, relay %s",
		cfg.CaptureLabel, cfg.CapturePreSamples, cfg.CapturePostSamples, cfg.CaptureTriggerG, cfg.CaptureCooldown, cfg.CaptureRelay)

	ticker := time.NewTicker(cfg.SampleInterval())
	defer ticker.Stop()
	unavail := rateLimiter{interval: time.Second}

	for {
		select {
		case <-ctx.Done():
			log.Printf("collector: shutting down after %d records", capturer.Seq())
			return nil
		case now := <-ticker.C:
			s, err := src.Next()
			if errors.Is(err, io.EOF) {
				log.Printf("collector: replay finished after %d records", capturer.Seq())
				return nil
			}
			if err != nil {
				if ok, dropped := unavail.allow(now); ok {
					log.Printf("collector: sensor unavailable (%d more suppressed): %v", dropped, err)
				}
				continue
			}
			rec, ok := capturer.Push(now, s)
			if !ok {
				continue
			}
			if err := relay.Send(rec); err != nil {
				log.Printf("collector: %v", err)
				continue
			}
			log.Printf("collector: record %d (%s, %d samples) sent", rec.Seq, rec.Label, len(rec.Samples))
		}
	}
}
