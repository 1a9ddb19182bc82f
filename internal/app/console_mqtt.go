package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stroke_classifier/internal/capture"
	"github.com/relabs-tech/stroke_classifier/internal/config"
	"github.com/relabs-tech/stroke_classifier/internal/display"
	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
)

// RunConsoleMQTT prints strokes, counters, display intents and capture
// records from the broker until ctx is cancelled.
func RunConsoleMQTT(ctx context.Context) error {
	cfg := config.Get()

	client, err := connectMQTT("console", cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	screen := display.NewConsole(os.Stdout)

	// Subscribe to stroke events
	err = subscribe(client, "console", cfg.TopicStrokes, func(_ mqtt.Client, msg mqtt.Message) {
		var ev StrokeEvent
		if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
			log.Printf("console: stroke unmarshal error: %v", err)
			return
		}
		fmt.Printf("[STROKE] %s %-8s conf=%.2f sample=%d latency=%.2fms total=%d\n",
			ev.Time.Format("15:04:05.000"), ev.Category, ev.Confidence, ev.Sample, ev.LatencyMS, ev.Total)
	})
	if err != nil {
		return err
	}

	// Subscribe to counters
	err = subscribe(client, "console", cfg.TopicCounters, func(_ mqtt.Client, msg mqtt.Message) {
		var snap pipeline.Snapshot
		if err := json.Unmarshal(msg.Payload(), &snap); err != nil {
			log.Printf("console: counters unmarshal error: %v", err)
			return
		}
		screen.RenderCounters(snap)
	})
	if err != nil {
		return err
	}

	// Subscribe to display intents
	err = subscribe(client, "console", cfg.TopicDisplay, func(_ mqtt.Client, msg mqtt.Message) {
		in, err := display.DecodeIntent(msg.Payload())
		if err != nil {
			log.Printf("console: %v", err)
			return
		}
		fmt.Print("[SCREEN] ")
		in.Apply(screen)
	})
	if err != nil {
		return err
	}

	// Subscribe to capture records
	err = subscribe(client, "console", cfg.TopicCapture, func(_ mqtt.Client, msg mqtt.Message) {
		rec, err := capture.DecodeRecord(msg.Payload())
		if err != nil {
			log.Printf("console: %v", err)
			return
		}
		fmt.Printf("[CAPTURE] #%d %s %d samples, peak |a|=%.2fg\n",
			rec.Seq, rec.Label, len(rec.Samples), peakAccel(rec))
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	log.Println("console: shutting down")
	return nil
}

// peakAccel returns the largest acceleration magnitude in a record, in g.
func peakAccel(rec capture.Record) float64 {
	var peak float64
	for _, s := range rec.Samples {
		if n := s.AccelNormSq(); n > peak {
			peak = n
		}
	}
	return math.Sqrt(peak)
}
