// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stroke_classifier/internal/classify"
	"github.com/relabs-tech/stroke_classifier/internal/config"
	"github.com/relabs-tech/stroke_classifier/internal/display"
	"github.com/relabs-tech/stroke_classifier/internal/imu"
	"github.com/relabs-tech/stroke_classifier/internal/journal"
	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
	"github.com/relabs-tech/stroke_classifier/internal/presentation"
)

// statsInterval is how often the run loop logs pipeline diagnostics.
const statsInterval = time.Minute

// journalQueue is how many accepted strokes may wait for the database.
const journalQueue = 64

// acceptHook is called for every accepted stroke, on the loop goroutine.
type acceptHook func(now time.Time, out pipeline.Outcome, snap pipeline.Snapshot)

// strokeLoop is the body of the control loop: one sensor read per tick,
// pipeline ingest, then presentation. Everything here is confined to the
// goroutine that calls tick.
type strokeLoop struct {
	src     imu.Source
	pipe    *pipeline.Pipeline
	machine *presentation.Machine
	hooks   []acceptHook
	snap    pipeline.Snapshot
	skipped uint64
	unavail rateLimiter
	started bool
}

func newStrokeLoop(src imu.Source, p *pipeline.Pipeline, m *presentation.Machine, hooks ...acceptHook) *strokeLoop {
	return &strokeLoop{
		src:     src,
		pipe:    p,
		machine: m,
		hooks:   hooks,
		snap:    p.Snapshot(),
		unavail: rateLimiter{interval: time.Second},
	}
}

// tick runs one sampling period. It returns io.EOF once a finite source is
// exhausted; every other sensor error only skips the tick.
func (l *strokeLoop) tick(now time.Time) error {
	if !l.started {
		l.machine.Start(now, l.snap)
		l.started = true
	}

	s, err := l.src.Next()
	switch {
	case errors.Is(err, io.EOF):
		return io.EOF
	case err != nil:
		l.skipped++
		if ok, dropped := l.unavail.allow(now); ok {
			log.Printf("classifier: sensor unavailable, skipping tick (%d more suppressed): %v", dropped, err)
		}
	default:
		if out, ok := l.pipe.Ingest(s); ok && out.Decision.Accept {
			l.snap = l.pipe.Snapshot()
			for _, h := range l.hooks {
				h(now, out, l.snap)
			}
			l.machine.Accept(now, out.Category)
		}
	}

	l.machine.Update(now, l.snap)
	return nil
}

// journalHook hands accepted strokes to the journal writer. It never waits
// on the database; strokes that find the queue full are dropped.
func journalHook(w *journal.Writer, session int64) acceptHook {
	full := rateLimiter{interval: time.Second}
	return func(now time.Time, out pipeline.Outcome, snap pipeline.Snapshot) {
		ok := w.Enqueue(journal.Entry{
			SessionID:  session,
			At:         now,
			Category:   out.Category,
			Confidence: out.Result.Confidence,
			Sample:     out.Sample,
			Latency:    out.Latency,
		})
		if ok {
			return
		}
		if logNow, dropped := full.allow(now); logNow {
			log.Printf("classifier: journal queue full, stroke not journaled (%d more dropped, %d total)", dropped, w.Dropped())
		}
	}
}

func (l *strokeLoop) logStats() {
	st := l.pipe.Stats()
	log.Printf("classifier: %d samples, %d skipped, %d classifications, %d accepted, rejects: failure=%d low-confidence=%d idle=%d unknown=%d implausible=%d, max latency %v (%d over budget)",
		st.Samples, l.skipped, st.Classifications, st.Accepted(),
		st.ByReason[pipeline.ReasonClassifierFailure],
		st.ByReason[pipeline.ReasonLowConfidence],
		st.ByReason[pipeline.ReasonIdleLabel],
		st.ByReason[pipeline.ReasonUnknownLabel],
		st.ByReason[pipeline.ReasonImplausible],
		st.MaxLatency, st.OverBudget)
}

// pipelineConfig maps the process configuration onto the pipeline.
func pipelineConfig(cfg *config.Config, labels classify.Labels) pipeline.Config {
	return pipeline.Config{
		Window:              cfg.WindowSamples,
		Hop:                 cfg.HopSamples,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		PlausibilityG:       cfg.PlausibilityG,
		Labels:              labels,
		ClassifierBudget:    config.Millis(cfg.ClassifierBudgetMS),
	}
}

// presentationTiming maps the presentation keys onto the state machine.
func presentationTiming(cfg *config.Config) presentation.Timing {
	return presentation.Timing{
		IntroFrames:        cfg.IntroFrames,
		IntroFrameInterval: config.Millis(cfg.IntroFrameInterval),
		RedrawInterval:     config.Millis(cfg.RedrawInterval),
		IdleRedrawInterval: config.Millis(cfg.IdleRedrawInterval),
		FlashDuration:      config.Millis(cfg.FlashDuration),
		IdleTimeout:        config.Millis(cfg.IdleTimeout),
	}
}

// hardwareRenderer is a renderer holding a device that must be released.
type hardwareRenderer interface {
	presentation.Renderer
	Close() error
}

// openOLED opens the SSD1306 on the named I²C bus.
var openOLED = func(bus string) (hardwareRenderer, error) {
	o, err := display.NewOLED(bus)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// buildRenderers opens every output in DISPLAY_OUTPUTS. The returned closer
// releases hardware. On error everything opened so far is already released.
func buildRenderers(cfg *config.Config, client mqtt.Client) (display.Multi, func(), error) {
	var (
		out      display.Multi
		hardware []hardwareRenderer
	)
	closer := func() {
		for _, h := range hardware {
			if err := h.Close(); err != nil {
				log.Printf("display: close error: %v", err)
			}
		}
	}
	fail := func(err error) (display.Multi, func(), error) {
		closer()
		return nil, func() {}, err
	}

	for _, name := range cfg.DisplayOutputs {
		switch name {
		case "oled":
			oled, err := openOLED(cfg.DisplayI2CBus)
			if err != nil {
				return fail(err)
			}
			hardware = append(hardware, oled)
			out = append(out, oled)
		case "console":
			out = append(out, display.NewConsole(os.Stdout))
		case "mqtt":
			if client == nil {
				return fail(fmt.Errorf("display output mqtt needs an MQTT connection"))
			}
			out = append(out, display.NewMQTT(client, cfg.TopicDisplay))
		}
	}
	return out, closer, nil
}

// RunClassifier runs the stroke classifier until ctx is cancelled or a
// replayed recording ends.
func RunClassifier(ctx context.Context) error {
	cfg := config.Get()

	labels, err := classify.ParseLabels(cfg.Labels, cfg.IdleLabel)
	if err != nil {
		return err
	}
	model, err := classify.NewSpectral(cfg.WindowSamples, labels, classify.DefaultPrototypes)
	if err != nil {
		return err
	}
	pipe, err := pipeline.New(pipelineConfig(cfg, labels), model)
	if err != nil {
		return err
	}
	log.Printf("classifier: window %d samples, hop %d, threshold %.2f, plausibility %.1fg, labels %v (idle %q)",
		cfg.WindowSamples, cfg.HopSamples, cfg.ConfidenceThreshold, cfg.PlausibilityG, labels.Names, cfg.IdleLabel)

	messages := presentation.DefaultMessages()
	if cfg.MessagesFile != "" {
		if messages, err = presentation.LoadMessages(cfg.MessagesFile); err != nil {
			return err
		}
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}

	var client mqtt.Client
	if cfg.MQTTBroker != "" {
		client, err = connectMQTT("classifier", cfg.MQTTBroker, cfg.MQTTClientIDClassifier)
		if err != nil {
			if cfg.HasDisplayOutput("mqtt") {
				return err
			}
			log.Printf("classifier: continuing without MQTT: %v", err)
		} else {
			defer client.Disconnect(250)
		}
	}

	renderers, closeRenderers, err := buildRenderers(cfg, client)
	if err != nil {
		return err
	}
	defer closeRenderers()

	var hooks []acceptHook
	hooks = append(hooks, func(now time.Time, out pipeline.Outcome, snap pipeline.Snapshot) {
		log.Printf("classifier: %s (confidence %.2f, sample %d, %v)",
			out.Category, out.Result.Confidence, out.Sample, out.Latency)
	})

	if client != nil {
		hooks = append(hooks, func(now time.Time, out pipeline.Outcome, snap pipeline.Snapshot) {
			publishJSON(client, "classifier", cfg.TopicStrokes, false, StrokeEvent{
				Time:       now,
				Category:   out.Category,
				Label:      out.Result.Label,
				Confidence: out.Result.Confidence,
				Sample:     out.Sample,
				LatencyMS:  float64(out.Latency) / float64(time.Millisecond),
				Total:      snap.Total,
			})
			publishJSON(client, "classifier", cfg.TopicCounters, true, snap)
		})
		// Counters start at zero; clear whatever a previous run retained.
		publishJSON(client, "classifier", cfg.TopicCounters, true, pipe.Snapshot())
	}

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer j.Close()
		session, err := j.StartSession(ctx, time.Now(), cfg.WindowSamples, cfg.HopSamples, cfg.Labels)
		if err != nil {
			return err
		}
		log.Printf("classifier: journaling to %s (session %d)", cfg.JournalPath, session)
		jw := journal.NewWriter(j, journalQueue)
		defer jw.Close()
		hooks = append(hooks, journalHook(jw, session))
	}

	machine := presentation.New(presentationTiming(cfg), messages, renderers)
	loop := newStrokeLoop(src, pipe, machine, hooks...)

	ticker := time.NewTicker(cfg.SampleInterval())
	defer ticker.Stop()
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	log.Printf("classifier: sampling every %v", cfg.SampleInterval())
	for {
		select {
		case <-ctx.Done():
			log.Println("classifier: shutting down")
			loop.logStats()
			return nil
		case <-stats.C:
			loop.logStats()
		case now := <-ticker.C:
			if err := loop.tick(now); errors.Is(err, io.EOF) {
				log.Println("classifier: replay finished")
				loop.logStats()
				return nil
			}
		}
	}
}
