// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display holds the renderers the presentation state machine draws
// through: the SSD1306 OLED, the console, MQTT render intents and a fan-out.
package display

import (
	"fmt"
	"image"
	"log"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/stroke_classifier/internal/pipeline"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13
	nameWidth  = 6 // characters of a category name shown in the counters grid
)

// OLED draws on a 128x64 SSD1306 over I²C.
type OLED struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

// NewOLED opens the I²C bus (empty name selects the first bus) and
// initializes the display. The driver always talks to address 0x3C.
func NewOLED(busName string) (*OLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	opts := ssd1306.DefaultOpts
	dev, err := ssd1306.NewI2C(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: OLED initialized on %s", bus)

	return &OLED{bus: bus, dev: dev}, nil
}

// Close blanks the display and releases the bus.
func (o *OLED) Close() error {
	if err := o.dev.Halt(); err != nil {
		log.Printf("display: halt error: %v", err)
	}
	return o.bus.Close()
}

// frame returns a blank image and a drawer over it.
func frame() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// centered draws text horizontally centered on baseline y.
func centered(d *font.Drawer, y int, text string) {
	w := d.MeasureString(text).Ceil()
	x := (oledWidth - w) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}

func (o *OLED) show(img *image1bit.VerticalLSB, what string) {
	if err := o.dev.Draw(o.dev.Bounds(), img, image.Point{}); err != nil {
		log.Printf("display: error drawing %s: %v", what, err)
	}
}

// CounterLines lays the counters out as rows of two "name:count" cells
// followed by the total.
func CounterLines(snap pipeline.Snapshot) []string {
	var lines []string
	var row []string
	for _, c := range snap.Categories {
		name := c.Name
		if len(name) > nameWidth {
			name = name[:nameWidth]
		}
		row = append(row, fmt.Sprintf("%-*s%3d", nameWidth, name, c.Count))
		if len(row) == 2 {
			lines = append(lines, strings.Join(row, " "))
			row = row[:0]
		}
	}
	if len(row) > 0 {
		lines = append(lines, row[0])
	}
	return append(lines, fmt.Sprintf("Total %d", snap.Total))
}

// RenderCounters draws the per-category counters.
func (o *OLED) RenderCounters(snap pipeline.Snapshot) {
	img, d := frame()
	for i, line := range CounterLines(snap) {
		y := lineHeight * (i + 1)
		if y > oledHeight {
			break
		}
		d.Dot = fixed.P(0, y)
		d.DrawString(line)
	}
	o.show(img, "counters")
}

// RenderFlash draws the stroke name with its message underneath.
func (o *OLED) RenderFlash(category, message string) {
	img, d := frame()
	centered(d, 26, category)
	centered(d, 47, message)
	o.show(img, "flash")
}

// RenderIdle draws the idle prompt with a walking dot.
func (o *OLED) RenderIdle(phase int) {
	img, d := frame()
	centered(d, 26, "Swing to start")
	x := 8 + (phase%8)*16
	for dx := 0; dx < 4; dx++ {
		for dy := 0; dy < 4; dy++ {
			img.SetBit(x+dx, 44+dy, image1bit.On)
		}
	}
	o.show(img, "idle")
}

// RenderIntro draws the splash title and a progress bar that grows with
// each frame.
func (o *OLED) RenderIntro(frameIdx int) {
	img, d := frame()
	centered(d, 22, "Stroke")
	centered(d, 37, "Classifier")
	w := (frameIdx + 1) * 16
	if w > oledWidth {
		w = oledWidth
	}
	for x := 0; x < w; x++ {
		for y := 50; y < 54; y++ {
			img.SetBit(x, y, image1bit.On)
		}
	}
	o.show(img, "intro")
}
