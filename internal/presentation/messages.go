package presentation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fallbackKey names the pool used for categories without their own pool.
const fallbackKey = "default"

type pool struct {
	lines  []string
	cursor int
}

func (p *pool) next() string {
	s := p.lines[p.cursor]
	p.cursor = (p.cursor + 1) % len(p.lines)
	return s
}

// Messages holds one rotating pool of encouragement lines per category.
// Each pool keeps its own cursor.
type Messages struct {
	pools map[string]*pool
}

// NewMessages copies the given pools. Empty pools are dropped.
func NewMessages(byCategory map[string][]string) *Messages {
	m := &Messages{pools: make(map[string]*pool, len(byCategory))}
	for cat, lines := range byCategory {
		if len(lines) == 0 {
			continue
		}
		m.pools[cat] = &pool{lines: append([]string(nil), lines...)}
	}
	return m
}

// DefaultMessages returns the built-in pools for the default label set.
func DefaultMessages() *Messages {
	return NewMessages(map[string][]string{
		"BHdrive":   {"Clean backhand!", "BH drive!", "Nice wrist!"},
		"BHpush":    {"Good push", "Keep it low"},
		"FHdrive":   {"Forehand drive!", "Solid FH!", "Keep going!"},
		"FHloop":    {"Topspin!", "Big loop!"},
		"FHsmash":   {"SMASH!", "Boom!"},
		fallbackKey: {"Nice shot!"},
	})
}

type messagesFile struct {
	Messages map[string][]string `yaml:"messages"`
}

// LoadMessages reads pools from a YAML file of the form
//
//	messages:
//	  FHsmash: ["SMASH!", "Boom!"]
//	  default: ["Nice shot!"]
func LoadMessages(path string) (*Messages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var f messagesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse messages file %s: %w", path, err)
	}
	if len(f.Messages) == 0 {
		return nil, fmt.Errorf("messages file %s defines no pools", path)
	}
	return NewMessages(f.Messages), nil
}

// Next returns the next line for category and advances that category's
// cursor only.
func (m *Messages) Next(category string) string {
	if p, ok := m.pools[category]; ok {
		return p.next()
	}
	if p, ok := m.pools[fallbackKey]; ok {
		return p.next()
	}
	return category + "!"
}
