package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker             string
	MQTTClientIDClassifier string
	MQTTClientIDCollector  string
	MQTTClientIDConsole    string
	MQTTClientIDWeb        string

	// Topics
	TopicStrokes  string
	TopicCounters string
	TopicDisplay  string
	TopicCapture  string

	// IMU
	IMUSource         string // "mpu9250", "mock" or "replay"
	IMUReplayFile     string
	IMUReplayLoop     bool
	IMUSPIDevice      string
	IMUCSPin          string
	IMUAccelRange     byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUGyroRange      byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUSampleInterval int  // milliseconds

	// Classification
	WindowSamples       int
	HopSamples          int
	Labels              string // comma separated, classifier output order
	IdleLabel           string
	ConfidenceThreshold float64
	PlausibilityG       float64
	ClassifierBudgetMS  int

	// Presentation (milliseconds unless noted)
	IntroFrames        int
	IntroFrameInterval int
	RedrawInterval     int
	IdleRedrawInterval int
	FlashDuration      int
	IdleTimeout        int
	MessagesFile       string

	// Display
	DisplayOutputs []string // any of "oled", "console", "mqtt"
	DisplayI2CBus  string
	DisplayI2CAddr uint16

	// Journal
	JournalPath string // empty disables the SQLite journal

	// Capture (data collection)
	CapturePreSamples  int
	CapturePostSamples int
	CaptureTriggerG    float64
	CaptureCooldown    int // milliseconds
	CaptureLabel       string
	CaptureRelay       string // "mqtt", "serial" or "file"
	CaptureSerialPort  string
	CaptureSerialBaud  int
	CaptureFile        string

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for the singleton:
//   - globalConfig: only reachable through InitGlobal() and Get().
//   - configOnce: InitGlobal() loads the file once, even if called repeatedly.
//   - configMu: write lock while loading, read lock in Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// OLEDI2CAddr is the SSD1306 address; the periph driver does not take
// another one.
const OLEDI2CAddr = 0x3C

// Default returns a configuration with every optional key populated.
func Default() *Config {
	return &Config{
		MQTTBroker:             "tcp://localhost:1883",
		MQTTClientIDClassifier: "stroke-classifier",
		MQTTClientIDCollector:  "stroke-collector",
		MQTTClientIDConsole:    "stroke-console",
		MQTTClientIDWeb:        "stroke-web",

		TopicStrokes:  "strokes/events",
		TopicCounters: "strokes/counters",
		TopicDisplay:  "strokes/display",
		TopicCapture:  "strokes/capture",

		IMUSource:         "mpu9250",
		IMUSPIDevice:      "/dev/spidev0.0",
		IMUCSPin:          "8",
		IMUAccelRange:     3,
		IMUGyroRange:      3,
		IMUSampleInterval: 20,

		WindowSamples:       25,
		HopSamples:          13,
		Labels:              "BHdrive,BHpush,FHdrive,FHloop,FHsmash,idle",
		IdleLabel:           "idle",
		ConfidenceThreshold: 0.50,
		PlausibilityG:       2.0,
		ClassifierBudgetMS:  10,

		IntroFrames:        8,
		IntroFrameInterval: 150,
		RedrawInterval:     250,
		IdleRedrawInterval: 600,
		FlashDuration:      1500,
		IdleTimeout:        30000,

		DisplayOutputs: []string{"console"},
		DisplayI2CBus:  "",
		DisplayI2CAddr: OLEDI2CAddr,

		CapturePreSamples:  25,
		CapturePostSamples: 50,
		CaptureTriggerG:    2.5,
		CaptureCooldown:    1000,
		CaptureLabel:       "unlabeled",
		CaptureRelay:       "mqtt",
		CaptureSerialBaud:  115200,
		CaptureFile:        "capture.csv",

		WebServerPort: 8080,
	}
}

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their Default() value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CLASSIFIER":
		c.MQTTClientIDClassifier = value
	case "MQTT_CLIENT_ID_COLLECTOR":
		c.MQTTClientIDCollector = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_STROKES":
		c.TopicStrokes = value
	case "TOPIC_COUNTERS":
		c.TopicCounters = value
	case "TOPIC_DISPLAY":
		c.TopicDisplay = value
	case "TOPIC_CAPTURE":
		c.TopicCapture = value

	// IMU
	case "IMU_SOURCE":
		switch value {
		case "mpu9250", "mock", "replay":
			c.IMUSource = value
		default:
			return fmt.Errorf("IMU_SOURCE must be mpu9250, mock or replay, got %q", value)
		}
	case "IMU_REPLAY_FILE":
		c.IMUReplayFile = value
	case "IMU_REPLAY_LOOP":
		c.IMUReplayLoop, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_REPLAY_LOOP %q: %w", value, err)
		}
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := intInRange(key, value, 0, 3)
		if err != nil {
			return fmt.Errorf("%w (0=±2g, 1=±4g, 2=±8g, 3=±16g)", err)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		rangeVal, err := intInRange(key, value, 0, 3)
		if err != nil {
			return fmt.Errorf("%w (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s)", err)
		}
		c.IMUGyroRange = byte(rangeVal)
	case "IMU_SAMPLE_INTERVAL":
		c.IMUSampleInterval, err = intInRange(key, value, 1, 1000)

	// Classification
	case "WINDOW_SAMPLES":
		c.WindowSamples, err = intInRange(key, value, 1, 4096)
	case "HOP_SAMPLES":
		c.HopSamples, err = intInRange(key, value, 1, 4096)
	case "LABELS":
		c.Labels = value
	case "IDLE_LABEL":
		c.IdleLabel = value
	case "CONFIDENCE_THRESHOLD":
		c.ConfidenceThreshold, err = floatInRange(key, value, 0, 1)
	case "PLAUSIBILITY_G":
		c.PlausibilityG, err = floatInRange(key, value, 0, 16)
	case "CLASSIFIER_BUDGET_MS":
		c.ClassifierBudgetMS, err = intInRange(key, value, 0, 10000)

	// Presentation
	case "INTRO_FRAMES":
		c.IntroFrames, err = intInRange(key, value, 0, 1000)
	case "INTRO_FRAME_INTERVAL":
		c.IntroFrameInterval, err = intInRange(key, value, 1, 60000)
	case "REDRAW_INTERVAL":
		c.RedrawInterval, err = intInRange(key, value, 1, 60000)
	case "IDLE_REDRAW_INTERVAL":
		c.IdleRedrawInterval, err = intInRange(key, value, 1, 60000)
	case "FLASH_DURATION":
		c.FlashDuration, err = intInRange(key, value, 1, 60000)
	case "IDLE_TIMEOUT":
		c.IdleTimeout, err = intInRange(key, value, 1, 24*3600*1000)
	case "MESSAGES_FILE":
		c.MessagesFile = value

	// Display
	case "DISPLAY_OUTPUTS":
		c.DisplayOutputs = nil
		for _, out := range strings.Split(value, ",") {
			out = strings.TrimSpace(out)
			switch out {
			case "":
			case "oled", "console", "mqtt":
				c.DisplayOutputs = append(c.DisplayOutputs, out)
			default:
				return fmt.Errorf("unknown display output %q (oled, console, mqtt)", out)
			}
		}
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)

	// Journal
	case "JOURNAL_PATH":
		c.JournalPath = value

	// Capture
	case "CAPTURE_PRE_SAMPLES":
		c.CapturePreSamples, err = intInRange(key, value, 0, 4096)
	case "CAPTURE_POST_SAMPLES":
		c.CapturePostSamples, err = intInRange(key, value, 1, 4096)
	case "CAPTURE_TRIGGER_G":
		c.CaptureTriggerG, err = floatInRange(key, value, 0, 16)
	case "CAPTURE_COOLDOWN":
		c.CaptureCooldown, err = intInRange(key, value, 0, 600000)
	case "CAPTURE_LABEL":
		c.CaptureLabel = value
	case "CAPTURE_RELAY":
		switch value {
		case "mqtt", "serial", "file":
			c.CaptureRelay = value
		default:
			return fmt.Errorf("CAPTURE_RELAY must be mqtt, serial or file, got %q", value)
		}
	case "CAPTURE_SERIAL_PORT":
		c.CaptureSerialPort = value
	case "CAPTURE_SERIAL_BAUD":
		c.CaptureSerialBaud, err = intInRange(key, value, 300, 4000000)
	case "CAPTURE_FILE":
		c.CaptureFile = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = intInRange(key, value, 1, 65535)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func intInRange(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func floatInRange(key, value string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %g-%g, got %g", key, lo, hi, v)
	}
	return v, nil
}

// validate checks cross-field constraints.
func (c *Config) validate() error {
	if c.HopSamples > c.WindowSamples {
		return fmt.Errorf("HOP_SAMPLES (%d) must not exceed WINDOW_SAMPLES (%d)", c.HopSamples, c.WindowSamples)
	}
	if c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be below 1, got %g", c.ConfidenceThreshold)
	}
	if c.IMUSource == "replay" && c.IMUReplayFile == "" {
		return fmt.Errorf("IMU_REPLAY_FILE is required when IMU_SOURCE=replay")
	}
	if c.IMUSource == "mpu9250" && (c.IMUSPIDevice == "" || c.IMUCSPin == "") {
		return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required when IMU_SOURCE=mpu9250")
	}
	if c.CaptureRelay == "serial" && c.CaptureSerialPort == "" {
		return fmt.Errorf("CAPTURE_SERIAL_PORT is required when CAPTURE_RELAY=serial")
	}
	if c.DisplayI2CAddr != OLEDI2CAddr {
		return fmt.Errorf("DISPLAY_I2C_ADDR must be 0x%02X, the only address the SSD1306 driver supports, got 0x%02X", OLEDI2CAddr, c.DisplayI2CAddr)
	}
	if c.MQTTBroker == "" && (c.HasDisplayOutput("mqtt") || c.CaptureRelay == "mqtt") {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	return nil
}

// HasDisplayOutput reports whether name is one of DISPLAY_OUTPUTS.
func (c *Config) HasDisplayOutput(name string) bool {
	for _, o := range c.DisplayOutputs {
		if o == name {
			return true
		}
	}
	return false
}

// SampleInterval returns IMU_SAMPLE_INTERVAL as a duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.IMUSampleInterval) * time.Millisecond
}

// Millis converts a millisecond config value to a duration.
func Millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
