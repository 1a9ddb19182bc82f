package capture

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jacobsa/go-serial/serial"
)

// Relay ships finished records off the device.
type Relay interface {
	Send(rec Record) error
	Close() error
}

// MQTTRelay publishes one message per record.
type MQTTRelay struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTRelay publishes on topic through a connected client.
func NewMQTTRelay(client mqtt.Client, topic string) *MQTTRelay {
	return &MQTTRelay{client: client, topic: topic, timeout: 5 * time.Second}
}

func (m *MQTTRelay) Send(rec Record) error {
	token := m.client.Publish(m.topic, 1, false, rec.Bytes())
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("capture: publish record %d on %s timed out", rec.Seq, m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("capture: publish record %d: %w", rec.Seq, err)
	}
	return nil
}

// Close leaves the client connected; its owner disconnects it.
func (m *MQTTRelay) Close() error { return nil }

// WriterRelay writes records to a stream: a serial port or a file.
type WriterRelay struct {
	w    io.WriteCloser
	name string
}

// NewWriterRelay wraps w; name only appears in errors.
func NewWriterRelay(w io.WriteCloser, name string) *WriterRelay {
	return &WriterRelay{w: w, name: name}
}

func (r *WriterRelay) Send(rec Record) error {
	if err := rec.Encode(r.w); err != nil {
		return fmt.Errorf("capture: write record %d to %s: %w", rec.Seq, r.name, err)
	}
	return nil
}

func (r *WriterRelay) Close() error { return r.w.Close() }

// OpenSerialRelay opens port at baud, 8N1.
func OpenSerialRelay(port string, baud int) (*WriterRelay, error) {
	serialOpts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	rwc, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("capture: open serial %s: %w", port, err)
	}
	log.Printf("capture: serial relay opened on %s at %d baud", port, baud)
	return NewWriterRelay(rwc, port), nil
}

// OpenFileRelay appends records to path, creating it if needed.
func OpenFileRelay(path string) (*WriterRelay, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	log.Printf("capture: appending records to %s", path)
	return NewWriterRelay(f, path), nil
}
