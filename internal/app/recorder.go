package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

// Board replies on the serial link.
const (
	replyReady   = "READY"
	replyStarted = "STARTED"
	replyStopped = "STOPPED"
)

// ErrLinkClosed is returned when the sampling board stops talking.
var ErrLinkClosed = errors.New("serial link closed")

// RecorderOptions configures one recording session.
type RecorderOptions struct {
	Port          string        // empty probes the usual USB serial device names
	Baud          int
	Output        string        // CSV file; ".csv" is appended when missing
	Force         bool          // overwrite an existing Output
	MaxDuration   time.Duration // recording stops on its own after this long
	StartAttempts int           // START commands sent before giving up
	ReplyTimeout  time.Duration // wait for each board reply
	SettleDelay   time.Duration // board reset time after the port opens
	ProgressEvery int           // samples between progress lines, 0 disables
}

// DefaultRecorderOptions matches the sampling board firmware.
func DefaultRecorderOptions() RecorderOptions {
	return RecorderOptions{
		Baud:          115200,
		MaxDuration:   2 * time.Minute,
		StartAttempts: 10,
		ReplyTimeout:  2 * time.Second,
		SettleDelay:   3 * time.Second,
		ProgressEvery: 100,
	}
}

// RecordingStats summarizes a finished recording.
type RecordingStats struct {
	Samples  int
	Duration time.Duration
	Stopped  bool // the board acknowledged STOP
}

// Rate returns the average sample rate in Hz.
func (s RecordingStats) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Samples) / s.Duration.Seconds()
}

// Recorder talks to a sampling board that streams CSV lines over a serial
// link once started.
type Recorder struct {
	link  io.Writer
	out   io.Writer
	opts  RecorderOptions
	lines chan string
	done  chan struct{}
}

// NewRecorder starts reading lines from link. Closing link ends the reader.
func NewRecorder(link io.ReadWriter, out io.Writer, opts RecorderOptions) *Recorder {
	r := &Recorder{
		link:  link,
		out:   out,
		opts:  opts,
		lines: make(chan string, 256),
		done:  make(chan struct{}),
	}
	go r.readLines(link)
	return r
}

func (r *Recorder) readLines(link io.Reader) {
	defer close(r.lines)
	sc := bufio.NewScanner(link)
	for sc.Scan() {
		select {
		case r.lines <- strings.TrimSpace(sc.Text()):
		case <-r.done:
			return
		}
	}
}

// Close stops the line reader. The link itself belongs to the caller.
func (r *Recorder) Close() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

func (r *Recorder) send(cmd string) error {
	if _, err := io.WriteString(r.link, cmd+"\n"); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// next waits for the next line. ok is false on timeout.
func (r *Recorder) next(ctx context.Context, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case <-timer.C:
		return "", false, nil
	case line, open := <-r.lines:
		if !open {
			return "", false, ErrLinkClosed
		}
		return line, true, nil
	}
}

func isReply(line string) bool {
	return line == replyReady || line == replyStarted || line == replyStopped
}

// Probe sends TEST and waits for any firmware reply.
func (r *Recorder) Probe(ctx context.Context) error {
	if err := r.send("TEST"); err != nil {
		return err
	}
	deadline := time.Now().Add(r.opts.ReplyTimeout * 3)
	for time.Now().Before(deadline) {
		line, ok, err := r.next(ctx, r.opts.ReplyTimeout)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if isReply(line) || strings.Contains(line, "TT") {
			return nil
		}
	}
	return fmt.Errorf("no firmware reply to TEST")
}

// Start sends START until the board answers STARTED. READY or silence
// trigger a resend; other lines are ignored.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.send("START"); err != nil {
		return err
	}
	for attempt := 1; attempt <= r.opts.StartAttempts; attempt++ {
		line, ok, err := r.next(ctx, r.opts.ReplyTimeout)
		if err != nil {
			return err
		}
		switch {
		case ok && line == replyStarted:
			return nil
		case !ok, line == replyReady, line == "":
			if attempt < r.opts.StartAttempts {
				if err := r.send("START"); err != nil {
					return err
				}
			}
		}
	}
	return fmt.Errorf("board did not confirm START after %d attempts", r.opts.StartAttempts)
}

// flusher is a buffered writer such as *bufio.Writer.
type flusher interface {
	Flush() error
}

// Record copies data lines to w until ctx ends, quit fires or MaxDuration
// elapses. Empty lines and command replies are skipped. A buffered w is
// flushed after every line so an unplugged board loses nothing.
func (r *Recorder) Record(ctx context.Context, w io.Writer, quit <-chan struct{}) (RecordingStats, error) {
	start := time.Now()
	limit := time.NewTimer(r.opts.MaxDuration)
	defer limit.Stop()

	var stats RecordingStats
	for {
		select {
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, nil
		case <-quit:
			stats.Duration = time.Since(start)
			return stats, nil
		case <-limit.C:
			fmt.Fprintf(r.out, "\nMaximum recording time (%v) reached\n", r.opts.MaxDuration)
			stats.Duration = time.Since(start)
			return stats, nil
		case line, open := <-r.lines:
			if !open {
				stats.Duration = time.Since(start)
				return stats, ErrLinkClosed
			}
			if line == "" || isReply(line) {
				continue
			}
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				stats.Duration = time.Since(start)
				return stats, fmt.Errorf("write sample: %w", err)
			}
			if f, ok := w.(flusher); ok {
				if err := f.Flush(); err != nil {
					stats.Duration = time.Since(start)
					return stats, fmt.Errorf("flush sample: %w", err)
				}
			}
			stats.Samples++
			if r.opts.ProgressEvery > 0 && stats.Samples%r.opts.ProgressEvery == 0 {
				el := time.Since(start)
				fmt.Fprintf(r.out, "Samples: %d | Time: %.1fs | Rate: %.1f Hz\r",
					stats.Samples, el.Seconds(), float64(stats.Samples)/el.Seconds())
			}
		}
	}
}

// Stop sends STOP and reports whether STOPPED came back. Data lines still
// in flight are discarded.
func (r *Recorder) Stop(ctx context.Context) (bool, error) {
	if err := r.send("STOP"); err != nil {
		return false, err
	}
	deadline := time.Now().Add(r.opts.ReplyTimeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return false, nil
		}
		line, ok, err := r.next(ctx, wait)
		if err != nil {
			return false, err
		}
		if ok && line == replyStopped {
			return true, nil
		}
	}
}

// prepareOutput normalizes the file name and refuses to clobber an existing
// recording unless force is set.
func prepareOutput(name string, force bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("output file name is required")
	}
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	if _, err := os.Stat(name); err == nil && !force {
		return "", fmt.Errorf("%s exists, use --force to overwrite", name)
	}
	return name, nil
}

// candidatePorts lists the serial devices a USB sampling board usually
// shows up as.
func candidatePorts() []string {
	var ports []string
	for _, pattern := range []string{"/dev/ttyACM*", "/dev/ttyUSB*", "/dev/cu.usbmodem*"} {
		matches, _ := filepath.Glob(pattern)
		ports = append(ports, matches...)
	}
	return ports
}

func openBoard(port string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
}

// connectBoard opens opts.Port, or the first candidate port whose board
// answers TEST.
func connectBoard(ctx context.Context, opts RecorderOptions, out io.Writer) (io.ReadWriteCloser, *Recorder, error) {
	ports := []string{opts.Port}
	if opts.Port == "" {
		ports = candidatePorts()
		if len(ports) == 0 {
			return nil, nil, fmt.Errorf("no serial devices found, pass --port")
		}
	}

	for _, port := range ports {
		fmt.Fprintf(out, "Trying %s...\n", port)
		link, err := openBoard(port, opts.Baud)
		if err != nil {
			log.Printf("recorder: open %s: %v", port, err)
			continue
		}

		select {
		case <-ctx.Done():
			link.Close()
			return nil, nil, ctx.Err()
		case <-time.After(opts.SettleDelay):
		}

		rec := NewRecorder(link, out, opts)
		if err := rec.Probe(ctx); err != nil {
			log.Printf("recorder: %s: %v", port, err)
			rec.Close()
			link.Close()
			continue
		}
		fmt.Fprintf(out, "Board connected on %s\n", port)
		return link, rec, nil
	}
	return nil, nil, fmt.Errorf("no board with recording firmware found")
}

// watchQuit closes the returned channel when a line reading "q" arrives on in.
func watchQuit(in io.Reader) <-chan struct{} {
	quit := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			if strings.EqualFold(strings.TrimSpace(sc.Text()), "q") {
				close(quit)
				return
			}
		}
	}()
	return quit
}

// record runs one session against an already connected board.
func record(ctx context.Context, rec *Recorder, path string, quit <-chan struct{}, out io.Writer) (RecordingStats, error) {
	f, err := os.Create(path)
	if err != nil {
		return RecordingStats{}, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(strings.Join(imu.CSVHeader, ",") + "\n"); err != nil {
		return RecordingStats{}, err
	}
	if err := w.Flush(); err != nil {
		return RecordingStats{}, fmt.Errorf("flush %s: %w", path, err)
	}

	if err := rec.Start(ctx); err != nil {
		return RecordingStats{}, err
	}
	fmt.Fprintf(out, "Recording started - %s\n", path)
	fmt.Fprintf(out, "Press 'q' + ENTER to stop recording (max %v)\n", rec.opts.MaxDuration)

	stats, recErr := rec.Record(ctx, w, quit)

	// STOP is sent even when ctx is done.
	stopped, err := rec.Stop(context.Background())
	if err != nil {
		log.Printf("recorder: stop: %v", err)
	}
	stats.Stopped = stopped

	if err := w.Flush(); err != nil {
		return stats, fmt.Errorf("flush %s: %w", path, err)
	}
	return stats, recErr
}

// RunRecorder connects to the sampling board, records one session into
// opts.Output and prints a summary to out.
func RunRecorder(ctx context.Context, opts RecorderOptions, in io.Reader, out io.Writer) error {
	path, err := prepareOutput(opts.Output, opts.Force)
	if err != nil {
		return err
	}

	link, rec, err := connectBoard(ctx, opts, out)
	if err != nil {
		return err
	}
	defer link.Close()
	defer rec.Close()

	stats, err := record(ctx, rec, path, watchQuit(in), out)
	if stats.Stopped {
		fmt.Fprintln(out, "\nBoard stopped successfully")
	}
	fmt.Fprintln(out, "Recording completed")
	fmt.Fprintf(out, "Samples collected: %d\n", stats.Samples)
	fmt.Fprintf(out, "Duration: %.1f seconds\n", stats.Duration.Seconds())
	fmt.Fprintf(out, "Average sample rate: %.1f Hz\n", stats.Rate())
	return err
}
