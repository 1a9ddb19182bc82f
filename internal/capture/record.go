package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/relabs-tech/stroke_classifier/internal/imu"
)

// Record is one captured impact: pre-trigger samples followed by the
// trigger sample and the rest of the post-trigger samples, oldest first.
type Record struct {
	Seq       uint64
	Label     string
	TriggerAt time.Time
	Trigger   int // index of the trigger sample in Samples
	Interval  time.Duration
	Samples   []imu.Sample
}

// Encode writes the record as
//
//	BEGIN <seq> <label>
//	Timestamp,AccelX,AccelY,AccelZ,GyroX,GyroY,GyroZ
//	<one CSV line per sample>
//	END <seq>
//
// Timestamps are milliseconds relative to the trigger sample.
func (r Record) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "BEGIN %d %s\n", r.Seq, r.Label)
	bw.WriteString(strings.Join(imu.CSVHeader, ","))
	bw.WriteByte('\n')
	for i, s := range r.Samples {
		ts := int64(i-r.Trigger) * r.Interval.Milliseconds()
		bw.WriteString(imu.FormatCSV(ts, s))
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "END %d\n", r.Seq)
	return bw.Flush()
}

// Bytes returns the encoded record.
func (r Record) Bytes() []byte {
	var buf bytes.Buffer
	r.Encode(&buf) // writes to a bytes.Buffer do not fail
	return buf.Bytes()
}

// DecodeRecord parses one encoded record. TriggerAt, Trigger and Interval
// are not carried by the text form and stay zero.
func DecodeRecord(payload []byte) (Record, error) {
	text := strings.TrimSpace(string(payload))
	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return Record{}, fmt.Errorf("capture record: too short (%d lines)", len(lines))
	}

	begin := strings.Fields(lines[0])
	if len(begin) < 2 || begin[0] != "BEGIN" {
		return Record{}, fmt.Errorf("capture record: bad header %q", lines[0])
	}
	seq, err := strconv.ParseUint(begin[1], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("capture record: bad sequence %q: %w", begin[1], err)
	}
	label := strings.Join(begin[2:], " ")

	end := strings.Fields(lines[len(lines)-1])
	if len(end) != 2 || end[0] != "END" || end[1] != begin[1] {
		return Record{}, fmt.Errorf("capture record %d: bad trailer %q", seq, lines[len(lines)-1])
	}

	samples, err := imu.ReadCSV(strings.NewReader(strings.Join(lines[1:len(lines)-1], "\n")))
	if err != nil {
		return Record{}, fmt.Errorf("capture record %d: %w", seq, err)
	}
	return Record{Seq: seq, Label: label, Samples: samples}, nil
}
