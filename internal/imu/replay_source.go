package imu

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSVHeader is the column layout written by the recorder and the capture
// relays, and read back by ReplaySource.
var CSVHeader = []string{"Timestamp", "AccelX", "AccelY", "AccelZ", "GyroX", "GyroY", "GyroZ"}

// ReplaySource plays back a CSV recording one row per Next call.
type ReplaySource struct {
	rows []Sample
	pos  int
	loop bool
}

// OpenReplay loads a recording from path. When loop is set the recording
// restarts once exhausted, otherwise Next returns io.EOF.
func OpenReplay(path string, loop bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no samples", path)
	}
	return &ReplaySource{rows: rows, loop: loop}, nil
}

// Next returns the next recorded sample.
func (r *ReplaySource) Next() (Sample, error) {
	if r.pos >= len(r.rows) {
		if !r.loop {
			return Sample{}, io.EOF
		}
		r.pos = 0
	}
	s := r.rows[r.pos]
	r.pos++
	return s, nil
}

// ReadCSV parses rows of Timestamp,AccelX,...,GyroZ. The header row and
// blank lines are skipped; the timestamp column is ignored.
func ReadCSV(rd io.Reader) ([]Sample, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Sample
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if len(rec) == 0 || strings.EqualFold(strings.TrimSpace(rec[0]), CSVHeader[0]) {
			continue
		}
		if len(rec) != len(CSVHeader) {
			return nil, fmt.Errorf("csv line %d: expected %d fields, got %d", line, len(CSVHeader), len(rec))
		}
		var s Sample
		for ch := 0; ch < Channels; ch++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[ch+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, CSVHeader[ch+1], err)
			}
			s[ch] = v
		}
		out = append(out, s)
	}
	return out, nil
}

// FormatCSV renders one sample as a CSV row with the given timestamp (ms).
func FormatCSV(tsMillis int64, s Sample) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(tsMillis, 10))
	for _, v := range s {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'f', 4, 64))
	}
	return b.String()
}
