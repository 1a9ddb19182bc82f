package imu

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestScaleForRanges(t *testing.T) {
	sc, err := ScaleForRanges(0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sc.AccelLSBPerG != 16384 || sc.GyroLSBPerDPS != 131 {
		t.Fatalf("unexpected ±2g/±250dps scale %+v", sc)
	}

	sc, err = ScaleForRanges(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if sc.AccelLSBPerG != 2048 || sc.GyroLSBPerDPS != 16.375 {
		t.Fatalf("unexpected ±16g/±2000dps scale %+v", sc)
	}

	if _, err := ScaleForRanges(4, 0); err == nil {
		t.Fatalf("accel range 4 accepted")
	}
	if _, err := ScaleForRanges(0, 4); err == nil {
		t.Fatalf("gyro range 4 accepted")
	}
}

func TestIMURaw_ToSample(t *testing.T) {
	sc, err := ScaleForRanges(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	raw := IMURaw{Ax: 2048, Ay: -4096, Az: 1024, Gx: 131, Gy: 0, Gz: -1310}
	got := raw.ToSample(sc)
	want := NewSample(1, -2, 0.5, 1, 0, -10)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestReadCSV_SkipsHeaderAndBlankLines(t *testing.T) {
	in := strings.Join([]string{
		"Timestamp,AccelX,AccelY,AccelZ,GyroX,GyroY,GyroZ",
		"0,0.01,0.02,1.00,1.5,2.5,3.5",
		"",
		"20, 0.5,-0.25,0.75,-10,0,100",
	}, "\n")
	rows, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0] != NewSample(0.01, 0.02, 1.00, 1.5, 2.5, 3.5) {
		t.Fatalf("row 0 = %v", rows[0])
	}
	if rows[1] != NewSample(0.5, -0.25, 0.75, -10, 0, 100) {
		t.Fatalf("row 1 = %v", rows[1])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("0,1,2,3\n"))
	if err == nil || !strings.Contains(err.Error(), "expected 7 fields") {
		t.Fatalf("short row: got %v", err)
	}

	_, err = ReadCSV(strings.NewReader("0,1,2,3,4,5,6\n20,1,x,3,4,5,6\n"))
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("bad number: got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") || !strings.Contains(err.Error(), "AccelY") {
		t.Fatalf("error does not locate the field: %v", err)
	}
}

func TestFormatCSV(t *testing.T) {
	got := FormatCSV(20, NewSample(1, 0, -0.5, 10, 0, 0))
	if got != "20,1.0000,0.0000,-0.5000,10.0000,0.0000,0.0000" {
		t.Fatalf("got %q", got)
	}
}

func writeRecording(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.csv")
	content := strings.Join(append([]string{strings.Join(CSVHeader, ",")}, rows...), "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReplaySource_EndsWithEOF(t *testing.T) {
	src, err := OpenReplay(writeRecording(t, "0,1,0,0,0,0,0", "20,2,0,0,0,0,0"), false)
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	for i, want := range []float64{1, 2} {
		s, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if s[AX] != want {
			t.Fatalf("Next %d: ax %v, want %v", i, s[AX], want)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := src.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("after the last row got %v, want io.EOF", err)
		}
	}
}

func TestReplaySource_Loops(t *testing.T) {
	src, err := OpenReplay(writeRecording(t, "0,1,0,0,0,0,0", "20,2,0,0,0,0,0"), true)
	if err != nil {
		t.Fatalf("OpenReplay: %v", err)
	}
	var got []float64
	for i := 0; i < 5; i++ {
		s, err := src.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		got = append(got, s[AX])
	}
	want := []float64{1, 2, 1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOpenReplay_Errors(t *testing.T) {
	if _, err := OpenReplay(writeRecording(t), false); err == nil {
		t.Fatalf("header-only recording accepted")
	}
	if _, err := OpenReplay(filepath.Join(t.TempDir(), "missing.csv"), false); err == nil {
		t.Fatalf("missing file accepted")
	}
}

func TestMockSource_SwingsCrossTwoG(t *testing.T) {
	const (
		rate   = 50.0
		period = 2.5
	)
	src := NewMockSource(rate, period)
	periodSamp := int(period * rate)
	swingSamp := int(0.2 * rate)

	for p := 0; p < 2*len(mockSwings); p++ {
		var swingPeak, stillPeak float64
		for i := 0; i < periodSamp; i++ {
			s, err := src.Next()
			if err != nil {
				t.Fatal(err)
			}
			n := s.AccelNormSq()
			if i < swingSamp {
				swingPeak = max(swingPeak, n)
			} else {
				stillPeak = max(stillPeak, n)
			}
		}
		if swingPeak <= 4 {
			t.Fatalf("period %d: swing peak |a|²=%.2f does not cross 2g", p, swingPeak)
		}
		if stillPeak >= 4 {
			t.Fatalf("period %d: still part reaches |a|²=%.2f", p, stillPeak)
		}
	}
}
