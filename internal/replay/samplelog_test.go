package replay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"tiltview/internal/orientation"
)

type fakeSleeper struct {
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	fs.slept = append(fs.slept, d)
	return nil
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

START
0, rotation_vector, 0 0 0 1 0
10, magnetic_field, 1.5 -2 3e1
`)

	recs, err := NewReader(in).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	if !recs[0].Start {
		t.Fatalf("expected START marker, got %+v", recs[0])
	}
	if recs[1].Source != orientation.SourceRotationVector || !reflect.DeepEqual(recs[1].Values, []float64{0, 0, 0, 1, 0}) {
		t.Fatalf("unexpected record 1: %+v", recs[1])
	}
	if recs[2].At != 10*time.Nanosecond {
		t.Fatalf("expected At=10ns, got %s", recs[2].At)
	}
	if recs[2].Source != orientation.SourceMagneticField || !reflect.DeepEqual(recs[2].Values, []float64{1.5, -2, 30}) {
		t.Fatalf("unexpected record 2: %+v", recs[2])
	}
}

func TestReaderReadAll_InvalidLines(t *testing.T) {
	cases := []string{
		"not-a-valid-line\n",
		"10,gravity\n",
		"-5,gravity,0 0 9.8\n",
		"5,gyroscope,0 0 0\n",
		"5,none,0 0 0\n",
		"5,gravity,0 x 9.8\n",
	}
	for _, in := range cases {
		if _, err := NewReader(strings.NewReader(in)).ReadAll(); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestPlay_RespectsTimingAndStart(t *testing.T) {
	var got []orientation.Source
	fs := &fakeSleeper{}

	recs := []Record{
		{At: 1 * time.Second, Start: true},
		{At: 1 * time.Second, Source: orientation.SourceGravity, Values: []float64{0, 0, 9.8}},
		{At: 1*time.Second + 100*time.Nanosecond, Source: orientation.SourceMagneticField, Values: []float64{0, 20, -40}},
		{At: 2 * time.Second, Start: true},
		{At: 2*time.Second + 50*time.Nanosecond, Source: orientation.SourceAccelerometer, Values: []float64{0, 0, 9.8}},
	}

	err := Play(context.Background(), recs, 1.0, false, fs, func(r Record) error {
		got = append(got, r.Source)
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	want := []orientation.Source{orientation.SourceGravity, orientation.SourceMagneticField, orientation.SourceAccelerometer}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sources = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{100 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [100ns]", fs.slept)
	}
}

func TestPlay_SpeedMultiplier(t *testing.T) {
	fs := &fakeSleeper{}
	recs := []Record{
		{At: 0, Source: orientation.SourceGravity, Values: []float64{0, 0, 1}},
		{At: 100 * time.Nanosecond, Source: orientation.SourceGravity, Values: []float64{0, 0, 1}},
	}

	err := Play(context.Background(), recs, 2.0, false, fs, func(Record) error { return nil })
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if !reflect.DeepEqual(fs.slept, []time.Duration{50 * time.Nanosecond}) {
		t.Fatalf("slept = %v, want [50ns]", fs.slept)
	}
}

func TestPlay_InvalidArgs(t *testing.T) {
	ctx := context.Background()
	recs := []Record{{At: 0, Source: orientation.SourceGravity, Values: []float64{0, 0, 1}}}
	if err := Play(ctx, recs, 0, false, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for zero speed")
	}
	if err := Play(ctx, recs, 1, false, nil, nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
	if err := Play(ctx, []Record{{Start: true}}, 1, true, nil, func(Record) error { return nil }); err == nil {
		t.Fatalf("expected error for markers only")
	}
}

func TestPlay_LoopStopsOnCallbackErrorAndCancel(t *testing.T) {
	recs := []Record{{At: 0, Source: orientation.SourceGravity, Values: []float64{0, 0, 1}}}
	stop := errors.New("stop")
	n := 0
	err := Play(context.Background(), recs, 1, true, &fakeSleeper{}, func(Record) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 3 {
		t.Fatalf("err=%v n=%d", err, n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Play(ctx, recs, 1, true, nil, func(Record) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestRealSleeper_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (realSleeper{}).Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestWriter_WritesExpectedFormat(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("NewWriter() error: %v", err)
	}
	s := orientation.Sample{Source: orientation.SourceGravity, Values: []float64{0.5, -1, 9.81}, Timestamp: time.Unix(0, 20)}
	if err := w.WriteSample(s); err != nil {
		t.Fatalf("WriteSample() error: %v", err)
	}
	if err := w.WriteSample(orientation.Sample{Source: orientation.SourceGravity}); err == nil {
		t.Fatalf("expected error for empty sample")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if want := "START\n20,gravity,0.5 -1 9.81\n"; buf.String() != want {
		t.Fatalf("unexpected contents: %q want %q", buf.String(), want)
	}
	if err := w.WriteSample(s); err == nil {
		t.Fatalf("expected error after Close")
	}
}

func TestRecordReplay_RoundTripSamplesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.log")
	w, err := CreateWriter(path)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	// Same timestamp throughout so replay has zero waits.
	now := time.Now()
	in := []orientation.Sample{
		{Source: orientation.SourceRotationVector, Values: []float64{0.1, 0.2, 0.3, 0.927, 0}, Timestamp: now},
		{Source: orientation.SourceAccelerometer, Values: []float64{0.01, -0.2, 9.79}, Timestamp: now},
		{Source: orientation.SourceMagneticField, Values: []float64{12.25, 24.5, -41.125}, Timestamp: now},
	}
	for _, s := range in {
		if err := w.WriteSample(s); err != nil {
			t.Fatalf("WriteSample() error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat: %v", err)
	}

	recs, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	fs := &fakeSleeper{}
	var out []orientation.Sample
	err = Play(context.Background(), recs, 1.0, false, fs, func(r Record) error {
		out = append(out, orientation.Sample{Source: r.Source, Values: r.Values})
		return nil
	})
	if err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if len(fs.slept) != 0 {
		t.Fatalf("expected no sleeps, got %v", fs.slept)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d samples want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].Source != in[i].Source || !reflect.DeepEqual(out[i].Values, in[i].Values) {
			t.Fatalf("sample %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}
