package recording

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

func testFrame(seq uint64) *frame.Raw {
	return &frame.Raw{
		Seq:       seq,
		Timestamp: time.Date(2025, 3, 4, 5, 6, 7, int(seq)*1000, time.UTC),
		TraceID:   "trace-" + string(rune('a'+seq)),
		Source:    "camera-0",
		Width:     2,
		Height:    2,
		Channels:  3,
		Data:      []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, byte(seq)},
	}
}

// TestRoundTrip validates that every stored field survives a write/read cycle
// and that the stream ends with io.EOF.
func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	w, err := NewWriter(&buf, "unit-test")
	if err != nil {
		t.Fatal(err)
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if err := w.Write(testFrame(seq)); err != nil {
			t.Fatal(err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("Count() = %d, want 3", w.Count())
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if hdr := r.Header(); hdr.Source != "unit-test" || hdr.Version != version || hdr.Created.IsZero() {
		t.Errorf("Header() = %+v", hdr)
	}

	for seq := uint64(1); seq <= 3; seq++ {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() frame %d: %v", seq, err)
		}
		if diff := cmp.Diff(testFrame(seq), got); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", seq, diff)
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestCreateOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.ffrec")

	w, err := Create(path, "file-test")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testFrame(7)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got.Seq != 7 || got.Source != "camera-0" {
		t.Errorf("Next() = %+v", got)
	}

	if _, err := Open(filepath.Join(t.TempDir(), "missing.ffrec")); err == nil {
		t.Error("Open() of a missing file succeeded")
	}
}

func TestNewReader_BadHeader(t *testing.T) {
	encode := func(v any) *bytes.Buffer {
		var buf bytes.Buffer
		if err := msgpack.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatal(err)
		}
		return &buf
	}

	tests := []struct {
		name  string
		input io.Reader
	}{
		{"empty", &bytes.Buffer{}},
		{"not msgpack header", bytes.NewBufferString("PNG\x89 definitely not a recording")},
		{"wrong magic", encode(&Header{Magic: "NOPE", Version: version})},
		{"future version", encode(&Header{Magic: magic, Version: version + 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(tt.input)
			if !errors.Is(err, ErrBadHeader) {
				t.Errorf("NewReader() = %v, want ErrBadHeader", err)
			}
		})
	}
}

func TestNext_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "truncated")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(testFrame(1)); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	cut := bytes.NewReader(buf.Bytes()[:buf.Len()-5])
	r, err := NewReader(cut)
	if err != nil {
		t.Fatal(err)
	}

	f, err := r.Next()
	if err == nil || f != nil {
		t.Errorf("Next() on truncated record = %v, %v; want error", f, err)
	}
}
