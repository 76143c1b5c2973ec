// Package recording reads and writes frame recordings.
//
// A recording is a stream of msgpack values: one Header followed by one
// Record per frame. Frames are stored in their raw BGR layout so a replayed
// recording goes through exactly the same pipeline path as live capture.
package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
)

const (
	magic   = "FFREC"
	version = 1
)

// ErrBadHeader is returned when a file is not a recording or has an
// unsupported version.
var ErrBadHeader = errors.New("recording: bad header")

// Header opens every recording.
type Header struct {
	Magic   string    `msgpack:"magic"`
	Version int       `msgpack:"version"`
	Created time.Time `msgpack:"created"`
	Source  string    `msgpack:"source"`
}

// Record is one stored frame.
type Record struct {
	Seq       uint64    `msgpack:"seq"`
	Timestamp time.Time `msgpack:"ts"`
	TraceID   string    `msgpack:"trace_id"`
	Source    string    `msgpack:"source"`
	Width     int       `msgpack:"w"`
	Height    int       `msgpack:"h"`
	Channels  int       `msgpack:"c"`
	Data      []byte    `msgpack:"data"`
}

// FromFrame builds a record from a raw frame. Data is shared, not copied.
func FromFrame(f *frame.Raw) Record {
	return Record{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		TraceID:   f.TraceID,
		Source:    f.Source,
		Width:     f.Width,
		Height:    f.Height,
		Channels:  f.Channels,
		Data:      f.Data,
	}
}

// Frame converts the record back to a raw frame.
func (r Record) Frame() *frame.Raw {
	return &frame.Raw{
		Seq:       r.Seq,
		Timestamp: r.Timestamp,
		TraceID:   r.TraceID,
		Source:    r.Source,
		Width:     r.Width,
		Height:    r.Height,
		Channels:  r.Channels,
		Data:      r.Data,
	}
}

// Writer appends frames to a recording. Not safe for concurrent use.
type Writer struct {
	buf    *bufio.Writer
	enc    *msgpack.Encoder
	closer io.Closer
	count  uint64
}

// NewWriter writes a header to w and returns a Writer.
func NewWriter(w io.Writer, source string) (*Writer, error) {
	buf := bufio.NewWriter(w)
	enc := msgpack.NewEncoder(buf)

	hdr := Header{Magic: magic, Version: version, Created: time.Now().UTC(), Source: source}
	if err := enc.Encode(&hdr); err != nil {
		return nil, fmt.Errorf("recording: write header: %w", err)
	}

	rw := &Writer{buf: buf, enc: enc}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	return rw, nil
}

// Create creates (or truncates) the file at path and returns a Writer for it.
func Create(path, source string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	w, err := NewWriter(f, source)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write appends one frame.
func (w *Writer) Write(f *frame.Raw) error {
	rec := FromFrame(f)
	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("recording: write frame %d: %w", f.Seq, err)
	}
	w.count++
	return nil
}

// Count returns the number of frames written.
func (w *Writer) Count() uint64 { return w.count }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.buf.Flush()
}

// Close flushes and closes the underlying writer if it is an io.Closer.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader iterates over the frames of a recording.
type Reader struct {
	dec    *msgpack.Decoder
	hdr    Header
	closer io.Closer
}

// NewReader reads and validates the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))

	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if hdr.Magic != magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, hdr.Magic)
	}
	if hdr.Version != version {
		return nil, fmt.Errorf("%w: version %d (want %d)", ErrBadHeader, hdr.Version, version)
	}

	rr := &Reader{dec: dec, hdr: hdr}
	if c, ok := r.(io.Closer); ok {
		rr.closer = c
	}
	return rr, nil
}

// Open opens the recording at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// Header returns the recording header.
func (r *Reader) Header() Header { return r.hdr }

// Next returns the next frame, or io.EOF after the last one.
func (r *Reader) Next() (*frame.Raw, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("recording: read frame: %w", err)
	}
	return rec.Frame(), nil
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
