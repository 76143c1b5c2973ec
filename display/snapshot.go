package display

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/frame"
	"github.com/e7canasta/orion-care-sensor/modules/frame-filter/pixfmt"
)

// SnapshotConfig configures a Snapshot sink.
type SnapshotConfig struct {
	// OutputDir is created if it does not exist.
	OutputDir string
	// Format is "png" (default) or "jpeg".
	Format string
	// JPEGQuality is 1-100 (default 90, JPEG only).
	JPEGQuality int
	// Every saves one frame out of Every (default 1: every frame).
	Every uint64
}

// Snapshot writes frames to disk as PNG or JPEG.
//
// Filename format: frame_{seq:06d}_{timestamp}.{ext}
// Example: frame_000042_20251105_234517.123.png
type Snapshot struct {
	cfg SnapshotConfig

	seen    atomic.Uint64
	saved   atomic.Uint64
	dropped atomic.Uint64
}

// NewSnapshot validates cfg and creates the output directory.
func NewSnapshot(cfg SnapshotConfig) (*Snapshot, error) {
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("display: snapshot output directory is required")
	}
	if cfg.Format == "" {
		cfg.Format = "png"
	}
	if cfg.Format != "png" && cfg.Format != "jpeg" {
		return nil, fmt.Errorf("display: unsupported snapshot format %q (must be png or jpeg)", cfg.Format)
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 90
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return nil, fmt.Errorf("display: jpeg quality must be 1-100, got %d", cfg.JPEGQuality)
	}
	if cfg.Every == 0 {
		cfg.Every = 1
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("display: failed to create output directory: %w", err)
	}

	slog.Info("display: snapshot sink ready",
		"output_dir", cfg.OutputDir,
		"format", cfg.Format,
		"every", cfg.Every,
	)

	return &Snapshot{cfg: cfg}, nil
}

// Display saves f if it falls on the sampling interval.
func (s *Snapshot) Display(ctx context.Context, f *frame.Raw) error {
	if n := s.seen.Add(1); (n-1)%s.cfg.Every != 0 {
		return nil
	}

	img, err := pixfmt.RGBAImage(f)
	if err != nil {
		s.dropped.Add(1)
		return fmt.Errorf("display: snapshot conversion failed: %w", err)
	}

	ext := s.cfg.Format
	if ext == "jpeg" {
		ext = "jpg"
	}
	filename := fmt.Sprintf("frame_%06d_%s.%s",
		f.Seq,
		f.Timestamp.Format("20060102_150405.000"),
		ext)
	path := filepath.Join(s.cfg.OutputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		s.dropped.Add(1)
		return fmt.Errorf("display: failed to create snapshot: %w", err)
	}
	defer file.Close()

	switch s.cfg.Format {
	case "png":
		err = png.Encode(file, img)
	case "jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: s.cfg.JPEGQuality})
	}
	if err != nil {
		s.dropped.Add(1)
		return fmt.Errorf("display: %s encode failed: %w", s.cfg.Format, err)
	}

	s.saved.Add(1)
	return nil
}

// Close is a no-op; every snapshot is closed when written.
func (s *Snapshot) Close() error {
	saved, dropped := s.Stats()
	slog.Info("display: snapshot sink closed", "saved", saved, "dropped", dropped)
	return nil
}

// Stats returns current save statistics.
func (s *Snapshot) Stats() (saved, dropped uint64) {
	return s.saved.Load(), s.dropped.Load()
}
