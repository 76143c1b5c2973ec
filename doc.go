// Package framefilter runs a real-time Gaussian blur over a live frame
// stream.
//
// # Architecture
//
// A producer pulls frames from a Source, converts them to single-channel
// intensity frames and hands them to a consumer over a small bounded channel.
// The consumer convolves each frame with a precomputed kernel, rewrites it in
// place and passes a displayable copy to a Sink:
//
//	Source → ToIntensity → [bounded channel] → Engine → Rewrite → ToDisplayable → Sink
//	         (producer)                         (consumer)
//
// Frames are owned by exactly one goroutine at a time. Sending a frame on the
// channel transfers ownership, so frame buffers need no locks. The kernel is
// immutable and shared by every convolution call.
//
// # Backpressure
//
// The channel holds Config.Capacity frames (default 4). When it is full the
// producer blocks (OverflowBlock, the default), which slows capture to the
// filter rate. OverflowDropOldest instead discards the oldest buffered frame
// and counts it in Stats.DroppedOldest.
//
// # Shutdown
//
// Cancelling the context passed to Run, or the source reporting
// capture.ErrUnavailable, stops the producer. The producer closes the
// channel; the consumer drains every buffered frame to the sink before Run
// returns.
//
// # Basic Usage
//
//	k, err := kernel.Gaussian(5, 1000)
//	if err != nil {
//	    return err // configuration error
//	}
//
//	src, _ := capture.NewSynthetic(capture.SyntheticConfig{Width: 640, Height: 480, FPS: 30})
//	p, err := framefilter.New(framefilter.Config{Kernel: k}, src, display.NewLog(nil))
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	return p.Run(ctx)
//
// # Packages
//
//	kernel     Gaussian and custom kernels
//	convolve   baseline and row-band parallel convolution, edge policies
//	pixfmt     BGR ↔ intensity ↔ float plane conversions
//	frame      frame types and lifecycle states
//	capture    sources (synthetic, replay; gstreamer and camera subpackages)
//	display    sinks (log, snapshot, recorder, fan-out; window subpackage)
package framefilter
