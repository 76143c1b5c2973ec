package gstreamer

import (
	"strings"
)

// ErrorCategory classifies GStreamer bus errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryDevice indicates a missing, busy or unplugged capture device
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryNetwork indicates network failures (connection, timeout, DNS)
	ErrCategoryNetwork
	// ErrCategoryCodec indicates decode or caps negotiation failures
	ErrCategoryCodec
	// ErrCategoryAuth indicates authentication failures
	ErrCategoryAuth
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns the category name used in logs.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	default:
		return "unknown"
	}
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication", "credentials",
		"password",
	}
	deviceKeywords = []string{
		"/dev/video", "v4l2", "device", "busy", "permission denied", "no such file",
		"cannot identify", "could not open",
	}
	codecKeywords = []string{
		"codec", "decode", "encode", "format", "negotiation", "caps", "h264", "h265",
		"mjpeg", "jpeg", "not negotiated", "no decoder", "missing plugin",
	}
	networkKeywords = []string{
		"connection", "timeout", "unreachable", "network", "dns", "resolve", "socket",
		"tcp", "udp", "rtsp", "http", "could not connect", "failed to connect",
	}
)

// Classify categorizes a bus error from its message and debug string.
//
// go-gst's GError does not expose the error domain, so classification is
// keyword based. Checks run from the most specific category to the least:
// auth, device, codec, network.
func Classify(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
