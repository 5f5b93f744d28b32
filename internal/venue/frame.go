// Package venue holds the frame classification shared by both venue
// parser packages (primary and secondary), so a caller can switch on
// the same enum regardless of which venue produced the frame.
package venue

// FrameKind classifies a raw streaming frame before any field
// extraction is attempted.
type FrameKind uint8

const (
	FrameUnknown FrameKind = iota
	FrameQuote
	FrameTrade
	FrameSubscriptionAck
	FrameHeartbeat
	FrameControl
)
