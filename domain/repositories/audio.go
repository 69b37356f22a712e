package repositories

import "context"

// AudioSource delivers raw 16-bit little-endian PCM
type AudioSource interface {
	// Start begins delivery. onData receives byte slices of arbitrary length;
	// onError reports failures after a successful start.
	Start(ctx context.Context, onData func([]byte), onError func(error)) error
	Stop() error
}
