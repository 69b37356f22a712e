package audio

import "sync"

// Chunker accumulates PCM bytes and emits fixed-duration WAV units.
// Leftover bytes are kept for the next Feed.
type Chunker struct {
	sampleRate  int
	channels    int
	targetBytes int
	onChunk     func(wav []byte)

	mu     sync.Mutex
	buffer []byte
}

// TargetBytes is the PCM size of one chunk of 16-bit audio
func TargetBytes(sampleRate, channels, chunkSeconds int) int {
	return sampleRate * channels * 2 * chunkSeconds
}

// NewChunker creates a chunker that calls onChunk with each complete WAV unit
func NewChunker(sampleRate, channels, chunkSeconds int, onChunk func(wav []byte)) *Chunker {
	target := TargetBytes(sampleRate, channels, chunkSeconds)
	return &Chunker{
		sampleRate:  sampleRate,
		channels:    channels,
		targetBytes: target,
		onChunk:     onChunk,
		buffer:      make([]byte, 0, target),
	}
}

// Feed appends data and emits every complete chunk now available.
// onChunk runs on the caller's goroutine, outside the chunker lock.
func (c *Chunker) Feed(data []byte) {
	for _, unit := range c.take(data) {
		c.onChunk(unit)
	}
}

func (c *Chunker) take(data []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetBytes <= 0 {
		return nil
	}

	c.buffer = append(c.buffer, data...)

	var units [][]byte
	for len(c.buffer) >= c.targetBytes {
		// the 44-byte header for fixed-size 16-bit PCM cannot fail to encode
		wav, _ := EncodeWAV(c.buffer[:c.targetBytes], c.sampleRate, c.channels)
		units = append(units, wav)
		c.buffer = c.buffer[c.targetBytes:]
	}

	if len(c.buffer) == 0 {
		c.buffer = make([]byte, 0, c.targetBytes)
	}

	return units
}

// Buffered returns the number of bytes waiting for the next chunk
func (c *Chunker) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Reset drops any buffered bytes
func (c *Chunker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffer = make([]byte, 0, c.targetBytes)
}
