// Package mic captures microphone audio as PCM s16le frames for the
// speech-to-text collaborator.
package mic

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate matches what the recognition stream expects.
	SampleRate = 16000

	framesPerBuffer = 1024
)

// Capture owns the default input device for its lifetime. Frames are handed
// to the sink from PortAudio's callback; the sink must not block.
type Capture struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	started bool
}

// Open initializes PortAudio and opens the default input device. Every
// captured frame is encoded little-endian and passed to sink.
func Open(sink func(pcm []byte)) (*Capture, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink must not be nil")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	c := &Capture{}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), framesPerBuffer, func(in []int16) {
		buf := make([]byte, 2*len(in))
		for i, sample := range in {
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(sample))
		}
		sink(buf)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// Start begins capturing.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("start input stream: %w", err)
	}
	c.started = true
	return nil
}

// Close stops capturing and releases the device. Safe to call twice.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	if c.started {
		_ = c.stream.Stop()
		c.started = false
	}
	err := c.stream.Close()
	c.stream = nil
	if terr := portaudio.Terminate(); err == nil {
		err = terr
	}
	return err
}
