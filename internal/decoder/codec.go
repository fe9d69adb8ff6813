package decoder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAgain means the codec cannot make progress until the other side
	// of it is serviced.
	ErrAgain = errors.New("decoder: resource temporarily unavailable")
	// ErrClosed is returned by a closed codec.
	ErrClosed = errors.New("decoder: closed")
	// ErrUnknownCodec is returned by Open for unregistered names.
	ErrUnknownCodec = errors.New("decoder: unknown codec")
)

// Codec is a video decoder backend. SendPacket returns ErrAgain when output
// frames must be received first; ReceiveFrame returns ErrAgain when no frame
// is ready.
type Codec interface {
	SendPacket(data []byte) error
	ReceiveFrame() (*Frame, error)
	Close() error
}

// HardwareCodec decodes into device memory. TransferFrame copies a received
// frame into system memory as NV12.
type HardwareCodec interface {
	Codec
	TransferFrame(*Frame) (*Frame, error)
}

// Factory creates a codec instance
type Factory func() (Codec, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a codec available by name. It panics on duplicates.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("decoder: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("decoder: Register called twice for " + name)
	}
	registry[name] = factory
}

// Open creates the codec registered under name.
func Open(name string) (Codec, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return factory()
}

// Codecs returns the registered names in order.
func Codecs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
