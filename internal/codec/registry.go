package codec

import "fmt"

// Registry resolves configured format names to codec implementations.
//
// The registry is built once at pipeline start-up and is read-only after
// construction; lookups need no locking.
type Registry struct {
	codecs map[Format]Codec
}

// NewRegistry creates a registry with both supported formats registered.
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[Format]Codec)}
	r.register(NewProtobufCodec())
	r.register(NewJSONCodec())
	return r
}

func (r *Registry) register(c Codec) {
	r.codecs[c.Format()] = c
}

// Lookup returns the codec for a format.
//
// An unknown format is a configuration-consistency error; callers resolve
// their codecs during start-up so the failure surfaces before any event or
// command is processed.
//
// Parameters:
//   - format: Format name from configuration ("json" or "protobuf")
//
// Returns:
//   - Codec: The codec implementation
//   - error: ErrUnknownFormat if no codec is registered for the format
func (r *Registry) Lookup(format Format) (Codec, error) {
	c, ok := r.codecs[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return c, nil
}
