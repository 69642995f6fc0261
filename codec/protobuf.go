package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
)

// Protobuf serializes generated message types. ctor must return a fresh, non-nil
// message, e.g. func() *pb.User { return &pb.User{} }.
type Protobuf[T proto.Message] struct {
	ctor func() T
	opts proto.MarshalOptions
}

// NewProtobuf builds a Protobuf codec. Deterministic marshaling is enabled so equal
// messages produce equal payloads.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor, opts: proto.MarshalOptions{Deterministic: true}}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return c.opts.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	if c.ctor == nil {
		var zero T
		return zero, errors.New("codec: protobuf codec has no constructor")
	}
	m := c.ctor()
	err := proto.Unmarshal(b, m)
	return m, err
}
