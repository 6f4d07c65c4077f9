// Package transport implements the storage-plane block service
// described in §4.4/§6: a grpc service whose wire format is JSON
// rather than protobuf, since the generated protobuf stubs the teacher
// ships under api/proto are not part of this retrieval pack and protoc
// cannot be run here. Registering a custom grpc codec is a supported
// extension point (encoding.RegisterCodec) that lets plain Go structs
// ride grpc's real framing, flow control, and streaming semantics
// without generated marshal code.
package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec, grpc's pluggable wire format.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }
