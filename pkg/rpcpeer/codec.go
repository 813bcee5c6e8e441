// Package rpcpeer carries Raft peer RPCs and client proposals over gRPC
// between separate processes. No .proto definitions survive for this
// service, so the wire messages are plain Go structs (see messages.go)
// and a JSON codec stands in for protobuf's generated marshalling.
package rpcpeer

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements grpc/encoding.Codec, letting the grpc-go runtime
// carry plain structs instead of protobuf messages.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }
