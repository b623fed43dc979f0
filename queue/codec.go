package queue

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Codec serializes envelopes. Envelopes are always handed to a Codec as
// plain maps, slices and scalars, so any codec able to represent those can
// carry tasks and results.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

// JSON returns the default codec: compact UTF-8 JSON. Content-Type: application/json
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) ContentType() string                { return "application/json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a deterministic CBOR codec. Maps decode as map[string]any so
// envelopes look the same as with JSON. Content-Type: application/cbor
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) ContentType() string                { return "application/cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }

type protoJSONCodec struct{}

// ProtoJSON returns a codec that routes envelopes through structpb and
// protojson. The output is JSON text readable by the JSON codec; values are
// limited to what google.protobuf.Value can hold, and all numbers decode as
// float64. Content-Type: application/x-protobuf+json
func ProtoJSON() Codec { return protoJSONCodec{} }

func (protoJSONCodec) ContentType() string { return "application/x-protobuf+json" }

func (protoJSONCodec) Marshal(v any) ([]byte, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{}.Marshal(pv)
}

func (protoJSONCodec) Unmarshal(data []byte, v any) error {
	var pv structpb.Value
	if err := protojson.Unmarshal(data, &pv); err != nil {
		return err
	}
	switch out := v.(type) {
	case *map[string]any:
		s := pv.GetStructValue()
		if s == nil {
			return fmt.Errorf("protojson codec: expected an object")
		}
		*out = s.AsMap()
	case *any:
		*out = pv.AsInterface()
	default:
		return fmt.Errorf("protojson codec: unsupported target %T", v)
	}
	return nil
}

// Registry maps content types and short names to codecs.
type Registry struct {
	byType map[string]Codec
	byName map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, CBOR and ProtoJSON,
// reachable by content type or by the names "json", "cbor" and "protojson".
func NewRegistry() *Registry {
	r := &Registry{
		byType: make(map[string]Codec),
		byName: make(map[string]Codec),
	}
	r.Register("json", JSON())
	r.Register("protojson", ProtoJSON())
	if c, err := CBOR(); err == nil {
		r.Register("cbor", c)
	}
	return r
}

// Register adds a codec under a short name and its content type.
func (r *Registry) Register(name string, c Codec) {
	r.byName[strings.ToLower(name)] = c
	r.byType[c.ContentType()] = c
}

// Get returns a codec by short name or content type, or nil.
func (r *Registry) Get(key string) Codec {
	if c, ok := r.byName[strings.ToLower(key)]; ok {
		return c
	}
	return r.byType[key]
}

var defaultRegistry = NewRegistry()

// CodecByName resolves a codec from the default registry. An empty name
// selects JSON.
func CodecByName(name string) (Codec, error) {
	if name == "" {
		return JSON(), nil
	}
	c := defaultRegistry.Get(name)
	if c == nil {
		return nil, fmt.Errorf("unknown codec %q", name)
	}
	return c, nil
}
