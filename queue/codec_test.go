package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecs_TaskRoundTrip(t *testing.T) {
	cbor, err := CBOR()
	require.NoError(t, err)

	codecs := map[string]Codec{
		"json":      JSON(),
		"cbor":      cbor,
		"protojson": ProtoJSON(),
	}

	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			id, data, err := EncodeTask(c, Op("concat"), []any{"Hazem", "Imam", 3}, map[string]any{"sep": " "})
			require.NoError(t, err)

			task, err := DecodeTask(c, data)
			require.NoError(t, err)

			assert.Equal(t, id, task.ID)
			assert.Equal(t, "concat", task.Operation)
			require.Len(t, task.Args, 3)
			assert.Equal(t, "Hazem", task.Args[0])
			assert.Equal(t, "Imam", task.Args[1])
			assert.EqualValues(t, 3, task.Args[2])
			assert.Equal(t, " ", task.Kwargs["sep"])
		})
	}
}

func TestCodecs_ResultRoundTrip(t *testing.T) {
	cbor, err := CBOR()
	require.NoError(t, err)

	for name, c := range map[string]Codec{"json": JSON(), "cbor": cbor, "protojson": ProtoJSON()} {
		t.Run(name, func(t *testing.T) {
			data, err := EncodeResult(c, "HazemImam")
			require.NoError(t, err)
			res, err := DecodeResult(c, data)
			require.NoError(t, err)
			assert.Equal(t, "HazemImam", res.Value)

			data, err = EncodeError(c, assert.AnError)
			require.NoError(t, err)
			res, err = DecodeResult(c, data)
			require.NoError(t, err)
			assert.True(t, res.HasError())
			assert.Equal(t, assert.AnError.Error(), res.Error)
		})
	}
}

func TestProtoJSON_Unmarshal(t *testing.T) {
	c := ProtoJSON()

	var anyOut any
	require.NoError(t, c.Unmarshal([]byte(`[1,"two"]`), &anyOut))
	assert.Equal(t, []any{1.0, "two"}, anyOut)

	var m map[string]any
	err := c.Unmarshal([]byte(`[1]`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected an object")

	var s string
	err = c.Unmarshal([]byte(`"x"`), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported target")
}

func TestCodecByName(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
	}{
		{"", "application/json"},
		{"json", "application/json"},
		{"JSON", "application/json"},
		{"cbor", "application/cbor"},
		{"protojson", "application/x-protobuf+json"},
		{"application/cbor", "application/cbor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := CodecByName(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, c.ContentType())
		})
	}

	_, err := CodecByName("msgpack")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown codec")
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.Get("custom"))

	r.Register("Custom", JSON())
	assert.NotNil(t, r.Get("custom"))
}
