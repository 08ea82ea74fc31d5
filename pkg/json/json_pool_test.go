package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNumberKeepsIntegers(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, DecodeNumber([]byte(`{"postingId":7781234567,"price":12.5}`), &v))

	id, ok := v["postingId"].(Number)
	require.True(t, ok)
	assert.Equal(t, "7781234567", id.String())
	assert.Equal(t, Number("12.5"), v["price"])
}

func TestUnmarshalUsesFloats(t *testing.T) {
	var v map[string]interface{}
	require.NoError(t, Unmarshal([]byte(`{"n":3}`), &v))
	assert.Equal(t, float64(3), v["n"])
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarshalToWriter(&buf, map[string]string{"url": "https://x.test/?a=1&b=2"}))
	assert.Equal(t, "{\"url\":\"https://x.test/?a=1&b=2\"}\n", buf.String())
}

func TestMarshalLines(t *testing.T) {
	out, err := MarshalLines([]map[string]int{{"a": 1}, {"b": 2}})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", string(out))

	empty, err := MarshalLines([]int(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStreamingEncoder(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		var buf bytes.Buffer
		se := NewStreamingEncoder(&buf, true)
		require.NoError(t, se.Encode(1))
		require.NoError(t, se.Encode("two"))
		require.NoError(t, se.Close())

		var got []interface{}
		require.NoError(t, Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, []interface{}{float64(1), "two"}, got)
	})

	t.Run("lines", func(t *testing.T) {
		var buf bytes.Buffer
		se := NewStreamingEncoder(&buf, false)
		require.NoError(t, se.Encode(map[string]int{"a": 1}))
		require.NoError(t, se.Encode(map[string]int{"a": 2}))
		require.NoError(t, se.Close())
		assert.Equal(t, "{\"a\":1}\n{\"a\":2}\n", buf.String())
	})
}

func BenchmarkDecodeNumber(b *testing.B) {
	data := []byte(`{"data":{"items":[{"id":1,"price":9900},{"id":2,"price":12000}],"count":2}}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var v map[string]interface{}
		if err := DecodeNumber(data, &v); err != nil {
			b.Fatal(err)
		}
	}
}
