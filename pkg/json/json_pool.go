// Package json wraps goccy/go-json with pooled buffers and decoders that keep
// numbers as json.Number, so listing ids survive a decode without turning
// into floats.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/thor/pkg/pool"
)

// Number is a JSON number literal kept as its source text.
type Number = gojson.Number

// RawMessage is a raw encoded JSON value.
type RawMessage = gojson.RawMessage

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	return pool.GetBuffer()
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	pool.PutBuffer(buf)
}

// NewEncoder returns an encoder that does not escape HTML, since listing
// titles and URLs are written verbatim.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that yields json.Number for numeric values.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalString marshals v and returns the result as a string.
func MarshalString(v interface{}) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MarshalIndent is a drop-in replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal is a drop-in replacement for json.Unmarshal. Numbers decoded into
// interface values become float64; use DecodeNumber to keep them exact.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// DecodeNumber unmarshals data into v keeping numbers as json.Number.
func DecodeNumber(data []byte, v interface{}) error {
	return NewDecoder(bytes.NewReader(data)).Decode(v)
}

// MarshalToWriter marshals v directly to a writer, followed by a newline.
func MarshalToWriter(w io.Writer, v interface{}) error {
	return NewEncoder(w).Encode(v)
}

// MarshalLines marshals each value on its own line.
func MarshalLines[T any](values []T) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := NewEncoder(buf)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return nil, err
		}
	}

	return pool.Copy(buf), nil
}

// StreamingEncoder writes values either as line-delimited JSON or as a
// single JSON array.
type StreamingEncoder struct {
	writer      io.Writer
	encoder     *gojson.Encoder
	firstRecord bool
	isArray     bool
	err         error
}

// NewStreamingEncoder creates a new streaming encoder
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	se := &StreamingEncoder{
		writer:      w,
		encoder:     NewEncoder(w),
		firstRecord: true,
		isArray:     isArray,
	}
	if isArray {
		_, se.err = w.Write([]byte{'['})
	}
	return se
}

// Encode encodes a single value
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.err != nil {
		return se.err
	}
	if se.isArray {
		if !se.firstRecord {
			if _, err := se.writer.Write([]byte{','}); err != nil {
				se.err = err
				return err
			}
		}
		se.firstRecord = false
	}
	if err := se.encoder.Encode(v); err != nil {
		se.err = err
		return err
	}
	return nil
}

// Close finalizes the encoding
func (se *StreamingEncoder) Close() error {
	if se.err != nil {
		return se.err
	}
	if se.isArray {
		_, err := se.writer.Write([]byte{']'})
		return err
	}
	return nil
}
