package comm

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Number is the element type of the numeric payloads moved between ranks
type Number interface {
	int | float64
}

const wordSize = 8

// EncodeInts packs ints as little endian 64 bit words
func EncodeInts(vals []int) []byte {
	buf := make([]byte, 0, len(vals)*wordSize)
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(int64(v)))
	}
	return buf
}

// DecodeInts is the inverse of EncodeInts
func DecodeInts(buf []byte) ([]int, error) {
	if len(buf)%wordSize != 0 {
		return nil, fmt.Errorf("%w: int payload of %d bytes", ErrProtocol, len(buf))
	}
	vals := make([]int, len(buf)/wordSize)
	for i := range vals {
		vals[i] = int(int64(binary.LittleEndian.Uint64(buf[i*wordSize:])))
	}
	return vals, nil
}

// EncodeFloats packs float64s as little endian IEEE-754 words
func EncodeFloats(vals []float64) []byte {
	buf := make([]byte, 0, len(vals)*wordSize)
	for _, v := range vals {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// DecodeFloats is the inverse of EncodeFloats
func DecodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%wordSize != 0 {
		return nil, fmt.Errorf("%w: float payload of %d bytes", ErrProtocol, len(buf))
	}
	vals := make([]float64, len(buf)/wordSize)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*wordSize:]))
	}
	return vals, nil
}

// Encode packs a numeric slice
func Encode[T Number](vals []T) []byte {
	switch v := any(vals).(type) {
	case []int:
		return EncodeInts(v)
	case []float64:
		return EncodeFloats(v)
	}
	panic("unreachable")
}

// Decode unpacks a numeric slice
func Decode[T Number](buf []byte) ([]T, error) {
	var zero T
	switch any(zero).(type) {
	case int:
		v, err := DecodeInts(buf)
		return any(v).([]T), err
	case float64:
		v, err := DecodeFloats(buf)
		return any(v).([]T), err
	}
	panic("unreachable")
}
