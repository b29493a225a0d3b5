package protocol

import "fmt"

// The paint grid rides a websocket binary frame instead of JSON: a 60×60
// int8 grid serializes to 3,600 bytes plus a one-byte frame type, versus
// a five-figure JSON array.

// Binary frame types.
const (
	FrameGrid byte = 0x01
)

// EncodeGridFrame packs cell owners into a binary frame. Cells are int8:
// -1 for unowned, otherwise the owning participant number.
func EncodeGridFrame(cells []int8) []byte {
	buf := make([]byte, 1+len(cells))
	buf[0] = FrameGrid
	for i, c := range cells {
		buf[1+i] = byte(c)
	}
	return buf
}

// DecodeGridFrame unpacks a grid binary frame.
func DecodeGridFrame(frame []byte) ([]int8, error) {
	if len(frame) < 1 || frame[0] != FrameGrid {
		return nil, fmt.Errorf("not a grid frame")
	}
	cells := make([]int8, len(frame)-1)
	for i, b := range frame[1:] {
		cells[i] = int8(b)
	}
	return cells, nil
}
