package telemetry

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/trueagi-io/Vereya-sub001/pkg/core"
)

// Header layout: x, y, z, yaw, pitch, then the model-view and projection
// matrices in row-major order, all float32.
const (
	PoseFloats   = 5
	MatrixFloats = 16
	HeaderFloats = PoseFloats + 2*MatrixFloats
	HeaderSize   = HeaderFloats * 4
)

// Matrix is a 4x4 row-major matrix.
type Matrix [MatrixFloats]float32

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// ParseByteOrder maps "big" or "little" to a byte order.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch strings.ToLower(s) {
	case "", "big":
		return binary.BigEndian, nil
	case "little":
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q", s)
	}
}

// EncodeHeader writes pose and matrices into buf, which must hold
// HeaderSize bytes.
func EncodeHeader(buf []byte, order binary.ByteOrder, pose core.Pose, modelView, projection Matrix) {
	_ = buf[HeaderSize-1]
	off := 0
	put := func(f float32) {
		order.PutUint32(buf[off:], math.Float32bits(f))
		off += 4
	}
	put(pose.X)
	put(pose.Y)
	put(pose.Z)
	put(pose.Yaw)
	put(pose.Pitch)
	for _, f := range modelView {
		put(f)
	}
	for _, f := range projection {
		put(f)
	}
}

// DecodeHeader is the inverse of EncodeHeader.
func DecodeHeader(buf []byte, order binary.ByteOrder) (pose core.Pose, modelView, projection Matrix) {
	_ = buf[HeaderSize-1]
	off := 0
	get := func() float32 {
		f := math.Float32frombits(order.Uint32(buf[off:]))
		off += 4
		return f
	}
	pose = core.Pose{X: get(), Y: get(), Z: get(), Yaw: get(), Pitch: get()}
	for i := range modelView {
		modelView[i] = get()
	}
	for i := range projection {
		projection[i] = get()
	}
	return pose, modelView, projection
}
