package wire

import "math"

// Range describes how one scalar field is packed into Bits bits over
// [Min, Max]. The same Range drives encode and decode, so a round trip is
// exact up to Error().
type Range struct {
	Bits   uint
	Min    float32
	Max    float32
	Signed bool
}

// Common field ranges used by the terse object-update layout.
var (
	PositionRange = Range{Bits: 16, Min: -0.5 * 256.0, Max: 1.5 * 256.0}
	VelocityRange = Range{Bits: 16, Min: -128.0, Max: 128.0}
	RotationRange = Range{Bits: 16, Min: -1.0, Max: 1.0}
	AngularRange  = Range{Bits: 16, Min: -64.0, Max: 64.0}
)

// Error returns the maximum round-trip error of the range.
func (r Range) Error() float32 {
	return (r.Max - r.Min) / float32(r.maxQuantized())
}

func (r Range) maxQuantized() uint32 {
	return 1<<r.Bits - 1
}

// Quantize clamps v to [r.Min, r.Max], normalizes it to [0, 1] and scales
// to the integer range, rounding to nearest.
func Quantize(v float32, r Range) uint32 {
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	norm := float64(v-r.Min) / float64(r.Max-r.Min)
	return uint32(math.Round(norm * float64(r.maxQuantized())))
}

// Dequantize is the inverse linear mapping of Quantize.
func Dequantize(q uint32, r Range) float32 {
	norm := float64(q) / float64(r.maxQuantized())
	return r.Min + float32(norm*float64(r.Max-r.Min))
}

// FloatToByte packs v into one byte over [lower, upper].
func FloatToByte(v, lower, upper float32) byte {
	return byte(Quantize(v, Range{Bits: 8, Min: lower, Max: upper}))
}

// ByteToFloat unpacks a byte over [lower, upper].
func ByteToFloat(b byte, lower, upper float32) float32 {
	return Dequantize(uint32(b), Range{Bits: 8, Min: lower, Max: upper})
}

// FloatToUint16 packs v into a uint16 over [lower, upper].
func FloatToUint16(v, lower, upper float32) uint16 {
	return uint16(Quantize(v, Range{Bits: 16, Min: lower, Max: upper}))
}

// Uint16ToFloat unpacks a uint16 over [lower, upper].
func Uint16ToFloat(u uint16, lower, upper float32) float32 {
	return Dequantize(uint32(u), Range{Bits: 16, Min: lower, Max: upper})
}
