package telemetry

import "fmt"

// BlockSize is the number of bytes in one motor feedback block.
const BlockSize = 8

// PayloadSize is the number of raw bytes carried by one telemetry row.
const PayloadSize = BlockSize * len(MotorOrder)

// Motor identifies one joint motor controller.
type Motor int

const (
	RightHip Motor = iota
	RightKnee
	LeftKnee
	LeftHip
)

// MotorOrder is the order in which motor blocks appear in the payload. It is
// part of the wire protocol and must never be reordered.
var MotorOrder = [4]Motor{RightHip, RightKnee, LeftKnee, LeftHip}

func (m Motor) String() string {
	switch m {
	case RightHip:
		return "RightHip"
	case RightKnee:
		return "RightKnee"
	case LeftKnee:
		return "LeftKnee"
	case LeftHip:
		return "LeftHip"
	default:
		return fmt.Sprintf("Motor(%d)", int(m))
	}
}

// Scale factors applied to the raw 16-bit controller values.
const (
	PositionScale = 0.1  // degrees per count
	SpeedScale    = 10.0 // eRPM per count
	CurrentScale  = 0.01 // amps per count
)

var faultText = map[uint8]string{
	0: "OK",
	1: "Motor Over-Temp",
	2: "Over-Current",
	3: "Over-Voltage",
	4: "Under-Voltage",
	5: "Encoder Fault",
	6: "MOSFET Over-Temp",
	7: "Motor Lock",
}

// FaultText returns the operator-facing description of a controller fault
// code. Codes outside the known set render as "Unknown(n)".
func FaultText(code uint8) string {
	if s, ok := faultText[code]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d)", code)
}

// Int16BE combines two bytes into a big-endian two's-complement 16-bit value.
func Int16BE(hi, lo byte) int16 {
	v := int32(hi)<<8 | int32(lo)
	if v >= 0x8000 {
		v -= 0x10000
	}
	return int16(v)
}

// Int8 sign-extends a single byte.
func Int8(b byte) int8 {
	if b > 127 {
		return int8(int(b) - 256)
	}
	return int8(b)
}

// Sample is one motor's decoded feedback. MechRPM is only meaningful when
// HasMechRPM is set; the mechanical speed is absent rather than zero when no
// pole-pair count is configured.
type Sample struct {
	PosDeg     float64
	SpeedERPM  float64
	MechRPM    float64
	HasMechRPM bool
	CurrentA   float64
	TempC      int8
	ErrCode    uint8
	ErrText    string
}

// DecodeBlock decodes one 8-byte motor block laid out as
// [pos_hi, pos_lo, spd_hi, spd_lo, cur_hi, cur_lo, temp, err].
// Passing a block of any other length is a programming error.
func DecodeBlock(block []byte) Sample {
	if len(block) != BlockSize {
		panic(fmt.Sprintf("telemetry: motor block must be %d bytes, got %d", BlockSize, len(block)))
	}
	return Sample{
		PosDeg:    float64(Int16BE(block[0], block[1])) * PositionScale,
		SpeedERPM: float64(Int16BE(block[2], block[3])) * SpeedScale,
		CurrentA:  float64(Int16BE(block[4], block[5])) * CurrentScale,
		TempC:     Int8(block[6]),
		ErrCode:   block[7],
		ErrText:   FaultText(block[7]),
	}
}

// DecodePayload splits a payload into its four motor blocks and decodes each,
// returning samples indexed in MotorOrder.
func DecodePayload(payload *[PayloadSize]byte) [4]Sample {
	var out [4]Sample
	for i := range MotorOrder {
		out[i] = DecodeBlock(payload[i*BlockSize : (i+1)*BlockSize])
	}
	return out
}
