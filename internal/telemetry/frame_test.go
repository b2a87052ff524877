package telemetry

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trueagi-io/Vereya-sub001/pkg/core"
	"github.com/trueagi-io/Vereya-sub001/pkg/missioninit"
)

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, 37, HeaderFloats)
	assert.Equal(t, 148, HeaderSize)
}

func TestEncodeHeader_Layout(t *testing.T) {
	buf := make([]byte, HeaderSize)
	pose := core.Pose{X: 1.5, Y: 64, Z: -3, Yaw: 90, Pitch: -10}
	mv := Identity()
	var proj Matrix
	for i := range proj {
		proj[i] = float32(i)
	}

	EncodeHeader(buf, binary.BigEndian, pose, mv, proj)

	at := func(i int) float32 { return math.Float32frombits(binary.BigEndian.Uint32(buf[i*4:])) }
	assert.Equal(t, float32(1.5), at(0))
	assert.Equal(t, float32(64), at(1))
	assert.Equal(t, float32(-3), at(2))
	assert.Equal(t, float32(90), at(3))
	assert.Equal(t, float32(-10), at(4))
	assert.Equal(t, float32(1), at(5), "model-view row-major starts at float 5")
	assert.Equal(t, float32(0), at(6))
	assert.Equal(t, float32(0), at(21), "projection starts at float 21")
	assert.Equal(t, float32(15), at(36))
}

func TestEncodeHeader_ByteOrders(t *testing.T) {
	for _, name := range []string{"big", "little"} {
		t.Run(name, func(t *testing.T) {
			order, err := ParseByteOrder(name)
			require.NoError(t, err)

			buf := make([]byte, HeaderSize)
			pose := core.Pose{X: 10, Y: 20, Z: 30, Yaw: 40, Pitch: 50}
			EncodeHeader(buf, order, pose, Identity(), Identity())

			gotPose, mv, proj := DecodeHeader(buf, order)
			assert.Equal(t, pose, gotPose)
			assert.Equal(t, Identity(), mv)
			assert.Equal(t, Identity(), proj)
		})
	}

	big := make([]byte, HeaderSize)
	little := make([]byte, HeaderSize)
	EncodeHeader(big, binary.BigEndian, core.Pose{X: 1}, Matrix{}, Matrix{})
	EncodeHeader(little, binary.LittleEndian, core.Pose{X: 1}, Matrix{}, Matrix{})
	assert.Equal(t, []byte{0x3f, 0x80, 0, 0}, big[:4])
	assert.Equal(t, []byte{0, 0, 0x80, 0x3f}, little[:4])
}

func TestParseByteOrder_Unknown(t *testing.T) {
	_, err := ParseByteOrder("middle")
	assert.Error(t, err)
}

func TestPortFor(t *testing.T) {
	agent := missioninit.AgentConnection{
		AgentVideoPort:     1,
		AgentDepthPort:     2,
		AgentLuminancePort: 3,
		AgentColourMapPort: 4,
	}
	assert.Equal(t, 1, PortFor(KindVideo, agent))
	assert.Equal(t, 2, PortFor(KindDepth, agent))
	assert.Equal(t, 3, PortFor(KindLuminance, agent))
	assert.Equal(t, 4, PortFor(KindColourmap, agent))
	assert.Equal(t, 0, PortFor(Kind("audio"), agent))
}
