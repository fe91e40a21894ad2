// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package burst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_MPEGTSPacket_ChunksWithoutTruncation(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 9000)
	for i := range payload {
		payload[i] = byte(i)
	}

	out := mpegTSPacket(payload, 0)

	assert.Equal(0, len(out)%188, "output must be a whole number of 188-byte TS packets")

	wantPackets := (len(payload) + 183) / 184
	assert.Equal(wantPackets, len(out)/188)

	var recovered []byte
	for i := 0; i < len(out); i += 188 {
		pkt := out[i : i+188]
		assert.Equal(byte(0x47), pkt[0], "every packet must carry the sync byte")
		recovered = append(recovered, pkt[4:]...)
	}
	recovered = recovered[:len(payload)]
	assert.Equal(payload, recovered, "chunking must not drop any payload bytes")
}

func Test_MPEGTSPacket_ContinuityCounterIncrements(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 184*3)
	out := mpegTSPacket(payload, 5)

	for i := 0; i < 3; i++ {
		pkt := out[i*188 : i*188+188]
		want := byte(0x10 | ((5 + uint32(i)) & 0x0F))
		assert.Equal(want, pkt[3])
	}
}

func Test_FrameMediaStreaming_HLSSegmentDoesNotTruncate(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 9000)
	out := frameMediaStreaming(payload, 0)

	assert.True(len(out) >= len(payload), "framed output must carry the whole payload")
}
