// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package burst

import (
	"encoding/binary"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Buffer_AddData_RejectsOverflow(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.MaxBufferBytes = 8
	b := New(WithConfig(cfg))

	assert.True(b.AddData([]byte("1234")))
	assert.False(b.AddData([]byte("12345")))
}

func Test_Buffer_Flush_EmitsFramedBurst(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	cfg.FrameType = HTTP3Chunked
	b := New(WithConfig(cfg))

	var got []byte
	b.SetDataHandler(func(frame []byte) { got = frame })

	b.AddData([]byte("hello world"))
	b.Flush()

	assert.NotEmpty(got)
}

func Test_Frame_WebSocket_LengthFieldMatchesPayload(t *testing.T) {
	assert := assert.New(t)

	r := rand.New(rand.NewSource(1))
	payload := make([]byte, 200)
	frame := frameWebSocket(payload, r)

	assert.Equal(byte(0x82), frame[0]) // FIN + binary opcode, single frame
	// 200 > 125, so the 7-bit length field holds the 126 marker and the real
	// length follows as a 16-bit extended length.
	assert.Equal(byte(126), frame[1]&^0x80)
	length := binary.BigEndian.Uint16(frame[2:4])
	assert.Equal(uint16(200), length)
}

func Test_Frame_HTTP3Chunked_PrefixDecodesToPayloadLength(t *testing.T) {
	assert := assert.New(t)

	payload := make([]byte, 100)
	frame := frameHTTP3Chunked(payload)

	// Small burst: no HEADERS/SETTINGS, just one DATA frame: type(1B) +
	// length-varint(1B, since 100 <= 63? no, 100 > 63 so 2-byte varint).
	assert.Equal(byte(0x00), frame[0]) // DATA frame type
	length := binary.BigEndian.Uint16(frame[1:3]) &^ 0x4000
	assert.Equal(uint16(100), length)
}

func Test_CalculateBurstInterval_WithinBounds(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	b := New(WithConfig(cfg), WithRandSource(rand.New(rand.NewSource(1))))

	b.UpdateNetworkConditions(500, 0.1, 500_000)

	for i := 0; i < 50; i++ {
		b.mu.Lock()
		interval := b.calculateBurstIntervalLocked()
		b.mu.Unlock()

		assert.GreaterOrEqual(interval, time.Duration(cfg.MinIntervalMs)*time.Millisecond)
		assert.LessOrEqual(interval, time.Duration(cfg.MaxIntervalMs)*time.Millisecond)
	}
}

func Test_Buffer_StartStop(t *testing.T) {
	b := New()
	b.SetDataHandler(func([]byte) {})
	b.Start()
	b.Stop()
}
