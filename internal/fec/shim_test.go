// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Shim_RoundTripWithDroppedParity(t *testing.T) {
	assert := assert.New(t)

	s := New(4, 0.5)
	payload := []byte("the quick brown fox jumps over the lazy dog, several times over")

	packets, err := s.Encode(payload)
	assert.NoError(err)
	assert.True(len(packets) > 4)

	// Drop one parity packet; the remaining data + parity shards must
	// still reconstruct the original payload.
	for i, pkt := range packets {
		if i == len(packets)-1 {
			continue
		}
		recovered, ok, err := s.AddReceivedPacket(pkt)
		assert.NoError(err)
		if ok {
			assert.Equal(payload, recovered)
			return
		}
	}

	t.Fatal("expected reconstruction before all packets were fed")
}

func Test_Shim_RedundancyClamped(t *testing.T) {
	assert := assert.New(t)

	s := New(4, 10) // absurd input, must clamp
	assert.LessOrEqual(s.Redundancy(), MaxRedundancy)

	s2 := New(4, -1)
	assert.GreaterOrEqual(s2.Redundancy(), MinRedundancy)
}

func Test_Shim_RecomputeFromObservedLoss(t *testing.T) {
	assert := assert.New(t)

	s := New(4, 0.1)
	s.UpdateObservedLoss(0.2) // 1.5 * 0.2 = 0.3

	payload := make([]byte, 16)
	for i := 0; i < recomputeEvery; i++ {
		_, err := s.Encode(payload)
		assert.NoError(err)
	}

	assert.InDelta(0.3, s.Redundancy(), 0.01)
}
