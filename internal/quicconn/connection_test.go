// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Christopher-Schulze/quicfuscate/internal/congestion"
	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
)

func Test_New_Defaults(t *testing.T) {
	assert := assert.New(t)

	c, err := New()
	assert.NoError(err)
	assert.NotNil(c)
	assert.Equal(15_000_000_000, int(c.connectTimeout))
}

func Test_New_AppliesOptions(t *testing.T) {
	assert := assert.New(t)

	c, err := New(
		Fingerprint(fingerprint.ChromeLatest),
		EnableBBR(true),
		EnableFEC(true),
		EnableBurst(true),
	)
	assert.NoError(err)
	assert.NotNil(c.bbr)
	assert.NotNil(c.fec)
	assert.NotNil(c.burst)
}

func Test_Connection_NotConnected(t *testing.T) {
	assert := assert.New(t)

	c, err := New()
	assert.NoError(err)

	_, err = c.CreateStream()
	assert.ErrorIs(err, ErrNotConnected)

	err = c.SendDatagram([]byte("hi"))
	assert.ErrorIs(err, ErrNotConnected)
}

func Test_Connection_GetStats_Empty(t *testing.T) {
	assert := assert.New(t)

	c, err := New(EnableBBR(true))
	assert.NoError(err)

	stats := c.GetStats()
	assert.False(stats.Established)
	assert.Equal(congestion.Startup, stats.BBR.Mode)
}

func Test_Connection_FECRedundancyRequiresEnable(t *testing.T) {
	assert := assert.New(t)

	c, err := New()
	assert.NoError(err)

	err = c.SetFECRedundancyRate(0.3)
	assert.ErrorIs(err, ErrConfig)

	c.EnableFEC(true)
	assert.NoError(c.SetFECRedundancyRate(0.3))
}
