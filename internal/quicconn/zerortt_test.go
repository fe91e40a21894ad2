// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
	"github.com/Christopher-Schulze/quicfuscate/internal/tickets"
)

func Test_ZeroRTTToken_RoundTrip(t *testing.T) {
	assert := assert.New(t)

	SetZeroRTTMasterKey([32]byte{1, 2, 3, 4})

	now := time.Unix(1_700_000_000, 0)
	token := GenerateZeroRTTToken("example.com", now)

	assert.True(ValidateZeroRTTToken(token, "example.com", time.Hour, now.Add(time.Minute)))
	assert.False(ValidateZeroRTTToken(token, "other.example.com", time.Hour, now.Add(time.Minute)),
		"a token minted for one host must not validate for another")
	assert.False(ValidateZeroRTTToken(token, "example.com", time.Hour, now.Add(2*time.Hour)),
		"a token older than its lifetime must not validate")
}

func Test_ZeroRTTToken_Malformed(t *testing.T) {
	assert := assert.New(t)
	assert.False(ValidateZeroRTTToken("not-a-token", "example.com", time.Hour, time.Now()))
	assert.False(ValidateZeroRTTToken("", "example.com", time.Hour, time.Now()))
}

func Test_AttemptZeroRTT_RequireBindingRejectsFirstAttempt(t *testing.T) {
	assert := assert.New(t)

	store := tickets.New()
	store.Store("bind.example", []byte("ticket"), "chrome_latest")

	c, err := New(
		TicketStore(store),
		EnableZeroRTT(true),
		ZeroRTTConfig(fingerprint.ZeroRTTConfig{RequireBinding: true, TokenLifetimeS: 7200}),
		RejectIfNoToken(true),
	)
	assert.NoError(err)

	_, ok := c.attemptZeroRTT("bind.example")
	assert.False(ok, "a host with no previously bound token must be rejected when reject_if_no_token is set")

	_, ok = c.attemptZeroRTT("bind.example")
	assert.True(ok, "the first attempt must have minted a token the second attempt can bind to")
}

func Test_AttemptZeroRTT_RequireBindingFallsBackWithoutReject(t *testing.T) {
	assert := assert.New(t)

	store := tickets.New()
	store.Store("fallback.example", []byte("ticket"), "chrome_latest")

	c, err := New(
		TicketStore(store),
		EnableZeroRTT(true),
		ZeroRTTConfig(fingerprint.ZeroRTTConfig{RequireBinding: true, TokenLifetimeS: 7200}),
		RejectIfNoToken(false),
	)
	assert.NoError(err)

	ticket, ok := c.attemptZeroRTT("fallback.example")
	assert.True(ok)
	assert.Equal([]byte("ticket"), ticket)
}

func Test_AttemptZeroRTT_NoTicketAlwaysFails(t *testing.T) {
	assert := assert.New(t)

	c, err := New(
		TicketStore(tickets.New()),
		EnableZeroRTT(true),
		RejectIfNoToken(true),
	)
	assert.NoError(err)

	_, ok := c.attemptZeroRTT("never-seen.example")
	assert.False(ok)
}
