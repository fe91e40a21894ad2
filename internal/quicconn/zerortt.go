// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// masterKey is the process-wide HMAC key used to mint and validate 0-RTT
// tokens. It is generated once, lazily, unless overridden by
// SetZeroRTTMasterKey, per spec.md §5 "Process-wide state".
var (
	masterKeyOnce sync.Once
	masterKeyMu   sync.Mutex
	masterKey     [32]byte
)

func ensureMasterKey() {
	masterKeyOnce.Do(func() {
		masterKeyMu.Lock()
		defer masterKeyMu.Unlock()
		_, _ = rand.Read(masterKey[:])
	})
}

// SetZeroRTTMasterKey overrides the process-wide 0-RTT token key. It must
// be called before any token is generated or validated if the caller
// wants a stable key across process restarts; otherwise a random key is
// generated on first use and lives for the process lifetime.
func SetZeroRTTMasterKey(key [32]byte) {
	// Consume the lazy default so a later first use cannot overwrite key.
	masterKeyOnce.Do(func() {})
	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()
	masterKey = key
}

// GenerateZeroRTTToken mints an HMAC-SHA256 token over "hostname:timestamp_ms"
// using the process-wide master key.
func GenerateZeroRTTToken(hostname string, now time.Time) string {
	ensureMasterKey()

	ts := strconv.FormatInt(now.UnixMilli(), 10)
	masterKeyMu.Lock()
	key := masterKey
	masterKeyMu.Unlock()

	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(hostname))
	mac.Write([]byte(":"))
	mac.Write([]byte(ts))

	return ts + "." + fmt.Sprintf("%x", mac.Sum(nil))
}

// ValidateZeroRTTToken checks a token's HMAC and lifetime in constant
// time, per §4.6.
func ValidateZeroRTTToken(token, hostname string, lifetime time.Duration, now time.Time) bool {
	ensureMasterKey()

	ts, sig, ok := splitToken(token)
	if !ok {
		return false
	}

	tsMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	issued := time.UnixMilli(tsMs)
	if now.Sub(issued) >= lifetime {
		return false
	}

	masterKeyMu.Lock()
	key := masterKey
	masterKeyMu.Unlock()

	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(hostname))
	mac.Write([]byte(":"))
	mac.Write([]byte(ts))
	want := fmt.Sprintf("%x", mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(want), []byte(sig)) == 1
}

func splitToken(token string) (ts, sig string, ok bool) {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return "", "", false
}

// zeroRTTTokens remembers the binding token minted the last time 0-RTT was
// attempted for a given hostname, so a later attempt can check a token
// actually issued in the past instead of one generated on the spot. Kept
// process-wide alongside masterKey.
var (
	zeroRTTTokensMu sync.Mutex
	zeroRTTTokens   = map[string]string{}
)

func rememberZeroRTTToken(hostname, token string) {
	zeroRTTTokensMu.Lock()
	zeroRTTTokens[hostname] = token
	zeroRTTTokensMu.Unlock()
}

func lookupZeroRTTToken(hostname string) (string, bool) {
	zeroRTTTokensMu.Lock()
	defer zeroRTTTokensMu.Unlock()
	t, ok := zeroRTTTokens[hostname]
	return t, ok
}

// attemptZeroRTT returns the raw session ticket to attach for early data,
// or false if no valid ticket exists or rejectIfNoToken forces a normal
// handshake, per §4.6. When the zero-RTT config requires token binding, the
// ticket is only honored if a token bound to this hostname on a prior
// attempt is still within its lifetime; rejectIfNoToken controls whether
// the absence of such a token rejects 0-RTT outright or merely falls back
// to presenting the ticket without a binding guarantee.
func (c *Connection) attemptZeroRTT(hostname string) (ticket []byte, ok bool) {
	if !c.zeroRTTEnabled {
		return nil, false
	}

	raw, found := c.configurator.RestoreSession(hostname)
	if !found {
		return nil, false
	}

	if !c.zeroRTT.RequireBinding {
		return raw, true
	}

	lifetime := time.Duration(c.zeroRTT.TokenLifetimeS) * time.Second
	prior, havePrior := lookupZeroRTTToken(hostname)
	bound := havePrior && ValidateZeroRTTToken(prior, hostname, lifetime, c.nowFunc())

	// Mint the token this attempt will be remembered by regardless of the
	// outcome below, so a host that starts out unbound becomes bound for
	// its next attempt instead of being rejected forever.
	rememberZeroRTTToken(hostname, GenerateZeroRTTToken(hostname, c.nowFunc()))

	if !bound && c.rejectIfNoToken {
		c.log.Debug("no bound zero-rtt token for host, rejecting early data", zap.String("hostname", hostname))
		return nil, false
	}

	return raw, true
}
