// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	mrand "math/rand"
	"sync"

	quic "github.com/quic-go/quic-go"
	utls "github.com/refraction-networking/utls"
	"go.uber.org/zap"

	"github.com/Christopher-Schulze/quicfuscate/internal/tickets"
)

// ZeroRTTConfig bounds how 0-RTT/early-data is attempted per §4.6.
type ZeroRTTConfig struct {
	MaxEarlyData    uint32
	PerHostCap      int
	TokenLifetimeS  int64
	RequireBinding  bool
}

func DefaultZeroRTTConfig() ZeroRTTConfig {
	return ZeroRTTConfig{
		MaxEarlyData:   16 * 1024,
		PerHostCap:     4,
		TokenLifetimeS: 7200,
		RequireBinding: true,
	}
}

// Configurator builds a uTLS client context whose ClientHello is
// byte-equivalent (modulo private randomness) to a chosen browser
// fingerprint, and keeps it in sync with the Session Ticket Store.
type Configurator struct {
	mu sync.Mutex

	log      *zap.Logger
	tickets  *tickets.Store
	rand     *mrand.Rand

	hostname string
	profile  Profile
	useTickets bool

	utlsConfig *utls.Config
}

// Option configures a Configurator at construction.
type Option func(*Configurator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Configurator) { c.log = l }
}

func WithTicketStore(s *tickets.Store) Option {
	return func(c *Configurator) { c.tickets = s }
}

func WithRandSource(r *mrand.Rand) Option {
	return func(c *Configurator) { c.rand = r }
}

func New(opts ...Option) *Configurator {
	c := &Configurator{
		log:  zap.NewNop(),
		rand: mrand.New(mrand.NewSource(cryptoSeed())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cryptoSeed() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	var v int64
	for _, x := range b {
		v = v<<8 | int64(x)
	}
	if v < 0 {
		v = -v
	}
	return v
}

// Initialize installs the profile for the chosen fingerprint and builds the
// uTLS client config for hostname; it builds no QUIC config. Any failure
// degrades to the fallback minimal profile and still returns ok, per
// §4.1's failure semantics.
func (c *Configurator) Initialize(id Identifier, hostname string, caTrust *tls.Config, useSessionTickets bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile, err := c.resolveProfile(id)
	if err != nil {
		c.log.Warn("fingerprint resolution failed, installing fallback profile", zap.Error(err))
		profile = FallbackProfile()
	}

	c.profile = profile
	c.hostname = hostname
	c.useTickets = useSessionTickets

	c.utlsConfig = &utls.Config{ServerName: hostname}
	if caTrust != nil {
		c.utlsConfig.RootCAs = caTrust.RootCAs
		c.utlsConfig.InsecureSkipVerify = caTrust.InsecureSkipVerify
	}

	if useSessionTickets && c.tickets != nil {
		if e := c.tickets.Get(hostname); e != nil {
			c.utlsConfig.SessionTicketKey = ticketKeyFrom(e.Ticket)
		}
	}

	return nil
}

// resolveProfile looks up id in the catalog, handling RANDOMIZED selection
// and bounded perturbation per §4.1 step 1.
func (c *Configurator) resolveProfile(id Identifier) (Profile, error) {
	if id == Randomized {
		return c.randomizedProfile(), nil
	}

	catalog := Catalog()
	p, ok := catalog[id]
	if !ok {
		return Profile{}, fmt.Errorf("unknown fingerprint %q", id)
	}
	return p, nil
}

var (
	desktopProfiles    = []Identifier{ChromeLatest, FirefoxLatest, SafariLatest, EdgeChromium}
	mobileProfiles     = []Identifier{ChromeAndroid, SafariIOS, SamsungBrowser, FirefoxMobile, EdgeMobile}
	uncommonProfiles   = []Identifier{Brave, Opera, Outlook, Thunderbird}
	specializedProfiles = []Identifier{Curl, Chrome70, Firefox63}
)

func (c *Configurator) randomizedProfile() Profile {
	roll := c.rand.Float64()
	var pool []Identifier
	switch {
	case roll < 0.55:
		pool = desktopProfiles
	case roll < 0.90:
		pool = mobileProfiles
	case roll < 0.98:
		pool = uncommonProfiles
	default:
		pool = specializedProfiles
	}

	id := pool[c.rand.Intn(len(pool))]
	p := Catalog()[id]
	c.perturb(&p)
	return p
}

// perturb applies bounded perturbations: swap two non-leading ciphers,
// +/-10% record-size-limit, optional alternate max-fragment-length. The
// leading three ciphers are never touched (compatibility floor).
func (c *Configurator) perturb(p *Profile) {
	const leadingFloor = 3
	if len(p.CipherSuites) > leadingFloor+1 {
		p.CipherSuites = append([]uint16(nil), p.CipherSuites...) // never swap inside the shared catalog slice
		i := leadingFloor + c.rand.Intn(len(p.CipherSuites)-leadingFloor)
		j := leadingFloor + c.rand.Intn(len(p.CipherSuites)-leadingFloor)
		p.CipherSuites[i], p.CipherSuites[j] = p.CipherSuites[j], p.CipherSuites[i]
	}

	if p.RecordSizeLimit > 0 {
		delta := 1 + (c.rand.Float64()*0.2 - 0.1)
		p.RecordSizeLimit = uint16(float64(p.RecordSizeLimit) * delta)
	}

	if c.rand.Float64() < 0.3 && p.MaxFragmentLength == 0 {
		p.MaxFragmentLength = 4 // 4096-byte fragment, a common alternate value
	}
}

// CurrentProfile returns the profile installed by the most recent
// Initialize or ApplyCustomFingerprint call.
func (c *Configurator) CurrentProfile() (Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile.ID == "" {
		return Profile{}, fmt.Errorf("configurator not initialized")
	}
	return c.profile, nil
}

// SetSNI is idempotent and must be called before the first flight if the
// hostname changes.
func (c *Configurator) SetSNI(hostname string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hostname = hostname
	if c.utlsConfig != nil {
		c.utlsConfig.ServerName = hostname
	}
	return nil
}

// ApplyCustomFingerprint installs an arbitrary caller-supplied profile
// under the CUSTOM identifier.
func (c *Configurator) ApplyCustomFingerprint(p Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.ID = Custom
	c.profile = p
	return nil
}

// ApplyZeroRTTExtensions sets Allow0RTT on the wire library's QUIC config
// when the chosen browser's profile allows 0-RTT, and returns an error
// otherwise. It sets no ALPN and no transport parameters.
func (c *Configurator) ApplyZeroRTTExtensions(cfg *quic.Config, id Identifier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	profile := c.profile
	if profile.ID != id && id != Custom {
		if p, ok := Catalog()[id]; ok {
			profile = p
		}
	}

	if !profile.AllowZeroRTT {
		return fmt.Errorf("profile %s does not allow 0-RTT", profile.ID)
	}

	cfg.Allow0RTT = true
	return nil
}

// StoreCurrentSession persists the active session ticket into the Session
// Ticket Store keyed by hostname, for later restoration.
func (c *Configurator) StoreCurrentSession(hostname string, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tickets == nil {
		return
	}
	c.tickets.Store(hostname, raw, string(c.profile.ID))
}

// RestoreSession returns the stored ticket for hostname, if one is
// available and still valid. It does not attach the ticket to the TLS
// handle.
func (c *Configurator) RestoreSession(hostname string) (raw []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tickets == nil {
		return nil, false
	}
	e := c.tickets.Get(hostname)
	if e == nil {
		return nil, false
	}
	return e.Ticket, true
}

// EncodeTicket base64-encodes a ticket for the wire library's
// session-ticket setter, per §6.
func EncodeTicket(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func ticketKeyFrom(raw []byte) [32]byte {
	var key [32]byte
	copy(key[:], raw)
	return key
}

// BuildClientHelloSpec constructs the uTLS ClientHelloSpec for the active
// profile, substituting a fresh RFC 8701 GREASE value at every sentinel
// position so repeated connections don't share one static GREASE
// codepoint.
func (c *Configurator) BuildClientHelloSpec() (*utls.ClientHelloSpec, error) {
	c.mu.Lock()
	profile := c.profile
	c.mu.Unlock()

	return buildClientHelloSpecFromProfile(profile, c.randomGrease)
}

func (c *Configurator) randomGrease() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return randomGreaseValue(c.rand)
}

// randomGreaseValue returns one of the sixteen RFC 8701 GREASE codepoints
// (0x?A?A, nibble repeated).
func randomGreaseValue(r *mrand.Rand) uint16 {
	nibble := uint16(r.Intn(16))
	return nibble<<12 | 0x0A0A | nibble<<4&0x00F0
}

// UClient wraps conn in a uTLS client configured to emit the active
// profile's ClientHello.
func (c *Configurator) UClient(conn utlsConn) (*utls.UConn, error) {
	c.mu.Lock()
	cfg := c.utlsConfig
	c.mu.Unlock()

	if cfg == nil {
		return nil, fmt.Errorf("configurator not initialized")
	}

	spec, err := c.BuildClientHelloSpec()
	if err != nil {
		return nil, err
	}

	tlsConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := tlsConn.ApplyPreset(spec); err != nil {
		return nil, fmt.Errorf("apply client hello preset: %w", err)
	}

	return tlsConn, nil
}

// utlsConn is the minimal net.Conn surface UClient needs; kept as an
// interface so callers can pass a packet-oriented adapter without this
// package importing net directly.
type utlsConn = interface {
	Read(b []byte) (n int, err error)
	Write(b []byte) (n int, err error)
	Close() error
}
