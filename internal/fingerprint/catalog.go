// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint holds the static catalog of browser TLS fingerprints
// (C1), the uTLS-backed configurator that turns a chosen fingerprint into a
// byte-equivalent ClientHello (C3), and the rotator that picks which
// fingerprint a new connection should use (C4).
package fingerprint

import utls "github.com/refraction-networking/utls"

// greaseSentinel marks a slot in a catalog entry's cipher/extension/curve
// list where a GREASE codepoint belongs; the configurator substitutes an
// actual RFC 8701 GREASE value per connection so repeated connections don't
// share one static value. 0xFAFA is itself one of the reserved RFC 8701
// GREASE codepoints, so it can never collide with a genuine entry.
const greaseSentinel = 0xFAFA

func isGreaseSentinel(v uint16) bool {
	return v == greaseSentinel
}

// Identifier names one catalog entry.
type Identifier string

const (
	ChromeLatest    Identifier = "chrome_latest"
	FirefoxLatest   Identifier = "firefox_latest"
	SafariLatest    Identifier = "safari_latest"
	EdgeChromium    Identifier = "edge_chromium"
	Brave           Identifier = "brave"
	Opera           Identifier = "opera"
	ChromeAndroid   Identifier = "chrome_android"
	SafariIOS       Identifier = "safari_ios"
	SamsungBrowser  Identifier = "samsung_browser"
	FirefoxMobile   Identifier = "firefox_mobile"
	EdgeMobile      Identifier = "edge_mobile"
	Outlook         Identifier = "outlook"
	Thunderbird     Identifier = "thunderbird"
	Curl            Identifier = "curl"
	Chrome70        Identifier = "chrome_70"
	Firefox63       Identifier = "firefox_63"
	Randomized      Identifier = "random"
	Custom          Identifier = "custom"
)

// TicketPolicy controls whether and how a profile advertises session
// ticket support.
type TicketPolicy int

const (
	TicketOff TicketPolicy = iota
	TicketOn
	TicketExtended
)

// GreasePolicy describes where a profile injects GREASE codepoints.
type GreasePolicy struct {
	Enabled    bool
	Ciphers    bool
	Extensions bool
	Groups     bool
	SigAlgs    bool
}

// Profile is an immutable catalog entry describing one browser+platform
// TLS fingerprint.
type Profile struct {
	ID Identifier

	CipherSuites        []uint16
	Curves              []utls.CurveID
	SignatureAlgorithms []uint16
	// Extensions lists TLS extension type codes in fingerprint order; order
	// is itself part of the fingerprint.
	Extensions []uint16
	ALPN       []string

	MinVersion uint16
	MaxVersion uint16

	GREASE GreasePolicy

	// PaddingTarget is the byte multiple the ClientHello length should be
	// padded to; 0 disables padding.
	PaddingTarget int

	SessionTickets TicketPolicy

	RecordSizeLimit   uint16
	MaxFragmentLength uint8
	AllowZeroRTT      bool

	CompressionMethods []uint8
}

// Chrome-family cipher/extension ordering, shared as a base by every
// Chromium-derived profile in the catalog (Chrome, Edge, Brave, Opera,
// Chrome Android, Samsung Internet).
var chromiumCiphers = []uint16{
	greaseSentinel,
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
}

var chromiumExtensions = []uint16{
	greaseSentinel,
	0,  // server_name
	23, // extended_master_secret
	65281, // renegotiation_info
	10, // supported_groups
	11, // ec_point_formats
	35, // session_ticket
	16, // ALPN
	5,  // status_request
	13, // signature_algorithms
	18, // signed_certificate_timestamp
	51, // key_share
	45, // psk_key_exchange_modes
	43, // supported_versions
	21, // padding
	greaseSentinel,
}

var chromiumCurves = []utls.CurveID{
	greaseSentinel,
	utls.X25519,
	utls.CurveP256,
	utls.CurveP384,
}

var chromiumSigAlgs = []uint16{
	0x0403, // ecdsa_secp256r1_sha256
	0x0804, // rsa_pss_rsae_sha256
	0x0401, // rsa_pkcs1_sha256
	0x0503, // ecdsa_secp384r1_sha384
	0x0805, // rsa_pss_rsae_sha384
	0x0501, // rsa_pkcs1_sha384
	0x0806, // rsa_pss_rsae_sha512
	0x0601, // rsa_pkcs1_sha512
}

var firefoxCiphers = []uint16{
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
}

var firefoxExtensions = []uint16{
	0,     // server_name
	23,    // extended_master_secret
	65281, // renegotiation_info
	10,    // supported_groups
	11,    // ec_point_formats
	16,    // ALPN
	5,     // status_request
	34,    // delegated_credentials
	51,    // key_share
	43,    // supported_versions
	13,    // signature_algorithms
	45,    // psk_key_exchange_modes
	28,    // record_size_limit
	41,    // pre_shared_key
}

var firefoxCurves = []utls.CurveID{
	utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521,
}

var firefoxSigAlgs = []uint16{
	0x0403, 0x0503, 0x0603, 0x0804, 0x0805, 0x0806, 0x0401, 0x0501, 0x0601,
}

var safariCiphers = []uint16{
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	utls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	utls.TLS_RSA_WITH_AES_128_GCM_SHA256,
}

var safariExtensions = []uint16{
	0, 23, 65281, 10, 11, 16, 5, 13, 18, 51, 45, 43, 21,
}

func chromiumProfile(id Identifier, alpn []string) Profile {
	return Profile{
		ID:                  id,
		CipherSuites:        chromiumCiphers,
		Curves:              chromiumCurves,
		SignatureAlgorithms: chromiumSigAlgs,
		Extensions:          chromiumExtensions,
		ALPN:                alpn,
		MinVersion:          utls.VersionTLS13,
		MaxVersion:          utls.VersionTLS13,
		GREASE: GreasePolicy{
			Enabled: true, Ciphers: true, Extensions: true, Groups: true,
		},
		SessionTickets:     TicketExtended,
		AllowZeroRTT:        true,
		CompressionMethods: []uint8{0},
	}
}

func firefoxProfile(id Identifier) Profile {
	return Profile{
		ID:                  id,
		CipherSuites:        firefoxCiphers,
		Curves:              firefoxCurves,
		SignatureAlgorithms: firefoxSigAlgs,
		Extensions:          firefoxExtensions,
		ALPN:                []string{"h3", "h2"},
		MinVersion:          utls.VersionTLS12,
		MaxVersion:          utls.VersionTLS13,
		SessionTickets:      TicketOn,
		AllowZeroRTT:        true,
		CompressionMethods:  []uint8{0},
	}
}

func safariProfile(id Identifier) Profile {
	return Profile{
		ID:                  id,
		CipherSuites:        safariCiphers,
		Curves:              []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384, utls.CurveP521},
		SignatureAlgorithms: chromiumSigAlgs,
		Extensions:          safariExtensions,
		ALPN:                []string{"h2", "http/1.1"},
		MinVersion:          utls.VersionTLS12,
		MaxVersion:          utls.VersionTLS13,
		SessionTickets:      TicketOn,
		CompressionMethods:  []uint8{0},
	}
}

// Catalog returns a newly built map of every built-in (non-synthetic)
// profile, keyed by identifier; the profiles' list fields share
// package-level backing arrays. RANDOMIZED and CUSTOM are both handled by
// the configurator and are not present here.
func Catalog() map[Identifier]Profile {
	return map[Identifier]Profile{
		ChromeLatest:   chromiumProfile(ChromeLatest, []string{"h3", "h2", "http/1.1"}),
		EdgeChromium:   chromiumProfile(EdgeChromium, []string{"h3", "h2", "http/1.1"}),
		Brave:          chromiumProfile(Brave, []string{"h3", "h2", "http/1.1"}),
		Opera:          chromiumProfile(Opera, []string{"h2", "http/1.1"}),
		ChromeAndroid:  chromiumProfile(ChromeAndroid, []string{"h3", "h2", "http/1.1"}),
		SamsungBrowser: chromiumProfile(SamsungBrowser, []string{"h2", "http/1.1"}),
		EdgeMobile:     chromiumProfile(EdgeMobile, []string{"h3", "h2", "http/1.1"}),

		FirefoxLatest: firefoxProfile(FirefoxLatest),
		FirefoxMobile: firefoxProfile(FirefoxMobile),
		Thunderbird:   firefoxProfile(Thunderbird),

		SafariLatest: safariProfile(SafariLatest),
		SafariIOS:    safariProfile(SafariIOS),
		Outlook:      safariProfile(Outlook),

		Chrome70:  oldChromeProfile(),
		Firefox63: oldFirefoxProfile(),
		Curl:      curlProfile(),
	}
}

func oldChromeProfile() Profile {
	p := chromiumProfile(Chrome70, []string{"h2", "http/1.1"})
	p.MinVersion = utls.VersionTLS12
	p.GREASE = GreasePolicy{}
	p.SessionTickets = TicketOn
	p.AllowZeroRTT = false
	return p
}

func oldFirefoxProfile() Profile {
	p := firefoxProfile(Firefox63)
	p.MaxVersion = utls.VersionTLS12
	p.AllowZeroRTT = false
	return p
}

func curlProfile() Profile {
	return Profile{
		ID:                  Curl,
		CipherSuites:        []uint16{utls.TLS_AES_128_GCM_SHA256, utls.TLS_AES_256_GCM_SHA384, utls.TLS_CHACHA20_POLY1305_SHA256},
		Curves:              []utls.CurveID{utls.X25519, utls.CurveP256},
		SignatureAlgorithms: chromiumSigAlgs,
		Extensions:          []uint16{0, 10, 11, 13, 16, 43, 51},
		ALPN:                []string{"h2", "http/1.1"},
		MinVersion:          utls.VersionTLS12,
		MaxVersion:          utls.VersionTLS13,
		SessionTickets:      TicketOff,
		CompressionMethods:  []uint8{0},
	}
}

// FallbackProfile is the minimal profile installed when any configuration
// step fails: stealth degradation rather than connection failure.
func FallbackProfile() Profile {
	return Profile{
		ID: Custom,
		CipherSuites: []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_CHACHA20_POLY1305_SHA256,
		},
		Curves:             []utls.CurveID{utls.X25519, utls.CurveP256},
		Extensions:         []uint16{0, 10, 11, 13, 16, 43, 51},
		ALPN:               []string{"h3"},
		MinVersion:         utls.VersionTLS13,
		MaxVersion:         utls.VersionTLS13,
		SessionTickets:     TicketOff,
		CompressionMethods: []uint8{0},
	}
}
