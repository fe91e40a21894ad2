// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package quicconn

import (
	"crypto/tls"

	utls "github.com/refraction-networking/utls"

	"github.com/Christopher-Schulze/quicfuscate/internal/fingerprint"
)

// stdTLSConfigFrom translates a fingerprint Profile into the closest
// equivalent stdlib *tls.Config the wire library's DialEarly accepts.
//
// The wire library (quic-go) drives its own handshake state machine
// through Go's standard crypto/tls, which does not expose a hook for an
// arbitrary ClientHello byte layout the way uTLS does over a plain
// net.Conn. The Configurator's BuildClientHelloSpec/UClient path (§4.1)
// remains the source of truth for the byte-equivalent ClientHello used
// for JA3 computation and for non-quic-go transports; here we carry
// forward every field the standard handshake *can* honor (cipher
// suites, curve preferences, ALPN, min/max version, session-ticket
// enablement) so the two paths stay as close as the wire library allows. See
// DESIGN.md for the reasoning and its limits.
func stdTLSConfigFrom(p fingerprint.Profile, hostname string, caTrust *tls.Config, verifyPeer bool) *tls.Config {
	cfg := &tls.Config{
		ServerName:             hostname,
		MinVersion:             p.MinVersion,
		MaxVersion:             p.MaxVersion,
		NextProtos:             append([]string(nil), p.ALPN...),
		InsecureSkipVerify:     !verifyPeer,
		CipherSuites:           filterStdCiphers(p.CipherSuites),
		CurvePreferences:       toStdCurves(p.Curves),
		SessionTicketsDisabled: p.SessionTickets == fingerprint.TicketOff,
	}

	if caTrust != nil {
		cfg.RootCAs = caTrust.RootCAs
	}

	return cfg
}

// filterStdCiphers keeps only the codepoints the standard library's TLS
// 1.3 stack recognizes as configurable (TLS 1.3 suites are not
// individually selectable via tls.Config.CipherSuites in the standard
// library, so this only narrows a TLS 1.2 fallback's suite list).
func filterStdCiphers(suites []uint16) []uint16 {
	out := make([]uint16, 0, len(suites))
	for _, s := range suites {
		switch s {
		case tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:
			out = append(out, s)
		}
	}
	return out
}

func toStdCurves(curves []utls.CurveID) []tls.CurveID {
	out := make([]tls.CurveID, len(curves))
	for i, c := range curves {
		out[i] = tls.CurveID(c)
	}
	return out
}
