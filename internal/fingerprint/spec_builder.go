// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import utls "github.com/refraction-networking/utls"

// buildClientHelloSpecFromProfile turns a catalog Profile into a uTLS
// ClientHelloSpec: cipher suites, extensions (in profile order, GREASE
// sentinels substituted via greaseFunc), curves, signature algorithms and
// ALPN all rendered exactly as the profile states them.
func buildClientHelloSpecFromProfile(p Profile, greaseFunc func() uint16) (*utls.ClientHelloSpec, error) {
	ciphers := make([]uint16, 0, len(p.CipherSuites))
	for _, c := range p.CipherSuites {
		if isGreaseSentinel(c) {
			if p.GREASE.Enabled && p.GREASE.Ciphers {
				ciphers = append(ciphers, greaseFunc())
			}
			continue
		}
		ciphers = append(ciphers, c)
	}

	curves := make([]utls.CurveID, 0, len(p.Curves))
	for _, c := range p.Curves {
		if isGreaseSentinel(uint16(c)) {
			if p.GREASE.Enabled && p.GREASE.Groups {
				curves = append(curves, utls.CurveID(greaseFunc()))
			}
			continue
		}
		curves = append(curves, c)
	}

	pointFormats := []uint8{0} // uncompressed

	sigAlgs := make([]utls.SignatureScheme, 0, len(p.SignatureAlgorithms))
	for _, s := range p.SignatureAlgorithms {
		if p.GREASE.Enabled && p.GREASE.SigAlgs && isGreaseSentinel(s) {
			sigAlgs = append(sigAlgs, utls.SignatureScheme(greaseFunc()))
			continue
		}
		sigAlgs = append(sigAlgs, utls.SignatureScheme(s))
	}

	extensions := make([]utls.TLSExtension, 0, len(p.Extensions)+2)
	for _, ext := range p.Extensions {
		if isGreaseSentinel(ext) {
			if p.GREASE.Enabled && p.GREASE.Extensions {
				extensions = append(extensions, &utls.UtlsGREASEExtension{})
			}
			continue
		}

		e := buildExtension(ext, p, curves, pointFormats, sigAlgs)
		if e != nil {
			extensions = append(extensions, e)
		}
	}

	return &utls.ClientHelloSpec{
		CipherSuites:       ciphers,
		CompressionMethods: p.CompressionMethods,
		Extensions:         extensions,
		TLSVersMax:         p.MaxVersion,
		TLSVersMin:         p.MinVersion,
	}, nil
}

// buildExtension maps one TLS extension type code to its concrete uTLS
// extension implementation, in the order the profile lists it.
func buildExtension(id uint16, p Profile, curves []utls.CurveID, pointFormats []uint8, sigAlgs []utls.SignatureScheme) utls.TLSExtension {
	switch id {
	case 0: // server_name
		return &utls.SNIExtension{}
	case 5: // status_request
		return &utls.StatusRequestExtension{}
	case 10: // supported_groups
		return &utls.SupportedCurvesExtension{Curves: curves}
	case 11: // ec_point_formats
		return &utls.SupportedPointsExtension{SupportedPoints: pointFormats}
	case 13: // signature_algorithms
		return &utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: sigAlgs}
	case 16: // application_layer_protocol_negotiation
		return &utls.ALPNExtension{AlpnProtocols: p.ALPN}
	case 18: // signed_certificate_timestamp
		return &utls.SCTExtension{}
	case 21: // padding
		return &utls.UtlsPaddingExtension{GetPaddingLen: utls.BoringPaddingStyle}
	case 22: // encrypt_then_mac
		return &utls.GenericExtension{Id: 22}
	case 23: // extended_master_secret
		return &utls.ExtendedMasterSecretExtension{}
	case 28: // record_size_limit
		return &utls.GenericExtension{Id: 28, Data: []byte{0x40, 0x01}}
	case 34: // delegated_credentials
		return &utls.GenericExtension{Id: 34}
	case 35: // session_ticket
		return &utls.SessionTicketExtension{}
	case 41: // pre_shared_key — left to uTLS's automatic PSK handling on resumption
		return nil
	case 43: // supported_versions
		return &utls.SupportedVersionsExtension{Versions: []uint16{p.MaxVersion, p.MinVersion}}
	case 45: // psk_key_exchange_modes
		return &utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}}
	case 51: // key_share
		return &utls.KeyShareExtension{KeyShares: keySharesFor(curves)}
	case 65281: // renegotiation_info
		return &utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient}
	default:
		return &utls.GenericExtension{Id: id}
	}
}

func keySharesFor(curves []utls.CurveID) []utls.KeyShare {
	if len(curves) == 0 {
		return []utls.KeyShare{{Group: utls.X25519}}
	}
	// Only the leading curve gets an eagerly generated key share; the rest
	// are offered as supported groups only, matching real browser behavior.
	return []utls.KeyShare{{Group: curves[0]}}
}
