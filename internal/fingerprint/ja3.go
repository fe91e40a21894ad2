// SPDX-FileCopyrightText: 2023 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// JA3 computes the JA3 fingerprint hash of a profile: MD5 over
// "TLSVersion,Ciphers,Extensions,EllipticCurves,EllipticCurvePointFormats"
// with each list dash-joined, mirroring the well-known JA3 definition. This
// is computed over the catalog profile, not a live handshake, so GREASE
// slots appear as the catalog's sentinel value (0xFAFA) rather than a
// per-connection GREASE value — callers comparing against a captured hash
// should strip GREASE codepoints from both sides first, per the JA3
// convention.
func JA3(p Profile) string {
	fields := []string{
		fmt.Sprintf("%d", p.MaxVersion),
		joinUint16(p.CipherSuites),
		joinUint16(p.Extensions),
		joinCurves(p.Curves),
		"0", // EllipticCurvePointFormats: uncompressed only, universal in modern stacks
	}

	sum := md5.Sum([]byte(strings.Join(fields, ",")))
	return hex.EncodeToString(sum[:])
}

func joinUint16(vals []uint16) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, "-")
}

func joinCurves(curves []utls.CurveID) string {
	parts := make([]string, len(curves))
	for i, c := range curves {
		parts[i] = fmt.Sprintf("%d", uint16(c))
	}
	return strings.Join(parts, "-")
}
