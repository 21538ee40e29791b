// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hash

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint identifies an anchor record in diagnostics and reports.
func Fingerprint(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}

// FingerprintString is the hex form of Fingerprint(b). A nil b is
// fingerprinted like an empty one.
func FingerprintString(b []byte) string {
	return hex.EncodeToString(Fingerprint(b))
}
