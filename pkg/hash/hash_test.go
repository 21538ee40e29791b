package hash

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestFingerprint(t *testing.T) {
	got := Fingerprint([]byte("abc"))
	want, _ := hex.DecodeString("bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319")
	if !bytes.Equal(want, got) {
		t.Errorf("Unexpected BLAKE2b-256 fingerprint, got %s want %s", hex.EncodeToString(got), hex.EncodeToString(want))
	}
}

func TestFingerprintString(t *testing.T) {
	if got, want := FingerprintString([]byte{}), "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8"; got != want {
		t.Errorf("FingerprintString(empty) = %s; want %s", got, want)
	}
	if got, want := FingerprintString(nil), FingerprintString([]byte{}); got != want {
		t.Errorf("FingerprintString(nil) = %s; want %s", got, want)
	}
}
