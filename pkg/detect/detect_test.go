// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package detect

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/fwcfg"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/hash"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/pcd"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/smbios"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var tables = []byte{0x00, 0x18, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00}

func anchorV2(t *testing.T, major, minor uint8) []byte {
	t.Helper()
	b, err := smbios.NewEntryPointV2(smbios.Version{Major: major, Minor: minor}, uint16(len(tables)), 0xf0000, 1).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	return b
}

func anchorV3(t *testing.T, major, minor, docRev uint8) []byte {
	t.Helper()
	b, err := smbios.NewEntryPointV3(smbios.Version{Major: major, Minor: minor}, docRev, uint32(len(tables)), 0).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	return b
}

func channel(anchor, tbl []byte) *fwcfg.Memory {
	files := map[string][]byte{}
	if anchor != nil {
		files[AnchorFile] = anchor
	}
	if tbl != nil {
		files[TablesFile] = tbl
	}
	return fwcfg.NewMemory(files)
}

func TestDetectV2(t *testing.T) {
	store := pcd.NewMemoryStore(nil)
	// A stale doc revision from elsewhere must survive the 2.x path.
	store.Set8(pcd.SmbiosDocRev, 7)

	r, err := Detect(channel(anchorV2(t, 2, 8), tables), store)
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
	if v, ok := store.Get16(pcd.SmbiosVersion); !ok || v != 0x0208 {
		t.Errorf("PcdSmbiosVersion = %#04x, %v; want 0x0208", v, ok)
	}
	if v, _ := store.Get8(pcd.SmbiosDocRev); v != 7 {
		t.Errorf("PcdSmbiosDocRev = %d; want untouched 7", v)
	}
	if v, ok := store.GetBool(pcd.QemuSmbiosValidated); !ok || !v {
		t.Errorf("PcdQemuSmbiosValidated = %v, %v; want true", v, ok)
	}
	if r.Anchor.Layout() != smbios.LayoutV2 || r.HasDocRev || r.AnchorSize != smbios.SizeV2 || r.TablesSize != len(tables) {
		t.Errorf("Detect() = %+v", r)
	}
}

func TestDetectV3(t *testing.T) {
	store := pcd.NewMemoryStore(nil)
	anchor := anchorV3(t, 3, 6, 1)
	r, err := Detect(channel(anchor, tables), store)
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
	if v, ok := store.Get16(pcd.SmbiosVersion); !ok || v != 0x0306 {
		t.Errorf("PcdSmbiosVersion = %#04x, %v; want 0x0306", v, ok)
	}
	if v, ok := store.Get8(pcd.SmbiosDocRev); !ok || v != 1 {
		t.Errorf("PcdSmbiosDocRev = %d, %v; want 1", v, ok)
	}
	if v, ok := store.GetBool(pcd.QemuSmbiosValidated); !ok || !v {
		t.Errorf("PcdQemuSmbiosValidated = %v, %v; want true", v, ok)
	}
	if r.Version != (smbios.Version{Major: 3, Minor: 6}) || !r.HasDocRev || r.DocRev != 1 {
		t.Errorf("Detect() = %+v", r)
	}
	if diff := cmp.Diff(hash.Fingerprint(anchor), r.Fingerprint); diff != "" {
		t.Errorf("Fingerprint mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectAllVersions(t *testing.T) {
	for m := 0; m <= 255; m++ {
		for n := 0; n <= 255; n++ {
			major, minor := uint8(m), uint8(n)
			want := uint16(m)<<8 | uint16(n)

			s2 := pcd.NewMemoryStore(nil)
			if _, err := Detect(channel(anchorV2(t, major, minor), tables), s2); err != nil {
				t.Fatalf("Detect(V2 %d.%d) = %v", m, n, err)
			}
			if v, _ := s2.Get16(pcd.SmbiosVersion); v != want {
				t.Fatalf("V2 %d.%d: PcdSmbiosVersion = %#04x; want %#04x", m, n, v, want)
			}
			if _, ok := s2.Get8(pcd.SmbiosDocRev); ok {
				t.Fatalf("V2 %d.%d: PcdSmbiosDocRev written", m, n)
			}

			s3 := pcd.NewMemoryStore(nil)
			docRev := major ^ minor
			if _, err := Detect(channel(anchorV3(t, major, minor, docRev), tables), s3); err != nil {
				t.Fatalf("Detect(V3 %d.%d) = %v", m, n, err)
			}
			if v, _ := s3.Get16(pcd.SmbiosVersion); v != want {
				t.Fatalf("V3 %d.%d: PcdSmbiosVersion = %#04x; want %#04x", m, n, v, want)
			}
			if v, _ := s3.Get8(pcd.SmbiosDocRev); v != docRev {
				t.Fatalf("V3 %d.%d: PcdSmbiosDocRev = %d; want %d", m, n, v, docRev)
			}
		}
	}
}

func TestDetectFatal(t *testing.T) {
	testCases := []struct {
		name   string
		anchor []byte
		tables []byte
		kind   Kind
		err    error
	}{
		{"Anchor missing", nil, tables, KindMissingData, fwcfg.ErrNotFound},
		{"Tables missing", make([]byte, smbios.SizeV3), nil, KindMissingData, fwcfg.ErrNotFound},
		{"Tables empty", make([]byte, smbios.SizeV3), []byte{}, KindMissingData, ErrEmptyTables},
		{"Anchor 3 bytes", []byte{1, 2, 3}, tables, KindUnknownAnchorSize, smbios.ErrUnknownAnchorSize},
		{"Anchor empty", []byte{}, tables, KindUnknownAnchorSize, smbios.ErrUnknownAnchorSize},
		{"Anchor too large", make([]byte, smbios.SizeV2+1), tables, KindUnknownAnchorSize, smbios.ErrUnknownAnchorSize},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch := channel(tc.anchor, tc.tables)
			store := pcd.NewMemoryStore(nil)
			r, err := Detect(ch, store)
			if r != nil || !IsFatal(err) || !errors.Is(err, tc.err) {
				t.Fatalf("Detect() = %v, %v; want fatal %v", r, err, tc.err)
			}
			var fe *FatalError
			if errors.As(err, &fe); fe.Kind != tc.kind {
				t.Errorf("Kind = %v; want %v", fe.Kind, tc.kind)
			}
			if w := store.Written(); len(w) != 0 {
				t.Errorf("fatal detection wrote %v", w)
			}
			if ch.Selects() != 0 || ch.Reads() != 0 {
				t.Errorf("anchor was read: %d selects, %d reads", ch.Selects(), ch.Reads())
			}
		})
	}
}

func TestMustDetect(t *testing.T) {
	defer func() {
		err, ok := recover().(error)
		if !ok || !IsFatal(err) {
			t.Errorf("MustDetect() recovered %v; want *FatalError", err)
		}
	}()
	MustDetect(channel([]byte{1, 2, 3}, tables), pcd.NewMemoryStore(nil))
	t.Errorf("MustDetect() returned")
}

func TestDetectIdempotent(t *testing.T) {
	ch := channel(anchorV3(t, 3, 6, 1), tables)
	store := pcd.NewMemoryStore(nil)
	first, err := Detect(ch, store)
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
	v1, _ := store.Get16(pcd.SmbiosVersion)
	d1, _ := store.Get8(pcd.SmbiosDocRev)

	second, err := Detect(ch, store)
	if err != nil {
		t.Fatalf("second Detect() = %v", err)
	}
	v2, _ := store.Get16(pcd.SmbiosVersion)
	d2, _ := store.Get8(pcd.SmbiosDocRev)
	if v1 != v2 || d1 != d2 {
		t.Errorf("slots drifted: %#x/%d then %#x/%d", v1, d1, v2, d2)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
}

type failingStore struct {
	pcd.Store
	fail pcd.Token
}

func (f failingStore) Set8(tok pcd.Token, v uint8) error {
	if tok == f.fail {
		return errors.New("write protected")
	}
	return f.Store.Set8(tok, v)
}

func TestDetectStoreError(t *testing.T) {
	store := pcd.NewMemoryStore(nil)
	_, err := Detect(channel(anchorV3(t, 3, 6, 1), tables), failingStore{store, pcd.SmbiosDocRev})
	if err == nil || IsFatal(err) {
		t.Fatalf("Detect() = %v; want non-fatal store error", err)
	}
	if v, ok := store.GetBool(pcd.QemuSmbiosValidated); ok || v {
		t.Errorf("PcdQemuSmbiosValidated set despite failed write")
	}
	// Writes made before the failure stay in place.
	if v, ok := store.Get16(pcd.SmbiosVersion); !ok || v != 0x0306 {
		t.Errorf("PcdSmbiosVersion = %#04x, %v; want 0x0306", v, ok)
	}
}

func TestDetectCustomNames(t *testing.T) {
	ch := fwcfg.NewMemory(map[string][]byte{
		"opt/anchor": anchorV2(t, 2, 8),
		"opt/tables": tables,
	})
	_, err := Detect(ch, pcd.NewMemoryStore(nil), WithAnchorName("opt/anchor"), WithTablesName("opt/tables"))
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
}

func TestDetectLogging(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	_, err := Detect(channel(anchorV3(t, 3, 6, 1), tables), pcd.NewMemoryStore(nil), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Detect() = %v", err)
	}
	entries := logs.FilterMessage("SMBIOS 3.x entry point").All()
	if len(entries) != 1 {
		t.Fatalf("got %d 3.x entry point log entries; want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tableMaximumSize"] != uint32(len(tables)) || fields["docRev"] != uint8(1) {
		t.Errorf("unexpected log fields %v", fields)
	}
	if logs.FilterMessage("detected SMBIOS version").Len() != 1 {
		t.Errorf("missing summary log entry")
	}
}
