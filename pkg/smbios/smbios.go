// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// SMBIOS entry point structures as exposed by QEMU through fw_cfg
// (DSP0134 section 5.2).

package smbios

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Sizes of the two entry point layouts. The anchor blob is classified
	// by its length only.
	SizeV2 = 31
	SizeV3 = 24

	// MaxAnchorSize is the size of the larger of the two layouts.
	MaxAnchorSize = SizeV2
)

var (
	ErrUnknownAnchorSize = errors.New("anchor size matches no known entry point layout")
	ErrInvalidVersion    = errors.New("invalid SMBIOS version")
	ErrUnknownLayout     = errors.New("unknown entry point layout")

	AnchorV2             = [4]byte{'_', 'S', 'M', '_'}
	IntermediateAnchorV2 = [5]byte{'_', 'D', 'M', 'I', '_'}
	AnchorV3             = [5]byte{'_', 'S', 'M', '3', '_'}
)

type Layout int

const (
	LayoutV2 Layout = 2
	LayoutV3 Layout = 3
)

func (l Layout) String() string {
	switch l {
	case LayoutV2:
		return "v2"
	case LayoutV3:
		return "v3"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// Size returns the number of bytes an entry point of this layout occupies.
func (l Layout) Size() int {
	switch l {
	case LayoutV2:
		return SizeV2
	case LayoutV3:
		return SizeV3
	}
	return 0
}

func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(s) {
	case "v2", "2", "2.x":
		return LayoutV2, nil
	case "v3", "3", "3.x":
		return LayoutV3, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLayout, s)
}

// Version is the SMBIOS specification version an entry point advertises.
type Version struct {
	Major uint8
	Minor uint8
}

// Combined packs the version the way PcdSmbiosVersion stores it: major in
// the high byte, minor in the low byte.
func (v Version) Combined() uint16 {
	return uint16(v.Major)<<8 | uint16(v.Minor)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func VersionFromCombined(c uint16) Version {
	return Version{Major: uint8(c >> 8), Minor: uint8(c)}
}

// ParseVersion parses "major.minor".
func ParseVersion(s string) (Version, error) {
	majStr, minStr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	m, err := strconv.ParseUint(majStr, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	n, err := strconv.ParseUint(minStr, 10, 8)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	return Version{Major: uint8(m), Minor: uint8(n)}, nil
}

// Anchor is one of *EntryPointV2 or *EntryPointV3.
type Anchor interface {
	Layout() Layout
	Version() Version
	// TableSize is TableLength for V2 and TableMaximumSize for V3.
	TableSize() uint32
	MarshalBinary() ([]byte, error)

	anchor()
}

// SMBIOS 2.1 (32-bit) entry point structure
type EntryPointV2 struct {
	AnchorString                [4]byte
	EntryPointStructureChecksum uint8
	EntryPointLength            uint8
	MajorVersion                uint8
	MinorVersion                uint8
	MaxStructureSize            uint16
	EntryPointRevision          uint8
	FormattedArea               [5]byte
	IntermediateAnchorString    [5]byte
	IntermediateChecksum        uint8
	TableLength                 uint16
	TableAddress                uint32
	NumberOfSmbiosStructures    uint16
	SmbiosBcdRevision           uint8
}

// SMBIOS 3.0 (64-bit) entry point structure
type EntryPointV3 struct {
	AnchorString                [5]byte
	EntryPointStructureChecksum uint8
	EntryPointLength            uint8
	MajorVersion                uint8
	MinorVersion                uint8
	DocRev                      uint8
	EntryPointRevision          uint8
	Reserved                    uint8
	TableMaximumSize            uint32
	TableAddress                uint64
}

func (*EntryPointV2) anchor() {}
func (*EntryPointV3) anchor() {}

func (e *EntryPointV2) Layout() Layout    { return LayoutV2 }
func (e *EntryPointV2) Version() Version  { return Version{e.MajorVersion, e.MinorVersion} }
func (e *EntryPointV2) TableSize() uint32 { return uint32(e.TableLength) }

func (e *EntryPointV3) Layout() Layout    { return LayoutV3 }
func (e *EntryPointV3) Version() Version  { return Version{e.MajorVersion, e.MinorVersion} }
func (e *EntryPointV3) TableSize() uint32 { return e.TableMaximumSize }

// NewEntryPointV2 returns a 2.x entry point with anchor strings and lengths
// filled in. Checksums are computed by MarshalBinary.
func NewEntryPointV2(v Version, tableLength uint16, tableAddress uint32, structures uint16) *EntryPointV2 {
	return &EntryPointV2{
		AnchorString:             AnchorV2,
		EntryPointLength:         SizeV2,
		MajorVersion:             v.Major,
		MinorVersion:             v.Minor,
		IntermediateAnchorString: IntermediateAnchorV2,
		TableLength:              tableLength,
		TableAddress:             tableAddress,
		NumberOfSmbiosStructures: structures,
		SmbiosBcdRevision:        bcd(v),
	}
}

// NewEntryPointV3 returns a 3.x entry point with anchor string, length and
// entry point revision filled in.
func NewEntryPointV3(v Version, docRev uint8, tableMaxSize uint32, tableAddress uint64) *EntryPointV3 {
	return &EntryPointV3{
		AnchorString:       AnchorV3,
		EntryPointLength:   SizeV3,
		MajorVersion:       v.Major,
		MinorVersion:       v.Minor,
		DocRev:             docRev,
		EntryPointRevision: 1,
		TableMaximumSize:   tableMaxSize,
		TableAddress:       tableAddress,
	}
}

func bcd(v Version) uint8 {
	if v.Major > 9 || v.Minor > 9 {
		return 0
	}
	return v.Major<<4 | v.Minor
}

// ParseAnchor interprets b as the entry point layout whose size equals
// len(b). Any other length yields ErrUnknownAnchorSize; no layout is ever
// partially decoded. Anchor strings and checksums are not verified.
func ParseAnchor(b []byte) (Anchor, error) {
	var a Anchor
	switch len(b) {
	case LayoutV2.Size():
		a = &EntryPointV2{}
	case LayoutV3.Size():
		a = &EntryPointV3{}
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrUnknownAnchorSize, len(b))
	}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, a); err != nil {
		return nil, fmt.Errorf("failed to decode %s entry point: %v", a.Layout(), err)
	}
	return a, nil
}

// Checksum returns the byte that makes the sum of b and itself zero.
func Checksum(b []byte) uint8 {
	var sum uint8
	for _, c := range b {
		sum += c
	}
	return -sum
}

// MarshalBinary encodes the entry point with both checksums computed.
func (e *EntryPointV2) MarshalBinary() ([]byte, error) {
	c := *e
	c.EntryPointStructureChecksum = 0
	c.IntermediateChecksum = 0
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &c); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	// Intermediate checksum covers the _DMI_ structure at offset 0x10.
	b[0x15] = Checksum(b[0x10:])
	b[0x04] = Checksum(b)
	return b, nil
}

func (e *EntryPointV3) MarshalBinary() ([]byte, error) {
	c := *e
	c.EntryPointStructureChecksum = 0
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &c); err != nil {
		return nil, err
	}
	b := buf.Bytes()
	b[0x05] = Checksum(b)
	return b, nil
}
