// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Detection of the SMBIOS version QEMU prepared, published as PCDs for the
// SMBIOS table publishing stage.

package detect

import (
	"errors"
	"fmt"

	"github.com/open-source-firmware/go-qemu-smbios/pkg/fwcfg"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/hash"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/pcd"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/smbios"
	"go.uber.org/zap"
)

const (
	AnchorFile = "etc/smbios/smbios-anchor"
	TablesFile = "etc/smbios/smbios-tables"
)

var ErrEmptyTables = errors.New("SMBIOS tables blob is empty")

// Kind classifies a FatalError.
type Kind int

const (
	// The anchor or tables blob is missing, unreadable, or the tables
	// blob is empty.
	KindMissingData Kind = iota + 1
	// The anchor blob size matches no known entry point layout.
	KindUnknownAnchorSize
)

func (k Kind) String() string {
	switch k {
	case KindMissingData:
		return "missing SMBIOS data"
	case KindUnknownAnchorSize:
		return "unrecognized SMBIOS anchor size"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// FatalError means the platform and firmware disagree about SMBIOS and the
// boot must not continue. No PCD has been written when it is returned.
type FatalError struct {
	Kind Kind
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(k Kind, format string, args ...interface{}) error {
	return &FatalError{Kind: k, Err: fmt.Errorf(format, args...)}
}

// Result describes a successful detection.
type Result struct {
	Anchor  smbios.Anchor
	Version smbios.Version
	// DocRev is only meaningful if HasDocRev is set (3.x entry point).
	DocRev      uint8
	HasDocRev   bool
	AnchorSize  int
	TablesSize  int
	Fingerprint []byte
}

type Detector struct {
	log        *zap.Logger
	anchorName string
	tablesName string
}

type Opt func(d *Detector)

func WithLogger(l *zap.Logger) Opt {
	return func(d *Detector) {
		d.log = l
	}
}

// WithAnchorName overrides the fw_cfg file holding the entry point.
func WithAnchorName(name string) Opt {
	return func(d *Detector) {
		d.anchorName = name
	}
}

// WithTablesName overrides the fw_cfg file holding the structure table.
func WithTablesName(name string) Opt {
	return func(d *Detector) {
		d.tablesName = name
	}
}

func New(opts ...Opt) *Detector {
	d := &Detector{
		log:        zap.NewNop(),
		anchorName: AnchorFile,
		tablesName: TablesFile,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Detect runs a Detector with opts.
func Detect(ch fwcfg.Channel, store pcd.Store, opts ...Opt) (*Result, error) {
	return New(opts...).Detect(ch, store)
}

// MustDetect is like Detect but panics on any error, for callers that treat
// a failed detection as an assertion.
func MustDetect(ch fwcfg.Channel, store pcd.Store, opts ...Opt) *Result {
	r, err := Detect(ch, store, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Detect reads the SMBIOS entry point from ch and sets PcdSmbiosVersion,
// PcdSmbiosDocRev (3.x entry point only) and PcdQemuSmbiosValidated in
// store. Errors of type *FatalError must halt the boot and guarantee that
// nothing was written. Any other error comes from store, and slots set
// before the failing write (PcdSmbiosVersion first) keep their new values.
func (d *Detector) Detect(ch fwcfg.Channel, store pcd.Store) (*Result, error) {
	anchor, anchorSize, err := ch.FindFile(d.anchorName)
	if err != nil {
		return nil, fatal(KindMissingData, "%s: %w", d.anchorName, err)
	}
	_, tablesSize, err := ch.FindFile(d.tablesName)
	if err != nil {
		return nil, fatal(KindMissingData, "%s: %w", d.tablesName, err)
	}
	if tablesSize == 0 {
		return nil, fatal(KindMissingData, "%s: %w", d.tablesName, ErrEmptyTables)
	}
	d.log.Debug("located SMBIOS blobs",
		zap.String("anchor", d.anchorName),
		zap.Uint16("anchorKey", uint16(anchor)),
		zap.Int("anchorSize", anchorSize),
		zap.Int("tablesSize", tablesSize))

	// Only a size matching one of the layouts is ever read.
	if anchorSize != smbios.SizeV2 && anchorSize != smbios.SizeV3 {
		return nil, fatal(KindUnknownAnchorSize, "%w: %d bytes", smbios.ErrUnknownAnchorSize, anchorSize)
	}
	var raw [smbios.MaxAnchorSize]byte
	buf := raw[:anchorSize]
	if err := ch.SelectItem(anchor); err != nil {
		return nil, fatal(KindMissingData, "select %s: %w", d.anchorName, err)
	}
	if err := ch.ReadBytes(buf); err != nil {
		return nil, fatal(KindMissingData, "read %s: %w", d.anchorName, err)
	}

	a, err := smbios.ParseAnchor(buf)
	if err != nil {
		return nil, fatal(KindUnknownAnchorSize, "%w", err)
	}
	r := &Result{
		Anchor:      a,
		Version:     a.Version(),
		AnchorSize:  anchorSize,
		TablesSize:  tablesSize,
		Fingerprint: hash.Fingerprint(buf),
	}
	switch ep := a.(type) {
	case *smbios.EntryPointV2:
		d.log.Debug("SMBIOS 2.x entry point",
			zap.Uint8("majorVersion", ep.MajorVersion),
			zap.Uint8("minorVersion", ep.MinorVersion),
			zap.Uint16("tableLength", ep.TableLength))
	case *smbios.EntryPointV3:
		r.DocRev, r.HasDocRev = ep.DocRev, true
		d.log.Debug("SMBIOS 3.x entry point",
			zap.Uint8("majorVersion", ep.MajorVersion),
			zap.Uint8("minorVersion", ep.MinorVersion),
			zap.Uint8("docRev", ep.DocRev),
			zap.Uint32("tableMaximumSize", ep.TableMaximumSize))
	}

	if err := publish(store, r); err != nil {
		return nil, err
	}
	d.log.Info("detected SMBIOS version",
		zap.Stringer("version", r.Version),
		zap.Stringer("layout", a.Layout()))
	return r, nil
}

func publish(store pcd.Store, r *Result) error {
	if err := store.Set16(pcd.SmbiosVersion, r.Version.Combined()); err != nil {
		return fmt.Errorf("failed to set %s: %w", pcd.SmbiosVersion, err)
	}
	if r.HasDocRev {
		if err := store.Set8(pcd.SmbiosDocRev, r.DocRev); err != nil {
			return fmt.Errorf("failed to set %s: %w", pcd.SmbiosDocRev, err)
		}
	}
	if err := store.SetBool(pcd.QemuSmbiosValidated, true); err != nil {
		return fmt.Errorf("failed to set %s: %w", pcd.QemuSmbiosValidated, err)
	}
	return nil
}
