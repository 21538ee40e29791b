// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/davecgh/go-spew/spew"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/cmdutil"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/detect"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/fwcfg"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/hash"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/pcd"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/smbios"
	"go.uber.org/zap"
)

// context is the context struct required by kong command line parser
type context struct {
	log *zap.Logger
	out io.Writer
	// tty is consulted to resolve the auto output format; may be nil.
	tty *os.File
}

type detectCmd struct {
	Root       string `flag:"" short:"r" default:"/sys/firmware/qemu_fw_cfg" help:"Path to the qemu_fw_cfg sysfs tree"`
	Output     string `flag:"" short:"o" default:"auto" enum:"auto,table,json,openmetrics" help:"Output format; one of [auto, table, json, openmetrics]"`
	NoHeader   bool   `flag:"" help:"Suppress the header in table format output"`
	PCDOut     string `flag:"" name:"pcd-out" optional:"" help:"Write the published PCDs to a TOML file"`
	AnchorName string `flag:"" default:"etc/smbios/smbios-anchor" help:"fw_cfg file holding the entry point"`
	TablesName string `flag:"" default:"etc/smbios/smbios-tables" help:"fw_cfg file holding the structure table"`
}

type dumpCmd struct {
	Root       string `flag:"" short:"r" default:"/sys/firmware/qemu_fw_cfg" help:"Path to the qemu_fw_cfg sysfs tree"`
	AnchorName string `flag:"" default:"etc/smbios/smbios-anchor" help:"fw_cfg file holding the entry point"`
}

type genCmd struct {
	Root     string `flag:"" short:"r" required:"" help:"Directory to write the fw_cfg fixture tree to"`
	Version  string `flag:"" short:"v" default:"3.0" help:"SMBIOS version as major.minor"`
	Layout   string `flag:"" short:"l" default:"v3" enum:"v2,v3" help:"Entry point layout"`
	DocRev   uint8  `flag:"" name:"doc-rev" help:"Document revision (3.x entry point only)"`
	Tables   string `flag:"" short:"t" optional:"" help:"Structure table blob; an end-of-table structure is used if unset"`
	Truncate int    `flag:"" optional:"" help:"Cut the anchor to this many bytes (0 keeps it whole)"`
}

// cli is the main command line interface struct required by kong command line parser
var cli struct {
	Config kong.ConfigFlag `flag:"" short:"c" help:"Load flag defaults from a TOML file"`
	Debug  bool            `flag:"" help:"Log diagnostics at debug level"`

	Detect detectCmd `cmd:"" help:"Detect the SMBIOS version and print the PCDs it sets"`
	Dump   dumpCmd   `cmd:"" help:"Dump the raw and decoded SMBIOS anchor"`
	Gen    genCmd    `cmd:"" help:"Write a fw_cfg fixture tree holding an SMBIOS anchor and table"`
}

// Run executes when the detect command is invoked
func (t *detectCmd) Run(ctx *context) error {
	format, err := cmdutil.ResolveFormat(t.Output, ctx.tty)
	if err != nil {
		return err
	}
	ch, err := fwcfg.OpenSysfs(t.Root)
	if err != nil {
		return fmt.Errorf("fwcfg.OpenSysfs(%s) failed: %w", t.Root, err)
	}
	defer ch.Close()

	store := pcd.NewMemoryStore(nil)
	r, err := detect.Detect(ch, store,
		detect.WithLogger(ctx.log),
		detect.WithAnchorName(t.AnchorName),
		detect.WithTablesName(t.TablesName))
	if err != nil {
		return fmt.Errorf("detect.Detect(%s) failed: %w", t.Root, err)
	}

	rep := newReport(t.Root, r, store)
	switch format {
	case cmdutil.FormatJSON:
		err = outputJSON(ctx.out, rep)
	case cmdutil.FormatOpenMetrics:
		err = outputMetrics(ctx.out, rep)
	default:
		err = outputTable(ctx.out, rep, !t.NoHeader)
	}
	if err != nil {
		return err
	}

	if t.PCDOut != "" {
		f, err := os.Create(t.PCDOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := store.Save(f); err != nil {
			return fmt.Errorf("failed to write %s: %w", t.PCDOut, err)
		}
		return f.Close()
	}
	return nil
}

// maxDumpSize bounds how much of an unrecognized anchor is read.
const maxDumpSize = 4096

// Run executes when the dump command is invoked
func (t *dumpCmd) Run(ctx *context) error {
	ch, err := fwcfg.OpenSysfs(t.Root)
	if err != nil {
		return fmt.Errorf("fwcfg.OpenSysfs(%s) failed: %w", t.Root, err)
	}
	defer ch.Close()

	item, size, err := ch.FindFile(t.AnchorName)
	if err != nil {
		return err
	}
	if size > maxDumpSize {
		size = maxDumpSize
	}
	raw := make([]byte, size)
	if err := ch.SelectItem(item); err != nil {
		return err
	}
	if err := ch.ReadBytes(raw); err != nil {
		return fmt.Errorf("failed to read %s: %w", t.AnchorName, err)
	}

	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true}
	fmt.Fprintf(ctx.out, "%s (key %#x, %d bytes, blake2b-256 %s):\n", t.AnchorName, uint16(item), size, hash.FingerprintString(raw))
	cfg.Fdump(ctx.out, raw)
	a, err := smbios.ParseAnchor(raw)
	if err != nil {
		fmt.Fprintf(ctx.out, "decode: %v\n", err)
		return nil
	}
	cfg.Fdump(ctx.out, a)
	return nil
}

// endOfTable is an SMBIOS type 127 structure with an empty string set.
var endOfTable = []byte{0x7f, 0x04, 0xff, 0xfe, 0x00, 0x00}

// Run executes when the gen command is invoked
func (t *genCmd) Run(ctx *context) error {
	v, err := smbios.ParseVersion(t.Version)
	if err != nil {
		return err
	}
	layout, err := smbios.ParseLayout(t.Layout)
	if err != nil {
		return err
	}
	tables := endOfTable
	if t.Tables != "" {
		if tables, err = os.ReadFile(t.Tables); err != nil {
			return err
		}
	}

	var a smbios.Anchor
	if layout == smbios.LayoutV2 {
		if len(tables) > 0xffff {
			return fmt.Errorf("structure table of %d bytes does not fit a 2.x entry point", len(tables))
		}
		a = smbios.NewEntryPointV2(v, uint16(len(tables)), 0, structureCount(tables))
	} else {
		a = smbios.NewEntryPointV3(v, t.DocRev, uint32(len(tables)), 0)
	}
	anchor, err := a.MarshalBinary()
	if err != nil {
		return err
	}
	if t.Truncate > 0 && t.Truncate < len(anchor) {
		anchor = anchor[:t.Truncate]
	}

	err = fwcfg.WriteSysfsTree(t.Root, map[string][]byte{
		detect.AnchorFile: anchor,
		detect.TablesFile: tables,
	})
	if err != nil {
		return fmt.Errorf("fwcfg.WriteSysfsTree(%s) failed: %w", t.Root, err)
	}
	ctx.log.Info("wrote fixture",
		zap.String("root", t.Root),
		zap.Stringer("layout", layout),
		zap.Stringer("version", v),
		zap.Int("anchorSize", len(anchor)),
		zap.Int("tablesSize", len(tables)))
	return nil
}

// structureCount walks the formatted sections and string sets of an SMBIOS
// structure table.
func structureCount(tables []byte) uint16 {
	var n uint16
	for off := 0; off+4 <= len(tables); {
		length := int(tables[off+1])
		if length < 4 {
			break
		}
		n++
		off += length
		// Strings end with a double NUL.
		for off+1 < len(tables) && (tables[off] != 0 || tables[off+1] != 0) {
			off++
		}
		off += 2
	}
	return n
}
