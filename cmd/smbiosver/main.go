// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/alecthomas/kong"
	"github.com/open-source-firmware/go-qemu-smbios/pkg/cmdutil"
)

const (
	programName = "smbiosver"
	programDesc = "Detect the SMBIOS entry point version QEMU exposes through fw_cfg"
)

func main() {
	// Parse kong flags and sub-commands
	ctx := kong.Parse(&cli,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.Configuration(cmdutil.TOML, "/etc/smbiosver.toml", "~/.config/smbiosver.toml"),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	log, err := cmdutil.NewLogger(cli.Debug)
	ctx.FatalIfErrorf(err)
	defer log.Sync()

	// Run the command
	err = ctx.Run(&context{log: log, out: os.Stdout, tty: os.Stdout})
	ctx.FatalIfErrorf(err)
}
