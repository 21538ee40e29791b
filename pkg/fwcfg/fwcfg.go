// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Access to the QEMU firmware configuration (fw_cfg) file directory.

package fwcfg

import (
	"errors"
	"sort"
)

// Item is a fw_cfg selector key.
type Item uint16

// FileFirst is the selector of the first entry in the fw_cfg file directory.
const FileFirst Item = 0x20

var (
	ErrNotFound    = errors.New("fw_cfg file not found")
	ErrInvalidName = errors.New("invalid fw_cfg file name")
	ErrNoSelection = errors.New("no fw_cfg item selected")
	ErrUnknownItem = errors.New("unknown fw_cfg item")
)

// Channel is the firmware configuration channel. It has a single read
// cursor shared by all users: SelectItem moves it to the start of an item
// and ReadBytes consumes from there.
type Channel interface {
	// FindFile looks up a file by name and returns its selector and size.
	FindFile(name string) (Item, int, error)
	SelectItem(item Item) error
	// ReadBytes fills buf from the cursor, failing with
	// io.ErrUnexpectedEOF if the item holds fewer bytes.
	ReadBytes(buf []byte) error
}

// assignKeys orders names the way the emulator lays out its file
// directory and returns the selector for each.
func assignKeys(files map[string][]byte) ([]string, map[string]Item) {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	keys := make(map[string]Item, len(names))
	for i, n := range names {
		keys[n] = FileFirst + Item(i)
	}
	return names, keys
}
