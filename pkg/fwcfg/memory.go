// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwcfg

import (
	"fmt"
	"io"
)

type memFile struct {
	key  Item
	data []byte
}

// Memory is a Channel backed by an in-memory file directory.
type Memory struct {
	files map[string]memFile
	byKey map[Item][]byte

	cur      []byte
	off      int
	selected bool

	selects int
	reads   int
}

// NewMemory returns a channel serving files. The data is copied.
func NewMemory(files map[string][]byte) *Memory {
	_, keys := assignKeys(files)
	m := &Memory{
		files: make(map[string]memFile, len(files)),
		byKey: make(map[Item][]byte, len(files)),
	}
	for n, data := range files {
		d := append([]byte(nil), data...)
		m.files[n] = memFile{key: keys[n], data: d}
		m.byKey[keys[n]] = d
	}
	return m
}

func (m *Memory) FindFile(name string) (Item, int, error) {
	f, ok := m.files[name]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return f.key, len(f.data), nil
}

func (m *Memory) SelectItem(item Item) error {
	d, ok := m.byKey[item]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrUnknownItem, uint16(item))
	}
	m.cur, m.off, m.selected = d, 0, true
	m.selects++
	return nil
}

func (m *Memory) ReadBytes(buf []byte) error {
	if !m.selected {
		return ErrNoSelection
	}
	m.reads++
	n := copy(buf, m.cur[m.off:])
	m.off += n
	if n < len(buf) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// Selects returns the number of successful SelectItem calls.
func (m *Memory) Selects() int { return m.selects }

// Reads returns the number of ReadBytes calls.
func (m *Memory) Reads() int { return m.reads }
