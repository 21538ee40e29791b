// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Platform configuration database (PCD) slots shared between boot
// components.

package pcd

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"
)

type Token string

const (
	SmbiosVersion       Token = "PcdSmbiosVersion"
	SmbiosDocRev        Token = "PcdSmbiosDocRev"
	QemuSmbiosValidated Token = "PcdQemuSmbiosValidated"
)

// Width is the storage type of a slot.
type Width int

const (
	WidthBool Width = iota
	Width8
	Width16
)

func (w Width) String() string {
	switch w {
	case WidthBool:
		return "BOOLEAN"
	case Width8:
		return "UINT8"
	case Width16:
		return "UINT16"
	}
	return fmt.Sprintf("Width(%d)", int(w))
}

var (
	ErrUnknownToken = errors.New("unknown PCD token")
	ErrTypeMismatch = errors.New("PCD type mismatch")
)

// Declarations are the slots consumed by the SMBIOS publishing stage.
var Declarations = map[Token]Width{
	SmbiosVersion:       Width16,
	SmbiosDocRev:        Width8,
	QemuSmbiosValidated: WidthBool,
}

// Store is written by one boot stage and read by later ones. Each slot is
// expected to be written once per boot; writing the same value again is
// harmless.
type Store interface {
	Set16(tok Token, v uint16) error
	Set8(tok Token, v uint8) error
	SetBool(tok Token, v bool) error
}

type slot struct {
	width   Width
	value   uint16
	written bool
}

// MemoryStore is a Store holding declared slots in memory.
type MemoryStore struct {
	slots map[Token]*slot
}

// NewMemoryStore returns a store with decls declared, or Declarations if
// decls is nil.
func NewMemoryStore(decls map[Token]Width) *MemoryStore {
	if decls == nil {
		decls = Declarations
	}
	s := &MemoryStore{slots: make(map[Token]*slot, len(decls))}
	for tok, w := range decls {
		s.slots[tok] = &slot{width: w}
	}
	return s
}

func (s *MemoryStore) lookup(tok Token, w Width) (*slot, error) {
	sl, ok := s.slots[tok]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, tok)
	}
	if sl.width != w {
		return nil, fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, tok, sl.width, w)
	}
	return sl, nil
}

func (s *MemoryStore) set(tok Token, w Width, v uint16) error {
	sl, err := s.lookup(tok, w)
	if err != nil {
		return err
	}
	sl.value, sl.written = v, true
	return nil
}

func (s *MemoryStore) Set16(tok Token, v uint16) error {
	return s.set(tok, Width16, v)
}

func (s *MemoryStore) Set8(tok Token, v uint8) error {
	return s.set(tok, Width8, uint16(v))
}

func (s *MemoryStore) SetBool(tok Token, v bool) error {
	var b uint16
	if v {
		b = 1
	}
	return s.set(tok, WidthBool, b)
}

// Get16 returns the slot value and whether it has been written.
func (s *MemoryStore) Get16(tok Token) (uint16, bool) {
	sl, err := s.lookup(tok, Width16)
	if err != nil {
		return 0, false
	}
	return sl.value, sl.written
}

func (s *MemoryStore) Get8(tok Token) (uint8, bool) {
	sl, err := s.lookup(tok, Width8)
	if err != nil {
		return 0, false
	}
	return uint8(sl.value), sl.written
}

func (s *MemoryStore) GetBool(tok Token) (bool, bool) {
	sl, err := s.lookup(tok, WidthBool)
	if err != nil {
		return false, false
	}
	return sl.value != 0, sl.written
}

// Written returns the written tokens in name order.
func (s *MemoryStore) Written() []Token {
	var toks []Token
	for tok, sl := range s.slots {
		if sl.written {
			toks = append(toks, tok)
		}
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	return toks
}

// Save writes the written slots as a TOML table keyed by token name.
func (s *MemoryStore) Save(w io.Writer) error {
	out := map[string]interface{}{}
	for _, tok := range s.Written() {
		sl := s.slots[tok]
		if sl.width == WidthBool {
			out[string(tok)] = sl.value != 0
		} else {
			out[string(tok)] = int64(sl.value)
		}
	}
	return toml.NewEncoder(w).Encode(map[string]interface{}{"pcd": out})
}

// Load reads slots written by Save into s. Tokens must be declared in s.
func (s *MemoryStore) Load(r io.Reader) error {
	var in struct {
		PCD map[string]interface{} `toml:"pcd"`
	}
	if _, err := toml.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("failed to decode PCD file: %v", err)
	}
	for name, v := range in.PCD {
		tok := Token(name)
		sl, ok := s.slots[tok]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownToken, tok)
		}
		var err error
		switch val := v.(type) {
		case bool:
			err = s.SetBool(tok, val)
		case int64:
			switch {
			case sl.width == Width16 && val >= 0 && val <= 0xffff:
				err = s.Set16(tok, uint16(val))
			case sl.width == Width8 && val >= 0 && val <= 0xff:
				err = s.Set8(tok, uint8(val))
			default:
				err = fmt.Errorf("%w: %s value %d does not fit %s", ErrTypeMismatch, tok, val, sl.width)
			}
		default:
			err = fmt.Errorf("%w: %s has unsupported value %v", ErrTypeMismatch, tok, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
