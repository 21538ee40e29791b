// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fwcfg

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where the Linux qemu_fw_cfg driver exports the file
// directory.
const DefaultSysfsRoot = "/sys/firmware/qemu_fw_cfg"

var ErrNotAvailable = errors.New("fw_cfg sysfs interface not available")

// Sysfs is a Channel reading through the qemu_fw_cfg sysfs export:
//
//	<root>/by_key/<key>/{key,size,name,raw}
//	<root>/by_name/<name> -> ../by_key/<key>
type Sysfs struct {
	root string
	cur  *os.File
}

func OpenSysfs(root string) (*Sysfs, error) {
	fi, err := os.Stat(filepath.Join(root, "by_name"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNotAvailable, root)
	}
	return &Sysfs{root: root}, nil
}

func readUint(p string, bits int) (uint64, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(b)), 10, bits)
}

func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "/") && path.Clean(name) == name &&
		!strings.HasPrefix(name, "../") && name != ".."
}

func (s *Sysfs) FindFile(name string) (Item, int, error) {
	if !validName(name) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	dir := filepath.Join(s.root, "by_name", filepath.FromSlash(name))
	key, err := readUint(filepath.Join(dir, "key"), 16)
	if os.IsNotExist(err) {
		return 0, 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	} else if err != nil {
		return 0, 0, fmt.Errorf("failed to read key of %q: %v", name, err)
	}
	size, err := readUint(filepath.Join(dir, "size"), 32)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read size of %q: %v", name, err)
	}
	return Item(key), int(size), nil
}

func (s *Sysfs) SelectItem(item Item) error {
	f, err := os.Open(filepath.Join(s.root, "by_key", strconv.Itoa(int(item)), "raw"))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %#x", ErrUnknownItem, uint16(item))
	} else if err != nil {
		return fmt.Errorf("failed to open item %#x: %v", uint16(item), err)
	}
	if s.cur != nil {
		s.cur.Close()
	}
	s.cur = f
	return nil
}

func (s *Sysfs) ReadBytes(buf []byte) error {
	if s.cur == nil {
		return ErrNoSelection
	}
	if _, err := io.ReadFull(s.cur, buf); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func (s *Sysfs) Close() error {
	if s.cur == nil {
		return nil
	}
	err := s.cur.Close()
	s.cur = nil
	return err
}

// WriteSysfsTree lays files out under root the way the qemu_fw_cfg driver
// does, so that OpenSysfs(root) serves them.
func WriteSysfsTree(root string, files map[string][]byte) error {
	names, keys := assignKeys(files)
	for _, n := range names {
		if !validName(n) {
			return fmt.Errorf("%w: %q", ErrInvalidName, n)
		}
		key := strconv.Itoa(int(keys[n]))
		dir := filepath.Join(root, "by_key", key)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		attrs := map[string][]byte{
			"key":  []byte(key + "\n"),
			"size": []byte(strconv.Itoa(len(files[n])) + "\n"),
			"name": []byte(n + "\n"),
			"raw":  files[n],
		}
		for a, data := range attrs {
			if err := os.WriteFile(filepath.Join(dir, a), data, 0o644); err != nil {
				return err
			}
		}

		link := filepath.Join(root, "by_name", filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return err
		}
		target, err := filepath.Rel(filepath.Dir(link), dir)
		if err != nil {
			return err
		}
		os.Remove(link)
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("failed to link %q: %v", n, err)
		}
	}
	return os.MkdirAll(filepath.Join(root, "by_name"), 0o755)
}
