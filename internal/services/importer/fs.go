// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package importer

import (
	"errors"
	"io"
	"os"
	"syscall"

	"github.com/spf13/afero"
)

// HardLinker is implemented by filesystems that can create hardlinks.
type HardLinker interface {
	Link(oldname, newname string) error
}

// OsFs is the host filesystem with hardlink support.
type OsFs struct {
	afero.Fs
}

func NewOsFs() *OsFs {
	return &OsFs{Fs: afero.NewOsFs()}
}

func (OsFs) Link(oldname, newname string) error {
	return os.Link(oldname, newname)
}

func copyFile(fs afero.Fs, src, dst string) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	mode := os.FileMode(0o644)
	if info, statErr := in.Stat(); statErr == nil {
		if info.IsDir() {
			return errors.New("source is a directory")
		}
		mode = info.Mode().Perm()
	}

	out, err := fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, copying and removing the source across devices.
func moveFile(fs afero.Fs, src, dst string) error {
	renameErr := fs.Rename(src, dst)
	if renameErr == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return renameErr
	}

	if err := copyFile(fs, src, dst); err != nil {
		return err
	}
	return fs.Remove(src)
}

// removeExisting clears a stale destination so writing never goes through a
// hardlink shared with the seeding source.
func removeExisting(fs afero.Fs, path string) error {
	info, err := fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return &os.PathError{Op: "replace", Path: path, Err: syscall.EISDIR}
	}
	return fs.Remove(path)
}
