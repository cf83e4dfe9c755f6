// Copyright 2025 The Feedlog authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package posix implements a feedlog core.BlockStore backed by a POSIX
// filesystem: one file per block, named by its digest, written with the
// same create-via-tempfile-then-link idiom used for other on-disk
// resources that must never silently overwrite existing content.
package posix

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	retry "github.com/avast/retry-go/v4"
	"k8s.io/klog/v2"

	"github.com/feedlog/feedlog/core"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Storage is a content-addressed core.BlockStore rooted at a directory on a
// POSIX filesystem.
type Storage struct {
	path string
}

// New returns a Storage rooted at path, creating it if necessary.
func New(path string) (*Storage, error) {
	if err := mkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("posix: creating root %q: %w", path, err)
	}
	return &Storage{path: path}, nil
}

// blockPath shards digests two levels deep so that a large store doesn't
// dump every block into one directory.
func (s *Storage) blockPath(d core.Digest) string {
	name := string(d)
	if len(name) < 4 {
		return filepath.Join(s.path, "blocks", name)
	}
	return filepath.Join(s.path, "blocks", name[:2], name[2:4], name)
}

// Put writes data under its content digest. Writing identical bytes a
// second time is a no-op; writing different bytes under a colliding digest
// is a logic error the caller should never trigger (digests are content
// addresses), and is reported as a StoreError rather than silently
// accepted.
func (s *Storage) Put(_ context.Context, data []byte) (core.Digest, error) {
	d, err := core.Sum(data)
	if err != nil {
		return "", fmt.Errorf("posix: digest: %w", err)
	}
	p := s.blockPath(d)

	err = retry.Do(
		func() error { return createIdempotent(p, data) },
		retry.RetryIf(isTransient),
		retry.Attempts(5),
	)
	if err != nil {
		return "", &core.StoreError{Op: "put", Err: err}
	}
	return d, nil
}

// Get reads back the bytes stored under d.
func (s *Storage) Get(_ context.Context, d core.Digest) ([]byte, error) {
	raw, err := os.ReadFile(s.blockPath(d))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &core.StoreError{Op: "get", Err: core.ErrBlockNotFound}
		}
		return nil, &core.StoreError{Op: "get", Err: err}
	}
	return raw, nil
}

// createIdempotent atomically creates a file at p with contents d, treating
// an existing file with identical contents as success.
func createIdempotent(p string, d []byte) error {
	if err := createBlockFile(p, d); err != nil {
		if errors.Is(err, os.ErrExist) {
			existing, rerr := os.ReadFile(p)
			if rerr != nil {
				return fmt.Errorf("posix: %q already exists, but unreadable: %w", p, rerr)
			}
			if string(existing) == string(d) {
				return nil
			}
			return fmt.Errorf("posix: %q already exists with different content (digest collision?)", p)
		}
		return err
	}
	return nil
}

func isTransient(err error) bool {
	ok := errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
	if ok {
		klog.V(1).Infof("posix: retrying after transient error: %v", err)
	}
	return ok
}

// createBlockFile atomically creates a file at name containing data: it
// writes to a scratch file in the same directory, links it into place, and
// fsyncs the directory so the new entry survives a crash. Returns an error
// satisfying errors.Is(err, os.ErrExist) if a file is already linked at
// name -- blocks are immutable once written, so a caller finding this error
// should fall back to reading back and comparing the existing content
// rather than overwriting it.
func createBlockFile(name string, data []byte) error {
	dir, _ := filepath.Split(name)
	if err := mkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to make block directory structure: %w", err)
	}

	scratch, err := writeScratchFile(name, data)
	if err != nil {
		return fmt.Errorf("failed to write scratch file: %w", err)
	}
	defer func() {
		if err := os.Remove(scratch); err != nil {
			klog.Warningf("Failed to remove scratch file %q: %v", scratch, err)
		}
	}()

	if err := os.Link(scratch, name); err != nil {
		// Wrapped (not joined) so errors.Is(err, os.ErrExist) still works at
		// the caller.
		return fmt.Errorf("failed to link scratch file to %q: %w", name, err)
	}
	return syncDir(dir)
}

// writeScratchFile writes data to a new file beside the eventual target
// name, retrying on name collisions. The file is written with O_SYNC; its
// parent directory is not synced here since the caller is about to link or
// rename it into place and will sync the directory itself.
func writeScratchFile(name string, data []byte) (scratch string, err error) {
	var f *os.File
	try := 0
	for {
		scratch = name + ".tmp" + strconv.Itoa(int(rand.Int32()))
		f, err = os.OpenFile(scratch, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_SYNC, filePerm)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return "", err
		}
		if try++; try >= 10000 {
			return "", &os.PathError{Op: "writeScratchFile", Path: name + ".tmp*", Err: os.ErrExist}
		}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if n, werr := f.Write(data); werr != nil {
		return "", fmt.Errorf("failed to write scratch file %q: %w", scratch, werr)
	} else if n < len(data) {
		return "", fmt.Errorf("short write on %q: %d < %d", scratch, n, len(data))
	}
	return scratch, nil
}

// mkdirAll is like os.MkdirAll, but fsyncs each directory it creates so
// that the creation itself survives a crash.
func mkdirAll(name string, perm os.FileMode) error {
	name = strings.TrimSuffix(name, string(filepath.Separator))
	if name == "" {
		return nil
	}

	dir, _ := filepath.Split(name)
	di, err := os.Lstat(name)
	switch {
	case errors.Is(err, syscall.ENOENT):
		if dir != "" {
			if err := mkdirAll(dir, perm); err != nil {
				return err
			}
		}
		fallthrough
	case errors.Is(err, os.ErrNotExist):
		if err := os.Mkdir(name, perm); err != nil {
			return fmt.Errorf("%q: %w", name, err)
		}
		return syncDir(dir)
	case err != nil:
		return fmt.Errorf("lstat %q: %w", name, err)
	case !di.IsDir():
		return fmt.Errorf("%s is not a directory", name)
	default:
		return nil
	}
}

// syncDir fsyncs the directory at d, so that entries just created or
// linked within it are durable.
func syncDir(d string) error {
	fd, err := os.Open(d)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", d, err)
	}
	if err := fd.Sync(); err != nil {
		return fmt.Errorf("failed to sync %q: %w", d, err)
	}
	return fd.Close()
}
