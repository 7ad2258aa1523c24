// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fuse

import (
	"context"
	"fmt"
	"os"
)

// MountedFileSystem represents the status of a mount operation, with a
// method that waits for unmounting.
type MountedFileSystem struct {
	dir     string
	session *Session

	// The result to return from Join. Not valid until the channel is closed.
	joinStatus          error
	joinStatusAvailable chan struct{}
}

// Dir returns the directory on which the file system is mounted (or where
// we attempted to mount it).
func (mfs *MountedFileSystem) Dir() string {
	return mfs.dir
}

// Notifier returns a handle for pushing notifications to the kernel about
// this mount.
func (mfs *MountedFileSystem) Notifier() *Notifier {
	return mfs.session.Notifier()
}

// Join blocks until the file system has been unmounted. The return value is
// non-nil if anything unexpected happened while serving. May be called
// multiple times.
func (mfs *MountedFileSystem) Join(ctx context.Context) error {
	select {
	case <-mfs.joinStatusAvailable:
		return mfs.joinStatus
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unmount asks the kernel to unmount the file system. Serving continues
// until the kernel closes the device; use Join to wait for that.
func (mfs *MountedFileSystem) Unmount() error {
	return unmount(mfs.dir)
}

// Mount attempts to mount the supplied file system on the given directory
// and begins serving it in the background. The mount point must be empty
// unless MountConfig.Nonempty is set.
func Mount(dir string, fs FileSystem, config *MountConfig) (*MountedFileSystem, error) {
	if config == nil {
		config = &MountConfig{}
	}

	if !config.Nonempty {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading mount point: %w", err)
		}
		if len(entries) != 0 {
			return nil, fmt.Errorf("mount point %s is not empty", dir)
		}
	}

	dev, err := openFuseDevice(dir, config)
	if err != nil {
		return nil, err
	}

	session := NewSession(fs, dev, *config)

	mfs := &MountedFileSystem{
		dir:                 dir,
		session:             session,
		joinStatusAvailable: make(chan struct{}),
	}

	go func() {
		mfs.joinStatus = session.Serve()
		session.conn.close()
		close(mfs.joinStatusAvailable)
	}()

	return mfs, nil
}
