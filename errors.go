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
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Errors corresponding to kernel error numbers. These may be returned by
// FileSystem methods and are translated into the reply header verbatim.
const (
	EEXIST    = unix.EEXIST
	EINVAL    = unix.EINVAL
	EIO       = unix.EIO
	ENOATTR   = unix.ENODATA
	ENOENT    = unix.ENOENT
	ENOSYS    = unix.ENOSYS
	ENOTDIR   = unix.ENOTDIR
	ENOTEMPTY = unix.ENOTEMPTY
	ERANGE    = unix.ERANGE
)

// ErrExternallyManagedMountPoint is returned by unmount attempts against
// mount points of the form /dev/fd/N, which are managed by whoever opened
// the descriptor.
var ErrExternallyManagedMountPoint = errors.New("externally managed mount point")

// ErrnoFromError converts an error returned by a FileSystem method to the
// errno sent to the kernel. Errors that are not errnos map to EIO.
func ErrnoFromError(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return unix.EIO
}

// errnoFromIOError pulls the raw errno out of a device read/write error,
// unwrapping os.PathError and friends. Zero if there is none.
func errnoFromIOError(err error) unix.Errno {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}

	return 0
}

// A NotifyFailedError is returned by Notifier.Notify when the session has
// shut down; it carries the undelivered notification so the caller can retry
// or drop it by policy.
type NotifyFailedError struct {
	Kind NotifyKind
}

func (e *NotifyFailedError) Error() string {
	return fmt.Sprintf("session closed; notification %T not delivered", e.Kind)
}
