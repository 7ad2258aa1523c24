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
	"log"
	"os"
)

// MountConfig contains optional behavior for a mount, including the gates
// consulted during INIT feature negotiation.
type MountConfig struct {
	// OpContext is the parent context for every op delivered to the file
	// system. Defaults to context.Background().
	OpContext context.Context

	// Nonempty allows mounting over a non-empty directory.
	Nonempty bool

	// FSName is the source name shown for the mount in /proc/mounts.
	// Defaults to "fuse".
	FSName string

	// DontMask asks the kernel not to apply the process umask before sending
	// create-style operations (negotiates FUSE_DONT_MASK).
	DontMask bool

	// WriteBack enables kernel writeback caching of file data (negotiates
	// FUSE_WRITEBACK_CACHE).
	WriteBack bool

	// NoOpenSupport tells the kernel that ENOSYS from OpenFile means "stop
	// sending OPEN" (negotiates FUSE_NO_OPEN_SUPPORT).
	NoOpenSupport bool

	// NoOpenDirSupport is NoOpenSupport for directories (negotiates
	// FUSE_NO_OPENDIR_SUPPORT).
	NoOpenDirSupport bool

	// HandleKillpriv makes the file system responsible for clearing
	// setuid/setgid bits on write/chown/truncate (negotiates
	// FUSE_HANDLE_KILLPRIV).
	HandleKillpriv bool

	// DefaultPermissions enables permission checking in the kernel, and with
	// it POSIX ACL support (mount option default_permissions, negotiates
	// FUSE_POSIX_ACL).
	DefaultPermissions bool

	// ForceReaddirPlus always negotiates FUSE_DO_READDIRPLUS and suppresses
	// FUSE_READDIRPLUS_AUTO, so that the kernel only ever sends READDIRPLUS.
	// Plain READDIR then receives ENOSYS.
	ForceReaddirPlus bool

	// EnableFileLocks dispatches GETLK/SETLK/SETLKW to the file system and
	// negotiates FUSE_POSIX_LOCKS. Without it the lock opcodes receive
	// ENOSYS.
	EnableFileLocks bool

	// UseFusermount acquires the device by spawning fusermount instead of
	// opening /dev/fuse and calling mount(2) directly, allowing unprivileged
	// mounts.
	UseFusermount bool

	// DebugLogger receives per-op request/response lines. May be nil.
	DebugLogger *log.Logger

	// ErrorLogger receives unexpected errors. May be nil.
	ErrorLogger *log.Logger
}

func (c *MountConfig) fsName() string {
	if c.FSName != "" {
		return c.FSName
	}
	return "fuse"
}

func (c *MountConfig) opContext() context.Context {
	if c.OpContext != nil {
		return c.OpContext
	}
	return context.Background()
}

// toOptionsString builds the comma-separated option string handed to
// mount(2) or fusermount for the given device fd.
func (c *MountConfig) toOptionsString(fd uintptr) string {
	opts := fmt.Sprintf(
		"fd=%d,rootmode=40000,user_id=%d,group_id=%d",
		fd,
		os.Getuid(),
		os.Getgid())

	if c.DefaultPermissions {
		opts += ",default_permissions"
	}

	return opts
}
