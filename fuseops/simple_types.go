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

package fuseops

import (
	"fmt"
	"os"
	"time"
)

// InodeID is a 64-bit number used to uniquely identify an inode. The kernel
// refers to inodes by these IDs in all requests it sends.
type InodeID uint64

// RootInodeID is the inode ID of the root of the file system. It is always
// accessible without a preceding lookup.
const RootInodeID = 1

// GenerationNumber distinguishes incarnations of an inode ID over time. The
// (ID, generation) pair must be unique over the life of the file system when
// export support is negotiated; file systems that never reuse IDs may leave
// it zero.
type GenerationNumber uint64

// HandleID identifies an open file or directory handle, minted by the file
// system in OpenFile/OpenDir/CreateFile and echoed by the kernel in all
// subsequent operations on the handle.
type HandleID uint64

// DirOffset is an opaque offset within an open directory, handed back to the
// file system to resume listing.
type DirOffset uint64

// InodeAttributes contains attributes for a file or directory inode, the
// in-process form of the wire attribute record.
type InodeAttributes struct {
	Size  uint64
	Nlink uint32

	// The mode of the inode, including the type bits (e.g. os.ModeDir).
	Mode os.FileMode

	// The device number, for device special files.
	Rdev uint32

	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	Uid uint32
	Gid uint32
}

func (a *InodeAttributes) DebugString() string {
	return fmt.Sprintf(
		"%d %d %v %d %d",
		a.Size,
		a.Nlink,
		a.Mode,
		a.Uid,
		a.Gid)
}

// ChildInodeEntry is the result of a successful lookup or an operation that
// creates a child: the child's ID, generation, attributes, and how long the
// kernel may cache each.
type ChildInodeEntry struct {
	Child      InodeID
	Generation GenerationNumber
	Attributes InodeAttributes

	// Cache deadlines for the attributes and for the name-to-inode mapping
	// itself. Zero values mean "do not cache".
	AttributesExpiration time.Time
	EntryExpiration      time.Time
}

// DirentType is the type field of a directory entry: the file type bits of
// the entry's mode, shifted down past the permission bits.
type DirentType uint32

const (
	DT_Unknown   DirentType = 0
	DT_FIFO      DirentType = 1
	DT_Char      DirentType = 2
	DT_Directory DirentType = 4
	DT_Block     DirentType = 6
	DT_File      DirentType = 8
	DT_Link      DirentType = 10
	DT_Socket    DirentType = 12
)

// Dirent is a single entry within a directory, as returned by ReadDir.
type Dirent struct {
	// The offset of the entry; the kernel hands the offset of the last entry
	// it received back to ReadDir to resume listing.
	Offset DirOffset

	Inode InodeID
	Name  string
	Type  DirentType
}

// DirentPlus is a directory entry along with the lookup result for the named
// child, as returned by ReadDirPlus.
type DirentPlus struct {
	Dirent Dirent
	Entry  ChildInodeEntry
}

// FileLock describes a POSIX byte-range lock.
type FileLock struct {
	Start uint64
	End   uint64

	// One of unix.F_RDLCK, unix.F_WRLCK, unix.F_UNLCK.
	Type uint32

	Pid uint32
}
