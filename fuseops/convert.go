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
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// ConvertTime splits a time.Time into the seconds/nanoseconds pair used
// throughout the wire attribute records.
func ConvertTime(t time.Time) (secs uint64, nsec uint32) {
	totalNano := t.UnixNano()
	secs = uint64(totalNano / 1e9)
	nsec = uint32(totalNano % 1e9)
	return
}

// ConvertExpirationTime converts an absolute cache expiration time to the
// relative form the kernel expects. Times in the past become zero: fuse
// represents validity as unsigned counts of seconds, so negative durations
// are right out.
func ConvertExpirationTime(t time.Time) (secs uint64, nsec uint32) {
	d := time.Until(t)
	if d < 0 {
		return 0, 0
	}

	secs = uint64(d / time.Second)
	nsec = uint32(d % time.Second)
	return
}

// ConvertFileMode converts an os.FileMode to the POSIX mode bits carried on
// the wire.
func ConvertFileMode(mode os.FileMode) uint32 {
	bits := uint32(mode) & uint32(os.ModePerm)

	switch {
	case mode&os.ModeDir != 0:
		bits |= unix.S_IFDIR
	case mode&os.ModeSymlink != 0:
		bits |= unix.S_IFLNK
	case mode&os.ModeNamedPipe != 0:
		bits |= unix.S_IFIFO
	case mode&os.ModeSocket != 0:
		bits |= unix.S_IFSOCK
	case mode&os.ModeCharDevice != 0:
		bits |= unix.S_IFCHR
	case mode&os.ModeDevice != 0:
		bits |= unix.S_IFBLK
	default:
		bits |= unix.S_IFREG
	}

	if mode&os.ModeSetuid != 0 {
		bits |= unix.S_ISUID
	}
	if mode&os.ModeSetgid != 0 {
		bits |= unix.S_ISGID
	}
	if mode&os.ModeSticky != 0 {
		bits |= unix.S_ISVTX
	}

	return bits
}

// ConvertKernelMode is the inverse of ConvertFileMode.
func ConvertKernelMode(bits uint32) os.FileMode {
	mode := os.FileMode(bits & 0777)

	switch bits & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= os.ModeDir
	case unix.S_IFLNK:
		mode |= os.ModeSymlink
	case unix.S_IFIFO:
		mode |= os.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= os.ModeSocket
	case unix.S_IFCHR:
		mode |= os.ModeDevice | os.ModeCharDevice
	case unix.S_IFBLK:
		mode |= os.ModeDevice
	}

	if bits&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}
	if bits&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}
	if bits&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

// DirentTypeOf derives the directory entry type for a mode: the file type
// bits shifted down past the permission bits, as the kernel expects in
// fuse_dirent.type.
func DirentTypeOf(mode os.FileMode) DirentType {
	return DirentType(ConvertFileMode(mode) >> 12)
}

// ConvertAttributes fills a wire attribute record from in-process attributes.
func ConvertAttributes(inode InodeID, in *InodeAttributes, out *fusekernel.Attr) {
	out.Ino = uint64(inode)
	out.Size = in.Size
	out.Blocks = (in.Size + 511) / 512
	out.Atime, out.AtimeNsec = ConvertTime(in.Atime)
	out.Mtime, out.MtimeNsec = ConvertTime(in.Mtime)
	out.Ctime, out.CtimeNsec = ConvertTime(in.Ctime)
	out.Mode = ConvertFileMode(in.Mode)
	out.Nlink = in.Nlink
	out.Uid = in.Uid
	out.Gid = in.Gid
	out.Rdev = in.Rdev
	out.Blksize = 4096
}

// ConvertChildInodeEntry fills a wire entry record from a lookup result.
func ConvertChildInodeEntry(in *ChildInodeEntry, out *fusekernel.EntryOut) {
	out.Nodeid = uint64(in.Child)
	out.Generation = uint64(in.Generation)
	out.EntryValid, out.EntryValidNsec = ConvertExpirationTime(in.EntryExpiration)
	out.AttrValid, out.AttrValidNsec = ConvertExpirationTime(in.AttributesExpiration)
	ConvertAttributes(in.Child, &in.Attributes, &out.Attr)
}
