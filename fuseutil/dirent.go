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

package fuseutil

import (
	"unsafe"

	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/internal/fusekernel"
)

// DirentLen returns the number of bytes AppendDirent would add for the
// supplied entry, before alignment padding. The kernel-requested size cap is
// checked against this pre-padding length.
func DirentLen(d fuseops.Dirent) int {
	return fusekernel.DirentSize + len(d.Name)
}

// DirentPlusLen is DirentLen for the READDIRPLUS entry form.
func DirentPlusLen(d fuseops.DirentPlus) int {
	return fusekernel.DirentPlusSize + len(d.Dirent.Name)
}

// direntPadding returns the number of zero bytes needed after an entry of
// the given unpadded length to reach the next 8-byte boundary.
func direntPadding(n int) int {
	if n%fusekernel.DirentAlignment == 0 {
		return 0
	}
	return fusekernel.DirentAlignment - n%fusekernel.DirentAlignment
}

// AppendDirent appends a single directory entry in the format the kernel
// expects in a READDIR reply body: a fuse_dirent header, the name bytes, and
// zero padding to an 8-byte boundary.
func AppendDirent(buf []byte, d fuseops.Dirent) []byte {
	de := fusekernel.Dirent{
		Ino:     uint64(d.Inode),
		Off:     uint64(d.Offset),
		Namelen: uint32(len(d.Name)),
		Type:    uint32(d.Type),
	}

	buf = append(buf, (*[fusekernel.DirentSize]byte)(unsafe.Pointer(&de))[:]...)
	buf = append(buf, d.Name...)

	var padding [fusekernel.DirentAlignment]byte
	buf = append(buf, padding[:direntPadding(DirentLen(d))]...)

	return buf
}

// AppendDirentPlus appends a READDIRPLUS entry: a full fuse_entry_out for
// the child followed by the plain dirent, name, and padding.
func AppendDirentPlus(buf []byte, d fuseops.DirentPlus) []byte {
	var dp fusekernel.DirentPlus
	fuseops.ConvertChildInodeEntry(&d.Entry, &dp.EntryOut)
	dp.Dirent = fusekernel.Dirent{
		Ino:     uint64(d.Dirent.Inode),
		Off:     uint64(d.Dirent.Offset),
		Namelen: uint32(len(d.Dirent.Name)),
		Type:    uint32(d.Dirent.Type),
	}

	buf = append(buf, (*[fusekernel.DirentPlusSize]byte)(unsafe.Pointer(&dp))[:]...)
	buf = append(buf, d.Dirent.Name...)

	var padding [fusekernel.DirentAlignment]byte
	buf = append(buf, padding[:direntPadding(DirentPlusLen(d))]...)

	return buf
}
