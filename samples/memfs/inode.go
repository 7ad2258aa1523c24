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

package memfs

import (
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/sessionfs/fuse/fuseops"
)

// An in-memory inode: a file, directory, or symlink. Methods require the
// file system's lock to be held.
type inode struct {
	// The current attributes of this inode.
	//
	// INVARIANT: attrs.Mode &^ (os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky|os.ModeDir|os.ModeSymlink|os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) == 0
	// INVARIANT: !(isDir() && isSymlink())
	// INVARIANT: attrs.Size == len(contents)
	attrs fuseops.InodeAttributes

	// For directories, entries describing the children. Unused entries are
	// of type DT_Unknown, leaving holes so that entry offsets stay stable
	// across removals, as the protocol requires.
	//
	// INVARIANT: If !isDir(), len(entries) == 0
	// INVARIANT: For each i, entries[i].Offset == i+1
	entries []fuseops.Dirent

	// For files, the current contents.
	//
	// INVARIANT: If !isFile(), len(contents) == 0
	contents []byte

	// For symlinks, the target.
	//
	// INVARIANT: If !isSymlink(), target == ""
	target string

	// Extended attributes.
	xattrs map[string][]byte
}

func newInode(attrs fuseops.InodeAttributes) *inode {
	return &inode{
		attrs:  attrs,
		xattrs: make(map[string][]byte),
	}
}

func (in *inode) isDir() bool {
	return in.attrs.Mode&os.ModeDir != 0
}

func (in *inode) isSymlink() bool {
	return in.attrs.Mode&os.ModeSymlink != 0
}

func (in *inode) isFile() bool {
	return !(in.isDir() || in.isSymlink())
}

func (in *inode) checkInvariants() {
	if in.isDir() && in.isSymlink() {
		panic("inode is both a directory and a symlink")
	}

	if !in.isDir() && len(in.entries) != 0 {
		panic("non-directory with entries")
	}

	if !in.isFile() && len(in.contents) != 0 {
		panic("non-file with contents")
	}

	if !in.isSymlink() && in.target != "" {
		panic("non-symlink with target")
	}

	if in.isFile() && in.attrs.Size != uint64(len(in.contents)) {
		panic(fmt.Sprintf(
			"size mismatch: %d vs. %d",
			in.attrs.Size,
			len(in.contents)))
	}

	for i, e := range in.entries {
		if e.Offset != fuseops.DirOffset(i+1) {
			panic(fmt.Sprintf("unexpected offset for entry %d: %d", i, e.Offset))
		}
	}
}

// LookUpChild returns the inode ID and type for the child of the given
// name, if any.
func (in *inode) LookUpChild(name string) (fuseops.InodeID, fuseops.DirentType, bool) {
	for _, e := range in.entries {
		if e.Type != fuseops.DT_Unknown && e.Name == name {
			return e.Inode, e.Type, true
		}
	}

	return 0, fuseops.DT_Unknown, false
}

// AddChild adds an entry for a child, reusing a hole if one exists.
func (in *inode) AddChild(
	id fuseops.InodeID,
	name string,
	dt fuseops.DirentType) {
	var index int

	// Update the modification time.
	in.attrs.Mtime = time.Now()

	// No matter where we place the entry, make sure it has the correct Offset
	// field.
	defer func() {
		in.entries[index].Offset = fuseops.DirOffset(index + 1)
	}()

	// Find a hole.
	for index = range in.entries {
		if in.entries[index].Type == fuseops.DT_Unknown {
			in.entries[index] = fuseops.Dirent{
				Inode: id,
				Name:  name,
				Type:  dt,
			}
			return
		}
	}

	// Append.
	index = len(in.entries)
	in.entries = append(in.entries, fuseops.Dirent{
		Inode: id,
		Name:  name,
		Type:  dt,
	})
}

// RemoveChild punches a hole for the entry of the given name.
//
// REQUIRES: the child exists.
func (in *inode) RemoveChild(name string) {
	in.attrs.Mtime = time.Now()

	for i, e := range in.entries {
		if e.Type != fuseops.DT_Unknown && e.Name == name {
			in.entries[i] = fuseops.Dirent{
				Type:   fuseops.DT_Unknown,
				Offset: fuseops.DirOffset(i + 1),
			}
			return
		}
	}

	panic(fmt.Sprintf("no child named %q", name))
}

// ReadDir returns the live entries after the given offset, that is, those
// whose Offset is greater than it.
func (in *inode) ReadDir(offset fuseops.DirOffset) []fuseops.Dirent {
	if !in.isDir() {
		panic("ReadDir called on non-directory")
	}

	var out []fuseops.Dirent
	for i := int(offset); i < len(in.entries); i++ {
		if in.entries[i].Type == fuseops.DT_Unknown {
			continue
		}
		out = append(out, in.entries[i])
	}

	return out
}

// ReadAt reads into buf from the file's contents at the given offset.
func (in *inode) ReadAt(buf []byte, off int64) int {
	if !in.isFile() {
		panic("ReadAt called on non-file")
	}

	if off >= int64(len(in.contents)) {
		return 0
	}

	return copy(buf, in.contents[off:])
}

// WriteAt writes buf into the file's contents at the given offset, extending
// it as necessary.
func (in *inode) WriteAt(buf []byte, off int64, clock timeutil.Clock) int {
	if !in.isFile() {
		panic("WriteAt called on non-file")
	}

	in.attrs.Mtime = clock.Now()

	// Ensure the contents are long enough.
	if need := int(off) + len(buf); need > len(in.contents) {
		padding := make([]byte, need-len(in.contents))
		in.contents = append(in.contents, padding...)
		in.attrs.Size = uint64(need)
	}

	return copy(in.contents[off:], buf)
}

// SetSize truncates or extends the file to the given size.
func (in *inode) SetSize(size uint64) {
	if size <= uint64(len(in.contents)) {
		in.contents = in.contents[:size]
	} else {
		padding := make([]byte, size-uint64(len(in.contents)))
		in.contents = append(in.contents, padding...)
	}

	in.attrs.Size = size
}

// Fallocate extends the file so that [offset, offset+length) is allocated,
// without shrinking it.
func (in *inode) Fallocate(offset uint64, length uint64) {
	if need := offset + length; need > in.attrs.Size {
		in.SetSize(need)
	}
}
