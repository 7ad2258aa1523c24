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

// Package memfs provides an in-memory file system exercising most of the
// operations the fuse package dispatches. Useful as sample code and as a
// guinea pig in tests.
package memfs

import (
	"context"
	"os"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/sessionfs/fuse"
	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/fuseutil"
)

type memFS struct {
	fuseutil.NotImplementedFileSystem

	// The UID and GID that every inode receives.
	uid uint32
	gid uint32

	clock timeutil.Clock

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// The collection of live inodes, indexed by ID. IDs of free inodes that
	// may be reused have nil entries.
	//
	// INVARIANT: inodes[fuseops.RootInodeID] != nil
	// INVARIANT: inodes[fuseops.RootInodeID].isDir()
	//
	// GUARDED_BY(mu)
	inodes []*inode

	// A list of inode IDs within inodes available for reuse.
	//
	// INVARIANT: For each i in freeInodes, inodes[i] == nil
	//
	// GUARDED_BY(mu)
	freeInodes []fuseops.InodeID
}

// NewMemFS creates an empty writable file system whose inodes are owned by
// the given user.
func NewMemFS(uid uint32, gid uint32, clock timeutil.Clock) fuse.FileSystem {
	fs := &memFS{
		uid:    uid,
		gid:    gid,
		clock:  clock,
		inodes: make([]*inode, fuseops.RootInodeID+1),
	}

	// Set up the root inode.
	now := clock.Now()
	fs.inodes[fuseops.RootInodeID] = newInode(fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  0700 | os.ModeDir,
		Atime: now,
		Mtime: now,
		Ctime: now,
		Uid:   uid,
		Gid:   gid,
	})

	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs
}

func (fs *memFS) checkInvariants() {
	// Check the root.
	if fs.inodes[fuseops.RootInodeID] == nil {
		panic("missing root inode")
	}
	if !fs.inodes[fuseops.RootInodeID].isDir() {
		panic("root is not a directory")
	}

	// Check each free inode ID.
	for _, id := range fs.freeInodes {
		if fs.inodes[id] != nil {
			panic("free inode is still live")
		}
	}

	// Check each inode.
	for _, in := range fs.inodes {
		if in != nil {
			in.checkInvariants()
		}
	}
}

// getInodeOrDie returns the inode with the given ID.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) getInodeOrDie(id fuseops.InodeID) *inode {
	in := fs.inodes[id]
	if in == nil {
		panic("unknown inode")
	}

	return in
}

// allocateInode stores the supplied inode, returning its new ID.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) allocateInode(in *inode) fuseops.InodeID {
	if n := len(fs.freeInodes); n != 0 {
		id := fs.freeInodes[n-1]
		fs.freeInodes = fs.freeInodes[:n-1]
		fs.inodes[id] = in
		return id
	}

	fs.inodes = append(fs.inodes, in)
	return fuseops.InodeID(len(fs.inodes) - 1)
}

// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) deallocateInode(id fuseops.InodeID) {
	fs.freeInodes = append(fs.freeInodes, id)
	fs.inodes[id] = nil
}

// childAttrs builds the attributes for a fresh child inode.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) childAttrs(mode os.FileMode) fuseops.InodeAttributes {
	now := fs.clock.Now()
	return fuseops.InodeAttributes{
		Nlink:  1,
		Mode:   mode,
		Atime:  now,
		Mtime:  now,
		Ctime:  now,
		Crtime: now,
		Uid:    fs.uid,
		Gid:    fs.gid,
	}
}

// entryForChild builds a lookup result for the given child inode.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) entryForChild(id fuseops.InodeID) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      id,
		Attributes: fs.getInodeOrDie(id).attrs,
	}
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *memFS) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp) error {
	return nil
}

func (fs *memFS) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := fs.getInodeOrDie(op.Parent)

	childID, _, ok := parent.LookUpChild(op.Name)
	if !ok {
		return fuse.ENOENT
	}

	op.Entry = fs.entryForChild(childID)
	return nil
}

func (fs *memFS) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	op.Attributes = fs.getInodeOrDie(op.Inode).attrs
	return nil
}

func (fs *memFS) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	if op.Size != nil {
		if !in.isFile() {
			return fuse.EINVAL
		}
		in.SetSize(*op.Size)
	}

	if op.Mode != nil {
		// Preserve the type bits; the kernel only changes permissions.
		typeBits := in.attrs.Mode &^ (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
		in.attrs.Mode = typeBits | (*op.Mode &^ os.ModeType)
	}

	if op.Uid != nil {
		in.attrs.Uid = *op.Uid
	}
	if op.Gid != nil {
		in.attrs.Gid = *op.Gid
	}

	if op.Atime != nil {
		in.attrs.Atime = *op.Atime
	}
	if op.Mtime != nil {
		in.attrs.Mtime = *op.Mtime
	}
	if op.Ctime != nil {
		in.attrs.Ctime = *op.Ctime
	}

	op.Attributes = in.attrs
	return nil
}

// createChild allocates a new inode and links it into the parent, failing
// with EEXIST if the name is taken.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) createChild(
	parentID fuseops.InodeID,
	name string,
	child *inode) (fuseops.InodeID, error) {
	parent := fs.getInodeOrDie(parentID)

	if _, _, ok := parent.LookUpChild(name); ok {
		return 0, fuse.EEXIST
	}

	id := fs.allocateInode(child)
	parent.AddChild(id, name, fuseops.DirentTypeOf(child.attrs.Mode))

	return id, nil
}

func (fs *memFS) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child := newInode(fs.childAttrs(op.Mode))

	id, err := fs.createChild(op.Parent, op.Name, child)
	if err != nil {
		return err
	}

	op.Entry = fs.entryForChild(id)
	return nil
}

func (fs *memFS) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child := newInode(fs.childAttrs(op.Mode))

	id, err := fs.createChild(op.Parent, op.Name, child)
	if err != nil {
		return err
	}

	op.Entry = fs.entryForChild(id)
	return nil
}

func (fs *memFS) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child := newInode(fs.childAttrs(op.Mode))

	id, err := fs.createChild(op.Parent, op.Name, child)
	if err != nil {
		return err
	}

	op.Entry = fs.entryForChild(id)
	return nil
}

func (fs *memFS) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	child := newInode(fs.childAttrs(0444 | os.ModeSymlink))
	child.target = op.Target

	id, err := fs.createChild(op.Parent, op.Name, child)
	if err != nil {
		return err
	}

	op.Entry = fs.entryForChild(id)
	return nil
}

func (fs *memFS) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := fs.getInodeOrDie(op.Parent)

	if _, _, ok := parent.LookUpChild(op.Name); ok {
		return fuse.EEXIST
	}

	target := fs.getInodeOrDie(op.Target)
	target.attrs.Nlink++

	parent.AddChild(op.Target, op.Name, fuseops.DirentTypeOf(target.attrs.Mode))

	op.Entry = fs.entryForChild(op.Target)
	return nil
}

func (fs *memFS) Rename(
	ctx context.Context,
	op *fuseops.RenameOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent := fs.getInodeOrDie(op.OldParent)

	childID, childType, ok := oldParent.LookUpChild(op.OldName)
	if !ok {
		return fuse.ENOENT
	}

	// If the new name exists already in the new parent, make sure it's not a
	// non-empty directory, then delete it.
	newParent := fs.getInodeOrDie(op.NewParent)
	if existingID, _, ok := newParent.LookUpChild(op.NewName); ok {
		existing := fs.getInodeOrDie(existingID)

		if existing.isDir() && len(existing.ReadDir(0)) != 0 {
			return fuse.ENOTEMPTY
		}

		newParent.RemoveChild(op.NewName)
		fs.unlink(existing, existingID)
	}

	// Link the new name, unlink the old.
	newParent.AddChild(childID, op.NewName, childType)
	oldParent.RemoveChild(op.OldName)

	return nil
}

func (fs *memFS) Rename2(
	ctx context.Context,
	op *fuseops.Rename2Op) error {
	// No flag support; plain renames only.
	if op.Flags != 0 {
		return fuse.EINVAL
	}

	plain := fuseops.RenameOp{
		OpContext: op.OpContext,
		OldParent: op.OldParent,
		OldName:   op.OldName,
		NewParent: op.NewParent,
		NewName:   op.NewName,
	}
	return fs.Rename(ctx, &plain)
}

// unlink drops one link to the inode, deallocating it when none remain.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) unlink(in *inode, id fuseops.InodeID) {
	in.attrs.Nlink--
	if in.attrs.Nlink == 0 {
		fs.deallocateInode(id)
	}
}

func (fs *memFS) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := fs.getInodeOrDie(op.Parent)

	childID, _, ok := parent.LookUpChild(op.Name)
	if !ok {
		return fuse.ENOENT
	}

	child := fs.getInodeOrDie(childID)
	if len(child.ReadDir(0)) != 0 {
		return fuse.ENOTEMPTY
	}

	parent.RemoveChild(op.Name)
	fs.unlink(child, childID)

	return nil
}

func (fs *memFS) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := fs.getInodeOrDie(op.Parent)

	childID, _, ok := parent.LookUpChild(op.Name)
	if !ok {
		return fuse.ENOENT
	}

	parent.RemoveChild(op.Name)
	fs.unlink(fs.getInodeOrDie(childID), childID)

	return nil
}

func (fs *memFS) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.getInodeOrDie(op.Inode).isDir() {
		return fuse.ENOTDIR
	}

	return nil
}

func (fs *memFS) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	op.Entries = fs.getInodeOrDie(op.Inode).ReadDir(op.Offset)
	return nil
}

func (fs *memFS) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

func (fs *memFS) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.getInodeOrDie(op.Inode).isFile() {
		return fuse.EINVAL
	}

	return nil
}

func (fs *memFS) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	buf := make([]byte, op.Size)
	n := in.ReadAt(buf, int64(op.Offset))
	op.Data = buf[:n]

	return nil
}

func (fs *memFS) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)
	op.BytesWritten = uint32(in.WriteAt(op.Data, int64(op.Offset), fs.clock))

	return nil
}

func (fs *memFS) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp) error {
	return nil
}

func (fs *memFS) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp) error {
	return nil
}

func (fs *memFS) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp) error {
	return nil
}

func (fs *memFS) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)
	if !in.isSymlink() {
		return fuse.EINVAL
	}

	op.Target = in.target
	return nil
}

func (fs *memFS) SetXattr(
	ctx context.Context,
	op *fuseops.SetXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	value := make([]byte, len(op.Value))
	copy(value, op.Value)
	in.xattrs[op.Name] = value

	return nil
}

func (fs *memFS) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	value, ok := in.xattrs[op.Name]
	if !ok {
		return fuse.ENOATTR
	}

	if op.Size == 0 {
		op.SizeOnly = true
		op.ValueSize = uint32(len(value))
		return nil
	}

	if uint32(len(value)) > op.Size {
		return fuse.ERANGE
	}

	op.Value = value
	return nil
}

func (fs *memFS) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	var list []byte
	for name := range in.xattrs {
		list = append(list, name...)
		list = append(list, 0)
	}

	if op.Size == 0 {
		op.SizeOnly = true
		op.ValueSize = uint32(len(list))
		return nil
	}

	if uint32(len(list)) > op.Size {
		return fuse.ERANGE
	}

	op.Value = list
	return nil
}

func (fs *memFS) RemoveXattr(
	ctx context.Context,
	op *fuseops.RemoveXattrOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)

	if _, ok := in.xattrs[op.Name]; !ok {
		return fuse.ENOATTR
	}

	delete(in.xattrs, op.Name)
	return nil
}

func (fs *memFS) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Inode)
	if !in.isFile() {
		return fuse.EINVAL
	}

	// Only the default "allocate" mode is supported.
	if op.Mode != 0 {
		return fuse.ENOSYS
	}

	in.Fallocate(op.Offset, op.Length)
	return nil
}
