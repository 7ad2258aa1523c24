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

	"github.com/sessionfs/fuse/fuseops"
)

// FileSystem is the set of methods a file system must implement to be served
// by a Session. Each method receives a typed op carrying the decoded request
// and fills in the op's output fields; returning a non-nil error causes the
// session to reply with the corresponding errno instead (see
// ErrnoFromError).
//
// The session calls methods concurrently, one goroutine per request;
// implementations are responsible for their own synchronization. Embed
// fuseutil.NotImplementedFileSystem to decline methods you don't care about.
type FileSystem interface {
	Init(ctx context.Context, op *fuseops.InitOp) error

	LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error
	ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error
	BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error
	GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error
	SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error

	MkDir(ctx context.Context, op *fuseops.MkDirOp) error
	MkNode(ctx context.Context, op *fuseops.MkNodeOp) error
	CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error
	CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error
	CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error
	Rename(ctx context.Context, op *fuseops.RenameOp) error
	Rename2(ctx context.Context, op *fuseops.Rename2Op) error
	RmDir(ctx context.Context, op *fuseops.RmDirOp) error
	Unlink(ctx context.Context, op *fuseops.UnlinkOp) error

	OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error
	ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error
	ReadDirPlus(ctx context.Context, op *fuseops.ReadDirPlusOp) error
	ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error
	SyncDir(ctx context.Context, op *fuseops.SyncDirOp) error

	OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error
	ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error
	WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error
	SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error
	FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error
	ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error
	Fallocate(ctx context.Context, op *fuseops.FallocateOp) error
	LSeek(ctx context.Context, op *fuseops.LSeekOp) error
	CopyFileRange(ctx context.Context, op *fuseops.CopyFileRangeOp) error

	ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error

	SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error
	GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error
	ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error
	RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error

	// GetFileLock and SetFileLock are dispatched only when
	// MountConfig.EnableFileLocks is set; otherwise the kernel receives
	// ENOSYS without the file system being consulted.
	GetFileLock(ctx context.Context, op *fuseops.GetFileLockOp) error
	SetFileLock(ctx context.Context, op *fuseops.SetFileLockOp) error

	StatFS(ctx context.Context, op *fuseops.StatFSOp) error
	Access(ctx context.Context, op *fuseops.AccessOp) error
	Interrupt(ctx context.Context, op *fuseops.InterruptOp) error
	Bmap(ctx context.Context, op *fuseops.BmapOp) error
	Poll(ctx context.Context, op *fuseops.PollOp) error
	NotifyReply(ctx context.Context, op *fuseops.NotifyReplyOp) error

	// Destroy is called once, when the kernel sends DESTROY or the device
	// disappears out from under the session. No further methods are called
	// after it returns.
	Destroy()
}
