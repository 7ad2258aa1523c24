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

// Package fuseops contains the typed operations dispatched to a FileSystem,
// one struct per kernel opcode. Each struct carries the decoded request
// fields, an OpContext describing the calling process, and the fields the
// file system fills in for the reply.
package fuseops

import (
	"fmt"
	"os"
	"time"
)

// OpContext is the request record passed to every file system method: the
// kernel-assigned request ID and the credentials of the process that
// triggered the operation.
type OpContext struct {
	// FuseID is the unique identifier of the request, echoed in the reply.
	FuseID uint64

	Uid uint32
	Gid uint32
	Pid uint32
}

////////////////////////////////////////////////////////////////////////
// Setup and teardown
////////////////////////////////////////////////////////////////////////

// InitOp is delivered once, before any other operation, while the session
// negotiates features with the kernel. Returning an error aborts the mount.
type InitOp struct {
	OpContext OpContext
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

// LookUpInodeOp resolves a name within a parent directory to an inode.
type LookUpInodeOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string

	// Out
	Entry ChildInodeEntry
}

func (o *LookUpInodeOp) ShortDesc() string {
	return fmt.Sprintf("LookUpInode(parent=%v, name=%q)", o.Parent, o.Name)
}

// ForgetInodeOp tells the file system the kernel has dropped N references
// obtained from lookups and child-creating operations. No reply is sent.
type ForgetInodeOp struct {
	OpContext OpContext

	Inode InodeID
	N     uint64
}

// BatchForgetEntry is a single inode within a BatchForgetOp.
type BatchForgetEntry struct {
	Inode InodeID
	N     uint64
}

// BatchForgetOp is a batched form of ForgetInodeOp. No reply is sent.
type BatchForgetOp struct {
	OpContext OpContext

	Entries []BatchForgetEntry
}

type GetInodeAttributesOp struct {
	OpContext OpContext

	Inode InodeID

	// Handle is non-nil when the kernel associated the request with an open
	// handle.
	Handle *HandleID

	// Out
	Attributes           InodeAttributes
	AttributesExpiration time.Time
}

func (o *GetInodeAttributesOp) DebugString() string {
	return fmt.Sprintf(
		"Inode: %d, Exp: %v, Attr: %s",
		o.Inode,
		o.AttributesExpiration,
		o.Attributes.DebugString())
}

// SetInodeAttributesOp changes a subset of an inode's attributes; nil fields
// were not requested by the kernel.
type SetInodeAttributesOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle *HandleID

	Size  *uint64
	Mode  *os.FileMode
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
	Ctime *time.Time

	// Out
	Attributes           InodeAttributes
	AttributesExpiration time.Time
}

////////////////////////////////////////////////////////////////////////
// Inode creation and removal
////////////////////////////////////////////////////////////////////////

type MkDirOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
	Mode   os.FileMode
	Umask  uint32

	// Out
	Entry ChildInodeEntry
}

func (o *MkDirOp) ShortDesc() string {
	return fmt.Sprintf("MkDir(parent=%v, name=%q)", o.Parent, o.Name)
}

type MkNodeOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
	Mode   os.FileMode
	Rdev   uint32

	// Out
	Entry ChildInodeEntry
}

// CreateFileOp atomically creates and opens a file that did not exist.
type CreateFileOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
	Mode   os.FileMode
	Flags  uint32

	// Out
	Entry  ChildInodeEntry
	Handle HandleID
}

func (o *CreateFileOp) ShortDesc() string {
	return fmt.Sprintf("CreateFile(parent=%v, name=%q)", o.Parent, o.Name)
}

type CreateSymlinkOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
	Target string

	// Out
	Entry ChildInodeEntry
}

func (o *CreateSymlinkOp) ShortDesc() string {
	return fmt.Sprintf(
		"CreateSymlink(parent=%v, name=%q, target=%q)",
		o.Parent,
		o.Name,
		o.Target)
}

// CreateLinkOp creates a hard link to an existing inode.
type CreateLinkOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
	Target InodeID

	// Out
	Entry ChildInodeEntry
}

type RenameOp struct {
	OpContext OpContext

	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string
}

// Rename2Op is the flag-carrying variant of RenameOp (RENAME_NOREPLACE,
// RENAME_EXCHANGE, RENAME_WHITEOUT).
type Rename2Op struct {
	OpContext OpContext

	OldParent InodeID
	OldName   string
	NewParent InodeID
	NewName   string
	Flags     uint32
}

type RmDirOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
}

type UnlinkOp struct {
	OpContext OpContext

	Parent InodeID
	Name   string
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

type OpenDirOp struct {
	OpContext OpContext

	Inode InodeID
	Flags uint32

	// Out
	Handle HandleID

	// CacheDir asks the kernel to cache the directory listing.
	CacheDir bool
}

// ReadDirOp lists entries in an open directory. The session emits the
// returned entries in order until one whose unpadded encoded length would
// take the output past Size bytes; that entry and every later one are
// omitted, and the last emitted entry's padding can take the output up to 7
// bytes past Size. An omitted entry should be offered again at its offset.
type ReadDirOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Offset DirOffset
	Size   uint32

	// Out
	Entries []Dirent
}

// ReadDirPlusOp is ReadDirOp with a full lookup result attached to each
// entry, saving the kernel a LOOKUP round trip per name.
type ReadDirPlusOp struct {
	OpContext OpContext

	Inode     InodeID
	Handle    HandleID
	Offset    DirOffset
	Size      uint32
	LockOwner uint64

	// Out
	Entries []DirentPlus
}

type ReleaseDirHandleOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Flags  uint32
}

type SyncDirOp struct {
	OpContext OpContext

	Inode    InodeID
	Handle   HandleID
	DataSync bool
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

type OpenFileOp struct {
	OpContext OpContext

	Inode InodeID
	Flags uint32

	// Out
	Handle HandleID

	// KeepPageCache tells the kernel to preserve cached pages for the inode
	// from previous opens; UseDirectIO disables the page cache for this
	// handle entirely.
	KeepPageCache bool
	UseDirectIO   bool
}

type ReadFileOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Offset uint64
	Size   uint32

	// Out. The session truncates Data to Size bytes before replying.
	Data []byte
}

type WriteFileOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Offset uint64
	Data   []byte
	Flags  uint32

	// Out
	BytesWritten uint32
}

type SyncFileOp struct {
	OpContext OpContext

	Inode    InodeID
	Handle   HandleID
	DataSync bool
}

// FlushFileOp is delivered on each close(2) of a file descriptor.
type FlushFileOp struct {
	OpContext OpContext

	Inode     InodeID
	Handle    HandleID
	LockOwner uint64
}

type ReleaseFileHandleOp struct {
	OpContext OpContext

	Inode     InodeID
	Handle    HandleID
	Flags     uint32
	LockOwner uint64

	// Flush is set when the release should also flush pending writes.
	Flush bool
}

type FallocateOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Offset uint64
	Length uint64
	Mode   uint32
}

type LSeekOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Offset uint64
	Whence uint32

	// Out
	ResultOffset uint64
}

type CopyFileRangeOp struct {
	OpContext OpContext

	SrcInode  InodeID
	SrcHandle HandleID
	SrcOffset uint64
	DstInode  InodeID
	DstHandle HandleID
	DstOffset uint64
	Len       uint64
	Flags     uint64

	// Out
	BytesCopied uint32
}

////////////////////////////////////////////////////////////////////////
// Reading symlinks
////////////////////////////////////////////////////////////////////////

type ReadSymlinkOp struct {
	OpContext OpContext

	Inode InodeID

	// Out
	Target string
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

type SetXattrOp struct {
	OpContext OpContext

	Inode InodeID
	Name  string
	Value []byte
	Flags uint32
}

// GetXattrOp reads an extended attribute. When SizeOnly is set on return the
// session sends a size probe carrying ValueSize and ERANGE; otherwise it
// sends Value.
type GetXattrOp struct {
	OpContext OpContext

	Inode InodeID
	Name  string

	// Size is the capacity of the kernel-side buffer; zero means the kernel
	// is probing for the value's size.
	Size uint32

	// Out
	SizeOnly  bool
	ValueSize uint32
	Value     []byte
}

// ListXattrOp lists attribute names as a concatenation of NUL-terminated
// strings in Value, with the same size-probe convention as GetXattrOp.
type ListXattrOp struct {
	OpContext OpContext

	Inode InodeID
	Size  uint32

	// Out
	SizeOnly  bool
	ValueSize uint32
	Value     []byte
}

type RemoveXattrOp struct {
	OpContext OpContext

	Inode InodeID
	Name  string
}

////////////////////////////////////////////////////////////////////////
// Locking
////////////////////////////////////////////////////////////////////////

type GetFileLockOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID
	Owner  uint64
	Lock   FileLock

	// Out
	Result FileLock
}

// SetFileLockOp acquires or releases a lock. Blocking distinguishes SETLKW
// from SETLK; a blocking acquisition should not return until the lock is
// held or the request is interrupted.
type SetFileLockOp struct {
	OpContext OpContext

	Inode    InodeID
	Handle   HandleID
	Owner    uint64
	Lock     FileLock
	Blocking bool
}

////////////////////////////////////////////////////////////////////////
// Miscellaneous
////////////////////////////////////////////////////////////////////////

type StatFSOp struct {
	OpContext OpContext

	Inode InodeID

	// Out
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64
	Inodes          uint64
	InodesFree      uint64
	NameMax         uint32
	FragmentSize    uint32
}

type AccessOp struct {
	OpContext OpContext

	Inode InodeID
	Mask  uint32
}

// InterruptOp tells the file system the kernel is no longer waiting for the
// request identified by FuseID. The in-flight operation is not aborted by
// the session; the file system may use this to unblock it.
type InterruptOp struct {
	OpContext OpContext

	FuseID uint64
}

type BmapOp struct {
	OpContext OpContext

	Inode     InodeID
	BlockSize uint32
	Block     uint64

	// Out
	Result uint64
}

type PollOp struct {
	OpContext OpContext

	Inode  InodeID
	Handle HandleID

	// Kh is the kernel poll handle to pass to a Wakeup notification; valid
	// only when ScheduleNotify is set.
	Kh             uint64
	ScheduleNotify bool

	Flags  uint32
	Events uint32

	// Out
	Revents uint32
}

// NotifyReplyOp carries the kernel's answer to a Retrieve notification. A
// reply is sent only on error.
type NotifyReplyOp struct {
	OpContext OpContext

	Inode  InodeID
	Offset uint64
	Data   []byte
}
