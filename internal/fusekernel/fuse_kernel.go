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

// Package fusekernel contains the definitions of the Linux FUSE kernel ABI:
// the opcode enumeration, the fixed-layout request and response records, and
// the feature flags negotiated at INIT time.
//
// All records are laid out exactly as the kernel's fuse.h declares them for
// protocol 7.31. Multi-byte integers are little-endian; on the platforms this
// package supports that is also host order, so records are read and written
// by type punning rather than by field-at-a-time serialization.
package fusekernel

// The protocol version spoken by this library.
const (
	KernelVersion      = 7
	KernelMinorVersion = 31
)

// InHeader leads every message read from the device. Len is the total length
// of the message, header included.
type InHeader struct {
	Len     uint32
	Opcode  uint32
	Unique  uint64
	Nodeid  uint64
	Uid     uint32
	Gid     uint32
	Pid     uint32
	Padding uint32
}

// OutHeader leads every message written to the device. For replies Error is
// zero or a negative errno and Unique echoes the request; for notifications
// Unique is zero and Error carries the notification code.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

// Opcode is the operation discriminator carried in InHeader.
type Opcode uint32

const (
	OpLookup        Opcode = 1
	OpForget        Opcode = 2
	OpGetattr       Opcode = 3
	OpSetattr       Opcode = 4
	OpReadlink      Opcode = 5
	OpSymlink       Opcode = 6
	OpMknod         Opcode = 8
	OpMkdir         Opcode = 9
	OpUnlink        Opcode = 10
	OpRmdir         Opcode = 11
	OpRename        Opcode = 12
	OpLink          Opcode = 13
	OpOpen          Opcode = 14
	OpRead          Opcode = 15
	OpWrite         Opcode = 16
	OpStatfs        Opcode = 17
	OpRelease       Opcode = 18
	OpFsync         Opcode = 20
	OpSetxattr      Opcode = 21
	OpGetxattr      Opcode = 22
	OpListxattr     Opcode = 23
	OpRemovexattr   Opcode = 24
	OpFlush         Opcode = 25
	OpInit          Opcode = 26
	OpOpendir       Opcode = 27
	OpReaddir       Opcode = 28
	OpReleasedir    Opcode = 29
	OpFsyncdir      Opcode = 30
	OpGetlk         Opcode = 31
	OpSetlk         Opcode = 32
	OpSetlkw        Opcode = 33
	OpAccess        Opcode = 34
	OpCreate        Opcode = 35
	OpInterrupt     Opcode = 36
	OpBmap          Opcode = 37
	OpDestroy       Opcode = 38
	OpIoctl         Opcode = 39
	OpPoll          Opcode = 40
	OpNotifyReply   Opcode = 41
	OpBatchForget   Opcode = 42
	OpFallocate     Opcode = 43
	OpReaddirplus   Opcode = 44
	OpRename2       Opcode = 45
	OpLseek         Opcode = 46
	OpCopyFileRange Opcode = 47

	// OS X only; recognized so that a macOS kernel doesn't trip the unknown
	// opcode path, but never dispatched.
	OpSetvolname Opcode = 61
	OpGetxtimes  Opcode = 62
	OpExchange   Opcode = 63
)

var opcodeNames = map[Opcode]string{
	OpLookup:        "LOOKUP",
	OpForget:        "FORGET",
	OpGetattr:       "GETATTR",
	OpSetattr:       "SETATTR",
	OpReadlink:      "READLINK",
	OpSymlink:       "SYMLINK",
	OpMknod:         "MKNOD",
	OpMkdir:         "MKDIR",
	OpUnlink:        "UNLINK",
	OpRmdir:         "RMDIR",
	OpRename:        "RENAME",
	OpLink:          "LINK",
	OpOpen:          "OPEN",
	OpRead:          "READ",
	OpWrite:         "WRITE",
	OpStatfs:        "STATFS",
	OpRelease:       "RELEASE",
	OpFsync:         "FSYNC",
	OpSetxattr:      "SETXATTR",
	OpGetxattr:      "GETXATTR",
	OpListxattr:     "LISTXATTR",
	OpRemovexattr:   "REMOVEXATTR",
	OpFlush:         "FLUSH",
	OpInit:          "INIT",
	OpOpendir:       "OPENDIR",
	OpReaddir:       "READDIR",
	OpReleasedir:    "RELEASEDIR",
	OpFsyncdir:      "FSYNCDIR",
	OpGetlk:         "GETLK",
	OpSetlk:         "SETLK",
	OpSetlkw:        "SETLKW",
	OpAccess:        "ACCESS",
	OpCreate:        "CREATE",
	OpInterrupt:     "INTERRUPT",
	OpBmap:          "BMAP",
	OpDestroy:       "DESTROY",
	OpIoctl:         "IOCTL",
	OpPoll:          "POLL",
	OpNotifyReply:   "NOTIFY_REPLY",
	OpBatchForget:   "BATCH_FORGET",
	OpFallocate:     "FALLOCATE",
	OpReaddirplus:   "READDIRPLUS",
	OpRename2:       "RENAME2",
	OpLseek:         "LSEEK",
	OpCopyFileRange: "COPY_FILE_RANGE",
	OpSetvolname:    "SETVOLNAME",
	OpGetxtimes:     "GETXTIMES",
	OpExchange:      "EXCHANGE",
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return "UNKNOWN"
}

// Known returns whether o is part of the protocol this library speaks.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// InitFlags are the feature bits offered by the kernel in InitIn.Flags and
// answered in InitOut.Flags.
type InitFlags uint32

const (
	InitAsyncRead       InitFlags = 1 << 0
	InitPosixLocks      InitFlags = 1 << 1
	InitFileOps         InitFlags = 1 << 2
	InitAtomicTrunc     InitFlags = 1 << 3
	InitExportSupport   InitFlags = 1 << 4
	InitBigWrites       InitFlags = 1 << 5
	InitDontMask        InitFlags = 1 << 6
	InitSpliceWrite     InitFlags = 1 << 7
	InitSpliceMove      InitFlags = 1 << 8
	InitSpliceRead      InitFlags = 1 << 9
	InitFlockLocks      InitFlags = 1 << 10
	InitHasIoctlDir     InitFlags = 1 << 11
	InitAutoInvalData   InitFlags = 1 << 12
	InitDoReaddirplus   InitFlags = 1 << 13
	InitReaddirplusAuto InitFlags = 1 << 14
	InitAsyncDIO        InitFlags = 1 << 15
	InitWritebackCache  InitFlags = 1 << 16
	InitNoOpenSupport   InitFlags = 1 << 17
	InitParallelDirOps  InitFlags = 1 << 18
	InitHandleKillpriv  InitFlags = 1 << 19
	InitPosixACL        InitFlags = 1 << 20
	InitAbortError      InitFlags = 1 << 21
	InitMaxPages        InitFlags = 1 << 22
	InitCacheSymlinks   InitFlags = 1 << 23
	InitNoOpendirSupport InitFlags = 1 << 24
)

// NotifyCode is carried in OutHeader.Error for unsolicited notifications.
type NotifyCode int32

const (
	NotifyCodePoll       NotifyCode = 1
	NotifyCodeInvalInode NotifyCode = 2
	NotifyCodeInvalEntry NotifyCode = 3
	NotifyCodeStore      NotifyCode = 4
	NotifyCodeRetrieve   NotifyCode = 5
	NotifyCodeDelete     NotifyCode = 6
)

// Attr is the wire form of inode attributes, embedded in EntryOut and
// AttrOut.
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint32
	Blksize   uint32
	Padding   uint32
}

type EntryOut struct {
	Nodeid         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        InitFlags
}

type InitOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               InitFlags
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32
	TimeGran            uint32
	MaxPages            uint16
	MapAlignment        uint16
	Unused              [8]uint32
}

type ForgetIn struct {
	Nlookup uint64
}

type BatchForgetIn struct {
	Count uint32
	Dummy uint32
}

type ForgetOne struct {
	Nodeid  uint64
	Nlookup uint64
}

// GetattrIn flag bits.
const GetattrFh = 1 << 0

type GetattrIn struct {
	GetattrFlags uint32
	Dummy        uint32
	Fh           uint64
}

// SetattrIn valid bits.
const (
	FattrMode     = 1 << 0
	FattrUid      = 1 << 1
	FattrGid      = 1 << 2
	FattrSize     = 1 << 3
	FattrAtime    = 1 << 4
	FattrMtime    = 1 << 5
	FattrFh       = 1 << 6
	FattrAtimeNow = 1 << 7
	FattrMtimeNow = 1 << 8
	FattrLockOwner = 1 << 9
	FattrCtime    = 1 << 10
)

type SetattrIn struct {
	Valid     uint32
	Padding   uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Unused4   uint32
	Uid       uint32
	Gid       uint32
	Unused5   uint32
}

type MknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	Padding uint32
}

type MkdirIn struct {
	Mode  uint32
	Umask uint32
}

type RenameIn struct {
	Newdir uint64
}

type Rename2In struct {
	Newdir  uint64
	Flags   uint32
	Padding uint32
}

type LinkIn struct {
	Oldnodeid uint64
}

type OpenIn struct {
	Flags  uint32
	Unused uint32
}

// OpenOut flag bits.
const (
	FopenDirectIO    = 1 << 0
	FopenKeepCache   = 1 << 1
	FopenNonSeekable = 1 << 2
	FopenCacheDir    = 1 << 3
)

type OpenOut struct {
	Fh        uint64
	OpenFlags uint32
	Padding   uint32
}

type ReadIn struct {
	Fh        uint64
	Offset    uint64
	Size      uint32
	ReadFlags uint32
	LockOwner uint64
	Flags     uint32
	Padding   uint32
}

type WriteIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

type WriteOut struct {
	Size    uint32
	Padding uint32
}

type Kstatfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

type StatfsOut struct {
	St Kstatfs
}

// ReleaseIn flag bits.
const ReleaseFlush = 1 << 0

type ReleaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

type FsyncIn struct {
	Fh         uint64
	FsyncFlags uint32
	Padding    uint32
}

type SetxattrIn struct {
	Size  uint32
	Flags uint32
}

type GetxattrIn struct {
	Size    uint32
	Padding uint32
}

type GetxattrOut struct {
	Size    uint32
	Padding uint32
}

type FlushIn struct {
	Fh        uint64
	Unused    uint32
	Padding   uint32
	LockOwner uint64
}

type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

type LkIn struct {
	Fh      uint64
	Owner   uint64
	Lk      FileLock
	LkFlags uint32
	Padding uint32
}

type LkOut struct {
	Lk FileLock
}

type AccessIn struct {
	Mask    uint32
	Padding uint32
}

type CreateIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
}

type InterruptIn struct {
	Unique uint64
}

type BmapIn struct {
	Block     uint64
	Blocksize uint32
	Padding   uint32
}

type BmapOut struct {
	Block uint64
}

// PollIn flag bits.
const PollScheduleNotify = 1 << 0

type PollIn struct {
	Fh     uint64
	Kh     uint64
	Flags  uint32
	Events uint32
}

type PollOut struct {
	Revents uint32
	Padding uint32
}

type NotifyRetrieveIn struct {
	Dummy1 uint64
	Offset uint64
	Size   uint32
	Dummy2 uint32
	Dummy3 uint64
	Dummy4 uint64
}

type FallocateIn struct {
	Fh      uint64
	Offset  uint64
	Length  uint64
	Mode    uint32
	Padding uint32
}

type LseekIn struct {
	Fh      uint64
	Offset  uint64
	Whence  uint32
	Padding uint32
}

type LseekOut struct {
	Offset uint64
}

type CopyFileRangeIn struct {
	FhIn      uint64
	OffIn     uint64
	NodeidOut uint64
	FhOut     uint64
	OffOut    uint64
	Len       uint64
	Flags     uint64
}

// DirentAlignment is the boundary every serialized directory entry is padded
// to.
const DirentAlignment = 8

// Dirent is the fixed header of a READDIR entry; Namelen name bytes follow,
// then zero padding to DirentAlignment.
type Dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
}

// DirentPlus is the READDIRPLUS variant: a full entry followed by the plain
// dirent header.
type DirentPlus struct {
	EntryOut EntryOut
	Dirent   Dirent
}

// Notification bodies. Name payloads follow InvalEntryOut and DeleteOut and
// are not NUL-terminated; the kernel reads exactly Namelen bytes.

type NotifyPollWakeupOut struct {
	Kh uint64
}

type NotifyInvalInodeOut struct {
	Ino uint64
	Off int64
	Len int64
}

type NotifyInvalEntryOut struct {
	Parent  uint64
	Namelen uint32
	Padding uint32
}

type NotifyDeleteOut struct {
	Parent  uint64
	Child   uint64
	Namelen uint32
	Padding uint32
}

type NotifyStoreOut struct {
	Nodeid  uint64
	Offset  uint64
	Size    uint32
	Padding uint32
}

type NotifyRetrieveOut struct {
	NotifyUnique uint64
	Nodeid       uint64
	Offset       uint64
	Size         uint32
	Padding      uint32
}

// Compile-time sizes of the records above, used to size reply buffers.
// Checked against unsafe.Sizeof in tests.
const (
	InHeaderSize  = 40
	OutHeaderSize = 16

	AttrSize     = 88
	EntryOutSize = 128
	AttrOutSize  = 104

	InitInSize  = 16
	InitOutSize = 64

	ForgetInSize      = 8
	BatchForgetInSize = 8
	ForgetOneSize     = 16

	GetattrInSize = 16
	SetattrInSize = 88

	MknodInSize   = 16
	MkdirInSize   = 8
	RenameInSize  = 8
	Rename2InSize = 16
	LinkInSize    = 8

	OpenInSize  = 8
	OpenOutSize = 16

	ReadInSize   = 40
	WriteInSize  = 40
	WriteOutSize = 8

	StatfsOutSize = 80

	ReleaseInSize = 24
	FsyncInSize   = 16

	SetxattrInSize  = 8
	GetxattrInSize  = 8
	GetxattrOutSize = 8

	FlushInSize = 24

	LkInSize  = 48
	LkOutSize = 24

	AccessInSize    = 8
	CreateInSize    = 16
	InterruptInSize = 8

	BmapInSize  = 16
	BmapOutSize = 8

	PollInSize  = 24
	PollOutSize = 8

	NotifyRetrieveInSize = 40

	FallocateInSize = 32

	LseekInSize  = 24
	LseekOutSize = 8

	CopyFileRangeInSize = 56

	DirentSize     = 24
	DirentPlusSize = 152

	NotifyPollWakeupOutSize = 8
	NotifyInvalInodeOutSize = 24
	NotifyInvalEntryOutSize = 16
	NotifyDeleteOutSize     = 24
	NotifyStoreOutSize      = 24
	NotifyRetrieveOutSize   = 32
)
