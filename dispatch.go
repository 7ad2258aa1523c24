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
	"os"
	"time"
	"unsafe"

	"github.com/jacobsa/reqtrace"
	"golang.org/x/sys/unix"

	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/fuseutil"
	"github.com/sessionfs/fuse/internal/buffer"
	"github.com/sessionfs/fuse/internal/fusekernel"
)

// sendError enqueues a header-only reply carrying a negative errno.
func (s *Session) sendError(unique uint64, errno unix.Errno) {
	om := buffer.NewOutMessage(0)
	h := om.OutHeader()
	h.Len = uint32(om.Len())
	h.Error = -int32(errno)
	h.Unique = unique

	s.enqueue(om.Bytes())
}

// emptyReply builds a header-only success reply.
func emptyReply() buffer.OutMessage {
	return buffer.NewOutMessage(0)
}

// entryReply builds an EntryOut reply from a lookup result.
func entryReply(e *fuseops.ChildInodeEntry) buffer.OutMessage {
	om := buffer.NewOutMessage(fusekernel.EntryOutSize)
	out := (*fusekernel.EntryOut)(om.Grow(unsafe.Sizeof(fusekernel.EntryOut{})))
	fuseops.ConvertChildInodeEntry(e, out)

	return om
}

// spawn launches the goroutine serving a single request: it calls the file
// system and enqueues either an errno reply or the encoded success reply.
func (s *Session) spawn(
	desc string,
	unique uint64,
	call func(context.Context) error,
	encode func() buffer.OutMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, report := reqtrace.StartSpan(s.cfg.opContext(), desc)

		err := call(ctx)
		report(err)

		if err != nil {
			errno := ErrnoFromError(err)
			s.logf("-> %s unique %v error: %v", desc, unique, errno)
			s.sendError(unique, errno)
			return
		}

		om := encode()
		h := om.OutHeader()
		h.Len = uint32(om.Len())
		h.Unique = unique

		s.logf("-> %s unique %v", desc, unique)
		s.enqueue(om.Bytes())
	}()
}

// spawnQuiet is spawn for the opcodes that never receive a reply.
func (s *Session) spawnQuiet(desc string, call func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, report := reqtrace.StartSpan(s.cfg.opContext(), desc)
		report(call(ctx))
	}()
}

// spawnReplyOnError is spawn for NOTIFY_REPLY, which is answered only when
// the file system fails.
func (s *Session) spawnReplyOnError(
	desc string,
	unique uint64,
	call func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, report := reqtrace.StartSpan(s.cfg.opContext(), desc)

		err := call(ctx)
		report(err)

		if err != nil {
			s.sendError(unique, ErrnoFromError(err))
		}
	}()
}

// dispatch decodes the body of a single non-INIT, non-DESTROY message and
// hands the typed op to the file system on its own goroutine. Decode
// failures reply EINVAL for opcodes that expect replies and are dropped for
// the reply-less ones.
func (s *Session) dispatch(m *buffer.InMessage) {
	// Copy the header: the message storage is reused the moment this returns.
	h := *m.Header()
	opCtx := fuseops.OpContext{FuseID: h.Unique, Uid: h.Uid, Gid: h.Gid, Pid: h.Pid}
	inode := fuseops.InodeID(h.Nodeid)

	switch fusekernel.Opcode(h.Opcode) {
	case fusekernel.OpLookup:
		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.LookUpInodeOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
		}
		s.spawn("LookUpInode", h.Unique,
			func(ctx context.Context) error { return s.fs.LookUpInode(ctx, op) },
			func() buffer.OutMessage { return entryReply(&op.Entry) })

	case fusekernel.OpForget:
		p := m.Consume(unsafe.Sizeof(fusekernel.ForgetIn{}))
		if p == nil {
			s.logError("truncated FORGET; dropping")
			return
		}
		in := *(*fusekernel.ForgetIn)(p)

		op := &fuseops.ForgetInodeOp{OpContext: opCtx, Inode: inode, N: in.Nlookup}
		s.spawnQuiet("ForgetInode",
			func(ctx context.Context) error { return s.fs.ForgetInode(ctx, op) })

	case fusekernel.OpBatchForget:
		p := m.Consume(unsafe.Sizeof(fusekernel.BatchForgetIn{}))
		if p == nil {
			s.logError("truncated BATCH_FORGET; dropping")
			return
		}
		in := *(*fusekernel.BatchForgetIn)(p)

		entries := make([]fuseops.BatchForgetEntry, 0, in.Count)
		for uintptr(m.Len()) >= unsafe.Sizeof(fusekernel.ForgetOne{}) {
			one := *(*fusekernel.ForgetOne)(m.Consume(unsafe.Sizeof(fusekernel.ForgetOne{})))
			entries = append(entries, fuseops.BatchForgetEntry{
				Inode: fuseops.InodeID(one.Nodeid),
				N:     one.Nlookup,
			})
		}

		if uint32(len(entries)) != in.Count {
			// Forgets are advisory; process what arrived rather than leak the
			// kernel-side references.
			s.logError(
				"BATCH_FORGET carried %d records, header claimed %d",
				len(entries), in.Count)
		}

		// Runs on the read loop: there is no reply to wait for and no point
		// paying for a goroutine per forget batch.
		op := &fuseops.BatchForgetOp{OpContext: opCtx, Entries: entries}
		_ = s.fs.BatchForget(s.cfg.opContext(), op)

	case fusekernel.OpGetattr:
		p := m.Consume(unsafe.Sizeof(fusekernel.GetattrIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.GetattrIn)(p)

		op := &fuseops.GetInodeAttributesOp{OpContext: opCtx, Inode: inode}
		if in.GetattrFlags&fusekernel.GetattrFh != 0 {
			handle := fuseops.HandleID(in.Fh)
			op.Handle = &handle
		}
		s.spawn("GetInodeAttributes", h.Unique,
			func(ctx context.Context) error { return s.fs.GetInodeAttributes(ctx, op) },
			func() buffer.OutMessage {
				return attrReply(op.Inode, &op.Attributes, op.AttributesExpiration)
			})

	case fusekernel.OpSetattr:
		p := m.Consume(unsafe.Sizeof(fusekernel.SetattrIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.SetattrIn)(p)

		op := &fuseops.SetInodeAttributesOp{OpContext: opCtx, Inode: inode}
		if in.Valid&fusekernel.FattrFh != 0 {
			handle := fuseops.HandleID(in.Fh)
			op.Handle = &handle
		}
		if in.Valid&fusekernel.FattrSize != 0 {
			size := in.Size
			op.Size = &size
		}
		if in.Valid&fusekernel.FattrMode != 0 {
			mode := fuseops.ConvertKernelMode(in.Mode)
			op.Mode = &mode
		}
		if in.Valid&fusekernel.FattrUid != 0 {
			uid := in.Uid
			op.Uid = &uid
		}
		if in.Valid&fusekernel.FattrGid != 0 {
			gid := in.Gid
			op.Gid = &gid
		}
		now := time.Now()
		if in.Valid&fusekernel.FattrAtime != 0 {
			t := time.Unix(int64(in.Atime), int64(in.AtimeNsec))
			op.Atime = &t
		} else if in.Valid&fusekernel.FattrAtimeNow != 0 {
			op.Atime = &now
		}
		if in.Valid&fusekernel.FattrMtime != 0 {
			t := time.Unix(int64(in.Mtime), int64(in.MtimeNsec))
			op.Mtime = &t
		} else if in.Valid&fusekernel.FattrMtimeNow != 0 {
			op.Mtime = &now
		}
		if in.Valid&fusekernel.FattrCtime != 0 {
			t := time.Unix(int64(in.Ctime), int64(in.CtimeNsec))
			op.Ctime = &t
		}

		s.spawn("SetInodeAttributes", h.Unique,
			func(ctx context.Context) error { return s.fs.SetInodeAttributes(ctx, op) },
			func() buffer.OutMessage {
				return attrReply(op.Inode, &op.Attributes, op.AttributesExpiration)
			})

	case fusekernel.OpReadlink:
		op := &fuseops.ReadSymlinkOp{OpContext: opCtx, Inode: inode}
		s.spawn("ReadSymlink", h.Unique,
			func(ctx context.Context) error { return s.fs.ReadSymlink(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(uintptr(len(op.Target)))
				om.AppendString(op.Target)
				return om
			})

	case fusekernel.OpSymlink:
		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		target, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.CreateSymlinkOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
			Target:    string(target),
		}
		s.spawn("CreateSymlink", h.Unique,
			func(ctx context.Context) error { return s.fs.CreateSymlink(ctx, op) },
			func() buffer.OutMessage { return entryReply(&op.Entry) })

	case fusekernel.OpMknod:
		p := m.Consume(unsafe.Sizeof(fusekernel.MknodIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.MknodIn)(p)

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.MkNodeOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
			Mode:      fuseops.ConvertKernelMode(in.Mode),
			Rdev:      in.Rdev,
		}
		s.spawn("MkNode", h.Unique,
			func(ctx context.Context) error { return s.fs.MkNode(ctx, op) },
			func() buffer.OutMessage { return entryReply(&op.Entry) })

	case fusekernel.OpMkdir:
		p := m.Consume(unsafe.Sizeof(fusekernel.MkdirIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.MkdirIn)(p)

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.MkDirOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
			Mode:      fuseops.ConvertKernelMode(in.Mode) | os.ModeDir,
			Umask:     in.Umask,
		}
		s.spawn("MkDir", h.Unique,
			func(ctx context.Context) error { return s.fs.MkDir(ctx, op) },
			func() buffer.OutMessage { return entryReply(&op.Entry) })

	case fusekernel.OpUnlink:
		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.UnlinkOp{OpContext: opCtx, Parent: inode, Name: string(name)}
		s.spawn("Unlink", h.Unique,
			func(ctx context.Context) error { return s.fs.Unlink(ctx, op) },
			emptyReply)

	case fusekernel.OpRmdir:
		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.RmDirOp{OpContext: opCtx, Parent: inode, Name: string(name)}
		s.spawn("RmDir", h.Unique,
			func(ctx context.Context) error { return s.fs.RmDir(ctx, op) },
			emptyReply)

	case fusekernel.OpRename:
		p := m.Consume(unsafe.Sizeof(fusekernel.RenameIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.RenameIn)(p)

		oldName, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		newName, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.RenameOp{
			OpContext: opCtx,
			OldParent: inode,
			OldName:   string(oldName),
			NewParent: fuseops.InodeID(in.Newdir),
			NewName:   string(newName),
		}
		s.spawn("Rename", h.Unique,
			func(ctx context.Context) error { return s.fs.Rename(ctx, op) },
			emptyReply)

	case fusekernel.OpRename2:
		p := m.Consume(unsafe.Sizeof(fusekernel.Rename2In{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.Rename2In)(p)

		oldName, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		newName, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.Rename2Op{
			OpContext: opCtx,
			OldParent: inode,
			OldName:   string(oldName),
			NewParent: fuseops.InodeID(in.Newdir),
			NewName:   string(newName),
			Flags:     in.Flags,
		}
		s.spawn("Rename2", h.Unique,
			func(ctx context.Context) error { return s.fs.Rename2(ctx, op) },
			emptyReply)

	case fusekernel.OpLink:
		p := m.Consume(unsafe.Sizeof(fusekernel.LinkIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.LinkIn)(p)

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.CreateLinkOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
			Target:    fuseops.InodeID(in.Oldnodeid),
		}
		s.spawn("CreateLink", h.Unique,
			func(ctx context.Context) error { return s.fs.CreateLink(ctx, op) },
			func() buffer.OutMessage { return entryReply(&op.Entry) })

	case fusekernel.OpOpen:
		p := m.Consume(unsafe.Sizeof(fusekernel.OpenIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.OpenIn)(p)

		op := &fuseops.OpenFileOp{OpContext: opCtx, Inode: inode, Flags: in.Flags}
		s.spawn("OpenFile", h.Unique,
			func(ctx context.Context) error { return s.fs.OpenFile(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.OpenOutSize)
				out := (*fusekernel.OpenOut)(om.Grow(unsafe.Sizeof(fusekernel.OpenOut{})))
				out.Fh = uint64(op.Handle)
				if op.KeepPageCache {
					out.OpenFlags |= fusekernel.FopenKeepCache
				}
				if op.UseDirectIO {
					out.OpenFlags |= fusekernel.FopenDirectIO
				}
				return om
			})

	case fusekernel.OpRead:
		p := m.Consume(unsafe.Sizeof(fusekernel.ReadIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.ReadIn)(p)

		op := &fuseops.ReadFileOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    in.Offset,
			Size:      in.Size,
		}
		s.spawn("ReadFile", h.Unique,
			func(ctx context.Context) error { return s.fs.ReadFile(ctx, op) },
			func() buffer.OutMessage {
				data := op.Data
				if uint32(len(data)) > op.Size {
					data = data[:op.Size]
				}

				om := buffer.NewOutMessage(uintptr(len(data)))
				om.Append(data)
				return om
			})

	case fusekernel.OpWrite:
		p := m.Consume(unsafe.Sizeof(fusekernel.WriteIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.WriteIn)(p)

		payload := m.Rest()
		if uint32(len(payload)) != in.Size {
			s.logError(
				"WRITE unique %v carried %d payload bytes, header claimed %d",
				h.Unique, len(payload), in.Size)
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		// The read buffer is reused; the op owns its own copy.
		data := make([]byte, len(payload))
		copy(data, payload)

		op := &fuseops.WriteFileOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    in.Offset,
			Data:      data,
			Flags:     in.Flags,
		}
		s.spawn("WriteFile", h.Unique,
			func(ctx context.Context) error { return s.fs.WriteFile(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.WriteOutSize)
				out := (*fusekernel.WriteOut)(om.Grow(unsafe.Sizeof(fusekernel.WriteOut{})))
				out.Size = op.BytesWritten
				return om
			})

	case fusekernel.OpStatfs:
		op := &fuseops.StatFSOp{OpContext: opCtx, Inode: inode}
		s.spawn("StatFS", h.Unique,
			func(ctx context.Context) error { return s.fs.StatFS(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.StatfsOutSize)
				out := (*fusekernel.StatfsOut)(om.Grow(unsafe.Sizeof(fusekernel.StatfsOut{})))
				out.St.Blocks = op.Blocks
				out.St.Bfree = op.BlocksFree
				out.St.Bavail = op.BlocksAvailable
				out.St.Files = op.Inodes
				out.St.Ffree = op.InodesFree
				out.St.Bsize = op.BlockSize
				out.St.Namelen = op.NameMax
				out.St.Frsize = op.FragmentSize
				return om
			})

	case fusekernel.OpRelease:
		p := m.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.ReleaseIn)(p)

		op := &fuseops.ReleaseFileHandleOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Flags:     in.Flags,
			LockOwner: in.LockOwner,
			Flush:     in.ReleaseFlags&fusekernel.ReleaseFlush != 0,
		}
		s.spawn("ReleaseFileHandle", h.Unique,
			func(ctx context.Context) error { return s.fs.ReleaseFileHandle(ctx, op) },
			emptyReply)

	case fusekernel.OpFsync:
		p := m.Consume(unsafe.Sizeof(fusekernel.FsyncIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.FsyncIn)(p)

		op := &fuseops.SyncFileOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			DataSync:  in.FsyncFlags&1 != 0,
		}
		s.spawn("SyncFile", h.Unique,
			func(ctx context.Context) error { return s.fs.SyncFile(ctx, op) },
			emptyReply)

	case fusekernel.OpSetxattr:
		p := m.Consume(unsafe.Sizeof(fusekernel.SetxattrIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.SetxattrIn)(p)

		if uint32(m.Len()) != in.Size {
			s.logError(
				"SETXATTR unique %v carried %d payload bytes, header claimed %d",
				h.Unique, m.Len(), in.Size)
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		rest := m.Rest()
		value := make([]byte, len(rest))
		copy(value, rest)

		op := &fuseops.SetXattrOp{
			OpContext: opCtx,
			Inode:     inode,
			Name:      string(name),
			Value:     value,
			Flags:     in.Flags,
		}
		s.spawn("SetXattr", h.Unique,
			func(ctx context.Context) error { return s.fs.SetXattr(ctx, op) },
			emptyReply)

	case fusekernel.OpGetxattr:
		p := m.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.GetxattrIn)(p)

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.GetXattrOp{
			OpContext: opCtx,
			Inode:     inode,
			Name:      string(name),
			Size:      in.Size,
		}
		s.spawn("GetXattr", h.Unique,
			func(ctx context.Context) error { return s.fs.GetXattr(ctx, op) },
			func() buffer.OutMessage { return xattrReply(op.SizeOnly, op.ValueSize, op.Value) })

	case fusekernel.OpListxattr:
		p := m.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.GetxattrIn)(p)

		op := &fuseops.ListXattrOp{OpContext: opCtx, Inode: inode, Size: in.Size}
		s.spawn("ListXattr", h.Unique,
			func(ctx context.Context) error { return s.fs.ListXattr(ctx, op) },
			func() buffer.OutMessage { return xattrReply(op.SizeOnly, op.ValueSize, op.Value) })

	case fusekernel.OpRemovexattr:
		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.RemoveXattrOp{OpContext: opCtx, Inode: inode, Name: string(name)}
		s.spawn("RemoveXattr", h.Unique,
			func(ctx context.Context) error { return s.fs.RemoveXattr(ctx, op) },
			emptyReply)

	case fusekernel.OpFlush:
		p := m.Consume(unsafe.Sizeof(fusekernel.FlushIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.FlushIn)(p)

		op := &fuseops.FlushFileOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			LockOwner: in.LockOwner,
		}
		s.spawn("FlushFile", h.Unique,
			func(ctx context.Context) error { return s.fs.FlushFile(ctx, op) },
			emptyReply)

	case fusekernel.OpOpendir:
		p := m.Consume(unsafe.Sizeof(fusekernel.OpenIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.OpenIn)(p)

		op := &fuseops.OpenDirOp{OpContext: opCtx, Inode: inode, Flags: in.Flags}
		s.spawn("OpenDir", h.Unique,
			func(ctx context.Context) error { return s.fs.OpenDir(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.OpenOutSize)
				out := (*fusekernel.OpenOut)(om.Grow(unsafe.Sizeof(fusekernel.OpenOut{})))
				out.Fh = uint64(op.Handle)
				if op.CacheDir {
					out.OpenFlags |= fusekernel.FopenCacheDir
				}
				return om
			})

	case fusekernel.OpReaddir:
		if s.cfg.ForceReaddirPlus {
			s.sendError(h.Unique, unix.ENOSYS)
			return
		}

		p := m.Consume(unsafe.Sizeof(fusekernel.ReadIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.ReadIn)(p)

		op := &fuseops.ReadDirOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    fuseops.DirOffset(in.Offset),
			Size:      in.Size,
		}
		s.spawn("ReadDir", h.Unique,
			func(ctx context.Context) error { return s.fs.ReadDir(ctx, op) },
			func() buffer.OutMessage {
				// An entry whose unpadded length would push the body past the
				// requested size is omitted entirely.
				body := make([]byte, 0, op.Size)
				for _, e := range op.Entries {
					if len(body)+fuseutil.DirentLen(e) > int(op.Size) {
						break
					}
					body = fuseutil.AppendDirent(body, e)
				}

				om := buffer.NewOutMessage(uintptr(len(body)))
				om.Append(body)
				return om
			})

	case fusekernel.OpReaddirplus:
		p := m.Consume(unsafe.Sizeof(fusekernel.ReadIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.ReadIn)(p)

		op := &fuseops.ReadDirPlusOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    fuseops.DirOffset(in.Offset),
			Size:      in.Size,
			LockOwner: in.LockOwner,
		}
		s.spawn("ReadDirPlus", h.Unique,
			func(ctx context.Context) error { return s.fs.ReadDirPlus(ctx, op) },
			func() buffer.OutMessage {
				body := make([]byte, 0, op.Size)
				for _, e := range op.Entries {
					if len(body)+fuseutil.DirentPlusLen(e) > int(op.Size) {
						break
					}
					body = fuseutil.AppendDirentPlus(body, e)
				}

				om := buffer.NewOutMessage(uintptr(len(body)))
				om.Append(body)
				return om
			})

	case fusekernel.OpReleasedir:
		p := m.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.ReleaseIn)(p)

		op := &fuseops.ReleaseDirHandleOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Flags:     in.Flags,
		}
		s.spawn("ReleaseDirHandle", h.Unique,
			func(ctx context.Context) error { return s.fs.ReleaseDirHandle(ctx, op) },
			emptyReply)

	case fusekernel.OpFsyncdir:
		p := m.Consume(unsafe.Sizeof(fusekernel.FsyncIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.FsyncIn)(p)

		op := &fuseops.SyncDirOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			DataSync:  in.FsyncFlags&1 != 0,
		}
		s.spawn("SyncDir", h.Unique,
			func(ctx context.Context) error { return s.fs.SyncDir(ctx, op) },
			emptyReply)

	case fusekernel.OpGetlk:
		if !s.cfg.EnableFileLocks {
			s.sendError(h.Unique, unix.ENOSYS)
			return
		}

		p := m.Consume(unsafe.Sizeof(fusekernel.LkIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.LkIn)(p)

		op := &fuseops.GetFileLockOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Owner:     in.Owner,
			Lock: fuseops.FileLock{
				Start: in.Lk.Start,
				End:   in.Lk.End,
				Type:  in.Lk.Type,
				Pid:   in.Lk.Pid,
			},
		}
		s.spawn("GetFileLock", h.Unique,
			func(ctx context.Context) error { return s.fs.GetFileLock(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.LkOutSize)
				out := (*fusekernel.LkOut)(om.Grow(unsafe.Sizeof(fusekernel.LkOut{})))
				out.Lk.Start = op.Result.Start
				out.Lk.End = op.Result.End
				out.Lk.Type = op.Result.Type
				out.Lk.Pid = op.Result.Pid
				return om
			})

	case fusekernel.OpSetlk, fusekernel.OpSetlkw:
		if !s.cfg.EnableFileLocks {
			s.sendError(h.Unique, unix.ENOSYS)
			return
		}

		p := m.Consume(unsafe.Sizeof(fusekernel.LkIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.LkIn)(p)

		op := &fuseops.SetFileLockOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Owner:     in.Owner,
			Lock: fuseops.FileLock{
				Start: in.Lk.Start,
				End:   in.Lk.End,
				Type:  in.Lk.Type,
				Pid:   in.Lk.Pid,
			},
			Blocking: fusekernel.Opcode(h.Opcode) == fusekernel.OpSetlkw,
		}
		s.spawn("SetFileLock", h.Unique,
			func(ctx context.Context) error { return s.fs.SetFileLock(ctx, op) },
			emptyReply)

	case fusekernel.OpAccess:
		p := m.Consume(unsafe.Sizeof(fusekernel.AccessIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.AccessIn)(p)

		op := &fuseops.AccessOp{OpContext: opCtx, Inode: inode, Mask: in.Mask}
		s.spawn("Access", h.Unique,
			func(ctx context.Context) error { return s.fs.Access(ctx, op) },
			emptyReply)

	case fusekernel.OpCreate:
		p := m.Consume(unsafe.Sizeof(fusekernel.CreateIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.CreateIn)(p)

		name, ok := m.ConsumeName()
		if !ok {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		op := &fuseops.CreateFileOp{
			OpContext: opCtx,
			Parent:    inode,
			Name:      string(name),
			Mode:      fuseops.ConvertKernelMode(in.Mode),
			Flags:     in.Flags,
		}
		s.spawn("CreateFile", h.Unique,
			func(ctx context.Context) error { return s.fs.CreateFile(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.EntryOutSize + fusekernel.OpenOutSize)

				e := (*fusekernel.EntryOut)(om.Grow(unsafe.Sizeof(fusekernel.EntryOut{})))
				fuseops.ConvertChildInodeEntry(&op.Entry, e)

				oo := (*fusekernel.OpenOut)(om.Grow(unsafe.Sizeof(fusekernel.OpenOut{})))
				oo.Fh = uint64(op.Handle)

				return om
			})

	case fusekernel.OpInterrupt:
		p := m.Consume(unsafe.Sizeof(fusekernel.InterruptIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.InterruptIn)(p)

		op := &fuseops.InterruptOp{OpContext: opCtx, FuseID: in.Unique}
		s.spawn("Interrupt", h.Unique,
			func(ctx context.Context) error { return s.fs.Interrupt(ctx, op) },
			emptyReply)

	case fusekernel.OpBmap:
		p := m.Consume(unsafe.Sizeof(fusekernel.BmapIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.BmapIn)(p)

		op := &fuseops.BmapOp{
			OpContext: opCtx,
			Inode:     inode,
			BlockSize: in.Blocksize,
			Block:     in.Block,
		}
		s.spawn("Bmap", h.Unique,
			func(ctx context.Context) error { return s.fs.Bmap(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.BmapOutSize)
				out := (*fusekernel.BmapOut)(om.Grow(unsafe.Sizeof(fusekernel.BmapOut{})))
				out.Block = op.Result
				return om
			})

	case fusekernel.OpPoll:
		p := m.Consume(unsafe.Sizeof(fusekernel.PollIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.PollIn)(p)

		op := &fuseops.PollOp{
			OpContext:      opCtx,
			Inode:          inode,
			Handle:         fuseops.HandleID(in.Fh),
			Kh:             in.Kh,
			ScheduleNotify: in.Flags&fusekernel.PollScheduleNotify != 0,
			Flags:          in.Flags,
			Events:         in.Events,
		}
		s.spawn("Poll", h.Unique,
			func(ctx context.Context) error { return s.fs.Poll(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.PollOutSize)
				out := (*fusekernel.PollOut)(om.Grow(unsafe.Sizeof(fusekernel.PollOut{})))
				out.Revents = op.Revents
				return om
			})

	case fusekernel.OpNotifyReply:
		p := m.Consume(unsafe.Sizeof(fusekernel.NotifyRetrieveIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.NotifyRetrieveIn)(p)

		payload := m.Rest()
		if uint32(len(payload)) != in.Size {
			s.logError(
				"NOTIFY_REPLY unique %v carried %d payload bytes, header claimed %d",
				h.Unique, len(payload), in.Size)
			s.sendError(h.Unique, unix.EINVAL)
			return
		}

		data := make([]byte, in.Size)
		copy(data, payload[:in.Size])

		op := &fuseops.NotifyReplyOp{
			OpContext: opCtx,
			Inode:     inode,
			Offset:    in.Offset,
			Data:      data,
		}
		s.spawnReplyOnError("NotifyReply", h.Unique,
			func(ctx context.Context) error { return s.fs.NotifyReply(ctx, op) })

	case fusekernel.OpFallocate:
		p := m.Consume(unsafe.Sizeof(fusekernel.FallocateIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.FallocateIn)(p)

		op := &fuseops.FallocateOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    in.Offset,
			Length:    in.Length,
			Mode:      in.Mode,
		}
		s.spawn("Fallocate", h.Unique,
			func(ctx context.Context) error { return s.fs.Fallocate(ctx, op) },
			emptyReply)

	case fusekernel.OpLseek:
		p := m.Consume(unsafe.Sizeof(fusekernel.LseekIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.LseekIn)(p)

		op := &fuseops.LSeekOp{
			OpContext: opCtx,
			Inode:     inode,
			Handle:    fuseops.HandleID(in.Fh),
			Offset:    in.Offset,
			Whence:    in.Whence,
		}
		s.spawn("LSeek", h.Unique,
			func(ctx context.Context) error { return s.fs.LSeek(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.LseekOutSize)
				out := (*fusekernel.LseekOut)(om.Grow(unsafe.Sizeof(fusekernel.LseekOut{})))
				out.Offset = op.ResultOffset
				return om
			})

	case fusekernel.OpCopyFileRange:
		p := m.Consume(unsafe.Sizeof(fusekernel.CopyFileRangeIn{}))
		if p == nil {
			s.sendError(h.Unique, unix.EINVAL)
			return
		}
		in := *(*fusekernel.CopyFileRangeIn)(p)

		op := &fuseops.CopyFileRangeOp{
			OpContext: opCtx,
			SrcInode:  inode,
			SrcHandle: fuseops.HandleID(in.FhIn),
			SrcOffset: in.OffIn,
			DstInode:  fuseops.InodeID(in.NodeidOut),
			DstHandle: fuseops.HandleID(in.FhOut),
			DstOffset: in.OffOut,
			Len:       in.Len,
			Flags:     in.Flags,
		}
		s.spawn("CopyFileRange", h.Unique,
			func(ctx context.Context) error { return s.fs.CopyFileRange(ctx, op) },
			func() buffer.OutMessage {
				om := buffer.NewOutMessage(fusekernel.WriteOutSize)
				out := (*fusekernel.WriteOut)(om.Grow(unsafe.Sizeof(fusekernel.WriteOut{})))
				out.Size = op.BytesCopied
				return om
			})

	case fusekernel.OpSetvolname, fusekernel.OpGetxtimes, fusekernel.OpExchange:
		// macOS only; recognized but not served on Linux. No reply.
		s.logf("ignoring macOS opcode %v", fusekernel.Opcode(h.Opcode))

	default:
		s.logf("unknown opcode %d", h.Opcode)
		s.sendError(h.Unique, unix.ENOSYS)
	}
}

// attrReply builds an AttrOut reply.
func attrReply(
	inode fuseops.InodeID,
	attrs *fuseops.InodeAttributes,
	expiration time.Time) buffer.OutMessage {
	om := buffer.NewOutMessage(fusekernel.AttrOutSize)
	out := (*fusekernel.AttrOut)(om.Grow(unsafe.Sizeof(fusekernel.AttrOut{})))
	out.AttrValid, out.AttrValidNsec = fuseops.ConvertExpirationTime(expiration)
	fuseops.ConvertAttributes(inode, attrs, &out.Attr)

	return om
}

// xattrReply builds either a size probe (carried with ERANGE, per the
// protocol) or a data reply for GETXATTR/LISTXATTR.
func xattrReply(sizeOnly bool, size uint32, value []byte) buffer.OutMessage {
	if sizeOnly {
		om := buffer.NewOutMessage(fusekernel.GetxattrOutSize)
		out := (*fusekernel.GetxattrOut)(om.Grow(unsafe.Sizeof(fusekernel.GetxattrOut{})))
		out.Size = size
		om.OutHeader().Error = -int32(unix.ERANGE)
		return om
	}

	om := buffer.NewOutMessage(uintptr(len(value)))
	om.Append(value)
	return om
}
