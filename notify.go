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
	"unsafe"

	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/internal/buffer"
	"github.com/sessionfs/fuse/internal/fusekernel"
)

// NotifyKind is an unsolicited message to the kernel. Notifications share
// the reply pump with ordinary replies but carry unique=0, so they can never
// collide with an in-flight request.
type NotifyKind interface {
	kind() fusekernel.NotifyCode
}

// NotifyPollWakeup wakes up a poll waiter registered via PollOp.Kh.
type NotifyPollWakeup struct {
	Kh uint64
}

// NotifyInvalInode invalidates the kernel's cache of an inode's data. Len
// of -1 means "to the end of the file".
type NotifyInvalInode struct {
	Inode  fuseops.InodeID
	Offset int64
	Len    int64
}

// NotifyInvalEntry invalidates the kernel's cache of a name within a
// directory.
type NotifyInvalEntry struct {
	Parent fuseops.InodeID
	Name   string
}

// NotifyDelete tells the kernel a directory entry has been deleted,
// identifying the child so open files see the deletion.
type NotifyDelete struct {
	Parent fuseops.InodeID
	Child  fuseops.InodeID
	Name   string
}

// NotifyStore pushes data into the kernel's page cache for an inode.
type NotifyStore struct {
	Inode  fuseops.InodeID
	Offset uint64
	Data   []byte
}

// NotifyRetrieve asks the kernel for cached data of an inode; the answer
// arrives later as a NotifyReplyOp carrying NotifyUnique.
type NotifyRetrieve struct {
	NotifyUnique uint64
	Inode        fuseops.InodeID
	Offset       uint64
	Size         uint32
}

func (NotifyPollWakeup) kind() fusekernel.NotifyCode { return fusekernel.NotifyCodePoll }
func (NotifyInvalInode) kind() fusekernel.NotifyCode { return fusekernel.NotifyCodeInvalInode }
func (NotifyInvalEntry) kind() fusekernel.NotifyCode { return fusekernel.NotifyCodeInvalEntry }
func (NotifyDelete) kind() fusekernel.NotifyCode     { return fusekernel.NotifyCodeDelete }
func (NotifyStore) kind() fusekernel.NotifyCode      { return fusekernel.NotifyCodeStore }
func (NotifyRetrieve) kind() fusekernel.NotifyCode   { return fusekernel.NotifyCodeRetrieve }

// encodeNotify turns a notification into a ready-to-write message: an
// OutHeader with unique=0 and the notify code in the error field, followed
// by the fixed body and any trailing bytes.
//
// Name payloads are not NUL-terminated; the kernel reads exactly Namelen
// bytes.
func encodeNotify(kind NotifyKind) []byte {
	var om buffer.OutMessage

	switch k := kind.(type) {
	case NotifyPollWakeup:
		om = buffer.NewOutMessage(fusekernel.NotifyPollWakeupOutSize)
		out := (*fusekernel.NotifyPollWakeupOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyPollWakeupOut{})))
		out.Kh = k.Kh

	case NotifyInvalInode:
		om = buffer.NewOutMessage(fusekernel.NotifyInvalInodeOutSize)
		out := (*fusekernel.NotifyInvalInodeOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyInvalInodeOut{})))
		out.Ino = uint64(k.Inode)
		out.Off = k.Offset
		out.Len = k.Len

	case NotifyInvalEntry:
		om = buffer.NewOutMessage(uintptr(fusekernel.NotifyInvalEntryOutSize + len(k.Name)))
		out := (*fusekernel.NotifyInvalEntryOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyInvalEntryOut{})))
		out.Parent = uint64(k.Parent)
		out.Namelen = uint32(len(k.Name))
		om.AppendString(k.Name)

	case NotifyDelete:
		om = buffer.NewOutMessage(uintptr(fusekernel.NotifyDeleteOutSize + len(k.Name)))
		out := (*fusekernel.NotifyDeleteOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyDeleteOut{})))
		out.Parent = uint64(k.Parent)
		out.Child = uint64(k.Child)
		out.Namelen = uint32(len(k.Name))
		om.AppendString(k.Name)

	case NotifyStore:
		om = buffer.NewOutMessage(uintptr(fusekernel.NotifyStoreOutSize + len(k.Data)))
		out := (*fusekernel.NotifyStoreOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyStoreOut{})))
		out.Nodeid = uint64(k.Inode)
		out.Offset = k.Offset
		out.Size = uint32(len(k.Data))
		om.Append(k.Data)

	case NotifyRetrieve:
		om = buffer.NewOutMessage(fusekernel.NotifyRetrieveOutSize)
		out := (*fusekernel.NotifyRetrieveOut)(om.Grow(unsafe.Sizeof(fusekernel.NotifyRetrieveOut{})))
		out.NotifyUnique = k.NotifyUnique
		out.Nodeid = uint64(k.Inode)
		out.Offset = k.Offset
		out.Size = k.Size

	default:
		panic("unknown notify kind")
	}

	h := om.OutHeader()
	h.Len = uint32(om.Len())
	h.Error = int32(kind.kind())
	h.Unique = 0

	return om.Bytes()
}

// A Notifier delivers notifications to the kernel through a session's reply
// pump. Obtain one with Session.Notifier; it may be copied freely and used
// from any goroutine.
type Notifier struct {
	session *Session
}

// Notify enqueues the supplied notification. If the session has shut down,
// the notification is returned inside a *NotifyFailedError so the caller
// can retry or drop it by policy; a shut-down session is reported through
// this error, never by a panic.
func (n *Notifier) Notify(kind NotifyKind) error {
	if !n.session.enqueue(encodeNotify(kind)) {
		return &NotifyFailedError{Kind: kind}
	}

	return nil
}
