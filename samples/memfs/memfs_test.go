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

package memfs_test

import (
	"encoding/binary"
	"testing"
	"time"

	. "github.com/jacobsa/ogletest"
	"github.com/jacobsa/timeutil"
	"golang.org/x/sys/unix"

	"github.com/sessionfs/fuse"
	"github.com/sessionfs/fuse/fusetesting"
	"github.com/sessionfs/fuse/internal/fusekernel"
	"github.com/sessionfs/fuse/samples/memfs"
)

func TestMemFS(t *testing.T) { RunTests(t) }

const replyTimeout = 5 * time.Second

// MemFSTest drives a memfs instance through a real session over the fake
// device, playing the kernel's role frame by frame.
type MemFSTest struct {
	dev     *fusetesting.FakeDev
	session *fuse.Session

	serveDone chan struct{}
	serveErr  error

	nextUnique uint64
}

func init() { RegisterTestSuite(&MemFSTest{}) }

func (t *MemFSTest) SetUp(ti *TestInfo) {
	t.dev = fusetesting.NewFakeDev()
	t.nextUnique = 1

	clock := &timeutil.SimulatedClock{}
	clock.SetTime(time.Now())
	fs := memfs.NewMemFS(123, 456, clock)
	t.session = fuse.NewSession(fs, t.dev, fuse.MountConfig{})

	t.serveDone = make(chan struct{})
	go func() {
		t.serveErr = t.session.Serve()
		close(t.serveDone)
	}()
}

func (t *MemFSTest) TearDown() {
	t.dev.Close()

	select {
	case <-t.serveDone:
		ExpectEq(nil, t.serveErr)
	case <-time.After(replyTimeout):
		AddFailure("timed out waiting for Serve to return")
	}
}

// roundTrip pushes a request and returns the reply frame and parsed header,
// asserting that the unique was echoed.
func (t *MemFSTest) roundTrip(opcode fusekernel.Opcode, nodeid uint64, body []byte) ([]byte, fusetesting.OutHeader) {
	unique := t.nextUnique
	t.nextUnique++

	f := fusetesting.RequestFrame{
		Opcode: uint32(opcode),
		Unique: unique,
		Nodeid: nodeid,
		Body:   body,
	}
	t.dev.PushRequest(f.Bytes())

	frame, err := t.dev.NextReply(replyTimeout)
	AssertEq(nil, err)

	hdr := fusetesting.ParseOutHeader(frame)
	AssertEq(unique, hdr.Unique)
	AssertEq(uint32(len(frame)), hdr.Len)

	return frame, hdr
}

func entryNodeid(frame []byte) uint64 {
	return binary.LittleEndian.Uint64(frame[16:])
}

func mkdirBody(mode uint32, name string) []byte {
	body := make([]byte, fusekernel.MkdirInSize)
	binary.LittleEndian.PutUint32(body[0:], mode)
	return append(append(body, name...), 0)
}

func createBody(flags uint32, mode uint32, name string) []byte {
	body := make([]byte, fusekernel.CreateInSize)
	binary.LittleEndian.PutUint32(body[0:], flags)
	binary.LittleEndian.PutUint32(body[4:], mode)
	return append(append(body, name...), 0)
}

func writeBody(fh uint64, offset uint64, payload []byte) []byte {
	body := make([]byte, fusekernel.WriteInSize)
	binary.LittleEndian.PutUint64(body[0:], fh)
	binary.LittleEndian.PutUint64(body[8:], offset)
	binary.LittleEndian.PutUint32(body[16:], uint32(len(payload)))
	return append(body, payload...)
}

func readBody(fh uint64, offset uint64, size uint32) []byte {
	body := make([]byte, fusekernel.ReadInSize)
	binary.LittleEndian.PutUint64(body[0:], fh)
	binary.LittleEndian.PutUint64(body[8:], offset)
	binary.LittleEndian.PutUint32(body[16:], size)
	return body
}

func lookupBody(name string) []byte {
	return append([]byte(name), 0)
}

func (t *MemFSTest) MkDirThenLookUp() {
	frame, hdr := t.roundTrip(fusekernel.OpMkdir, 1, mkdirBody(0755, "dir"))
	AssertEq(0, hdr.Error)
	dirID := entryNodeid(frame)
	ExpectNe(0, dirID)

	frame, hdr = t.roundTrip(fusekernel.OpLookup, 1, lookupBody("dir"))
	AssertEq(0, hdr.Error)
	ExpectEq(dirID, entryNodeid(frame))
}

func (t *MemFSTest) CreateWriteRead() {
	// Create a file in the root.
	frame, hdr := t.roundTrip(fusekernel.OpCreate, 1, createBody(uint32(unix.O_RDWR), 0644, "foo"))
	AssertEq(0, hdr.Error)
	fileID := entryNodeid(frame)

	// Write some data.
	payload := []byte("tacoburrito")
	frame, hdr = t.roundTrip(fusekernel.OpWrite, fileID, writeBody(0, 0, payload))
	AssertEq(0, hdr.Error)
	ExpectEq(uint32(len(payload)), binary.LittleEndian.Uint32(frame[16:]))

	// Read it back.
	frame, hdr = t.roundTrip(fusekernel.OpRead, fileID, readBody(0, 0, 4096))
	AssertEq(0, hdr.Error)
	ExpectEq(string(payload), string(frame[16:]))

	// Read at an offset.
	frame, hdr = t.roundTrip(fusekernel.OpRead, fileID, readBody(0, 4, 4096))
	AssertEq(0, hdr.Error)
	ExpectEq("burrito", string(frame[16:]))
}

func (t *MemFSTest) ReadDirListsLiveEntries() {
	_, hdr := t.roundTrip(fusekernel.OpMkdir, 1, mkdirBody(0755, "dir"))
	AssertEq(0, hdr.Error)

	_, hdr = t.roundTrip(fusekernel.OpCreate, 1, createBody(uint32(unix.O_RDWR), 0644, "foo"))
	AssertEq(0, hdr.Error)

	frame, hdr := t.roundTrip(fusekernel.OpReaddir, 1, readBody(0, 0, 4096))
	AssertEq(0, hdr.Error)

	// Two entries: "dir" then "foo", in creation order.
	body := frame[16:]
	AssertLt(fusekernel.DirentSize, len(body))

	namelen := binary.LittleEndian.Uint32(body[16:])
	AssertEq(3, namelen)
	ExpectEq("dir", string(body[fusekernel.DirentSize:fusekernel.DirentSize+3]))

	second := body[32:]
	namelen = binary.LittleEndian.Uint32(second[16:])
	AssertEq(3, namelen)
	ExpectEq("foo", string(second[fusekernel.DirentSize:fusekernel.DirentSize+3]))
}

func (t *MemFSTest) UnlinkRemovesEntry() {
	_, hdr := t.roundTrip(fusekernel.OpCreate, 1, createBody(uint32(unix.O_RDWR), 0644, "foo"))
	AssertEq(0, hdr.Error)

	_, hdr = t.roundTrip(fusekernel.OpUnlink, 1, lookupBody("foo"))
	AssertEq(0, hdr.Error)

	_, hdr = t.roundTrip(fusekernel.OpLookup, 1, lookupBody("foo"))
	ExpectEq(-int32(unix.ENOENT), hdr.Error)
}

func (t *MemFSTest) SymlinkRoundTrip() {
	body := append(append([]byte("link\x00"), "target/path"...), 0)
	frame, hdr := t.roundTrip(fusekernel.OpSymlink, 1, body)
	AssertEq(0, hdr.Error)
	linkID := entryNodeid(frame)

	frame, hdr = t.roundTrip(fusekernel.OpReadlink, linkID, nil)
	AssertEq(0, hdr.Error)
	ExpectEq("target/path", string(frame[16:]))
}

func (t *MemFSTest) XattrSizeProbeAndData() {
	createFrame, hdr := t.roundTrip(fusekernel.OpCreate, 1, createBody(uint32(unix.O_RDWR), 0644, "foo"))
	AssertEq(0, hdr.Error)
	fileID := entryNodeid(createFrame)

	// SETXATTR: fixed record, then name NUL value; size covers the payload.
	payload := append([]byte("user.taco\x00"), "salsa"...)
	body := make([]byte, fusekernel.SetxattrInSize)
	binary.LittleEndian.PutUint32(body[0:], uint32(len(payload)))
	body = append(body, payload...)

	_, hdr = t.roundTrip(fusekernel.OpSetxattr, fileID, body)
	AssertEq(0, hdr.Error)

	// Probe for the size.
	probe := make([]byte, fusekernel.GetxattrInSize)
	probe = append(probe, "user.taco\x00"...)
	frame, hdr := t.roundTrip(fusekernel.OpGetxattr, fileID, probe)
	ExpectEq(-int32(unix.ERANGE), hdr.Error)
	ExpectEq(uint32(len("salsa")), binary.LittleEndian.Uint32(frame[16:]))

	// Fetch the value.
	fetch := make([]byte, fusekernel.GetxattrInSize)
	binary.LittleEndian.PutUint32(fetch[0:], 4096)
	fetch = append(fetch, "user.taco\x00"...)
	frame, hdr = t.roundTrip(fusekernel.OpGetxattr, fileID, fetch)
	AssertEq(0, hdr.Error)
	ExpectEq("salsa", string(frame[16:]))
}
