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

package fusetesting

import (
	"encoding/binary"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// RequestFrame describes a raw kernel request to feed a session under test.
type RequestFrame struct {
	Opcode uint32
	Unique uint64
	Nodeid uint64
	Uid    uint32
	Gid    uint32
	Pid    uint32
	Body   []byte
}

// Bytes serializes the frame the way the kernel would: a little-endian
// fuse_in_header whose Len covers header plus body, followed by the body.
func (f *RequestFrame) Bytes() []byte {
	b := make([]byte, fusekernel.InHeaderSize, fusekernel.InHeaderSize+len(f.Body))
	binary.LittleEndian.PutUint32(b[0:], uint32(fusekernel.InHeaderSize+len(f.Body)))
	binary.LittleEndian.PutUint32(b[4:], f.Opcode)
	binary.LittleEndian.PutUint64(b[8:], f.Unique)
	binary.LittleEndian.PutUint64(b[16:], f.Nodeid)
	binary.LittleEndian.PutUint32(b[24:], f.Uid)
	binary.LittleEndian.PutUint32(b[28:], f.Gid)
	binary.LittleEndian.PutUint32(b[32:], f.Pid)

	return append(b, f.Body...)
}

// OutHeader is the decoded form of a reply's leading 16 bytes.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

// ParseOutHeader decodes the header of a recorded reply.
func ParseOutHeader(frame []byte) OutHeader {
	return OutHeader{
		Len:    binary.LittleEndian.Uint32(frame[0:]),
		Error:  int32(binary.LittleEndian.Uint32(frame[4:])),
		Unique: binary.LittleEndian.Uint64(frame[8:]),
	}
}

// InitRequest builds a valid INIT frame offering the supplied flags.
func InitRequest(unique uint64, maxReadahead uint32, flags uint32) []byte {
	body := make([]byte, fusekernel.InitInSize)
	binary.LittleEndian.PutUint32(body[0:], fusekernel.KernelVersion)
	binary.LittleEndian.PutUint32(body[4:], fusekernel.KernelMinorVersion)
	binary.LittleEndian.PutUint32(body[8:], maxReadahead)
	binary.LittleEndian.PutUint32(body[12:], flags)

	f := RequestFrame{
		Opcode: uint32(fusekernel.OpInit),
		Unique: unique,
		Body:   body,
	}
	return f.Bytes()
}
