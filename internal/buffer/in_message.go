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

package buffer

import (
	"bytes"
	"fmt"
	"io"
	"unsafe"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// MaxWriteSize is the maximum WRITE payload we advertise to the kernel in
// InitOut.MaxWrite.
const MaxWriteSize = 1 << 17

// InMessageSize is the size of the single reusable read buffer: a maximum
// write payload plus slack for the headers that precede it.
const InMessageSize = MaxWriteSize + 4096

// An InMessage is a single message read from the kernel, leading with
// fusekernel.InHeader. It provides the storage for the read and typed access
// to its contents. The storage is reused across messages; anything a consumer
// wants to keep past the next Init must be copied out.
type InMessage struct {
	// The offset of the first body byte that has not yet been consumed, and
	// the offset just past the end of the body.
	offset int
	length int

	// Must be 8-byte aligned for the InHeader type punning below, which it is
	// because the int fields above occupy 16 bytes.
	storage [InMessageSize]byte
}

// Init fills the message with the data returned by a single call to r.Read,
// and validates the leading header. The first call to Consume will consume
// the bytes directly after the fusekernel.InHeader struct.
func (m *InMessage) Init(r io.Reader) error {
	n, err := r.Read(m.storage[:])
	if err != nil {
		return err
	}

	if n < fusekernel.InHeaderSize {
		return fmt.Errorf("read %d bytes; need at least %d for the header",
			n, fusekernel.InHeaderSize)
	}

	// The body is what the header's Len claims, but never more than what was
	// actually read and never less than the header itself.
	m.length = int(m.Header().Len)
	if m.length > n {
		m.length = n
	}
	if m.length < fusekernel.InHeaderSize {
		m.length = fusekernel.InHeaderSize
	}
	m.offset = fusekernel.InHeaderSize

	return nil
}

// Header returns a reference to the header read by the most recent Init.
func (m *InMessage) Header() *fusekernel.InHeader {
	return (*fusekernel.InHeader)(unsafe.Pointer(&m.storage[0]))
}

// Len returns the number of unconsumed body bytes.
func (m *InMessage) Len() int {
	return m.length - m.offset
}

// Consume consumes the next n bytes of the body, returning a nil pointer if
// fewer than n bytes remain.
func (m *InMessage) Consume(n uintptr) unsafe.Pointer {
	if n == 0 || uintptr(m.Len()) < n {
		return nil
	}

	p := unsafe.Pointer(&m.storage[m.offset])
	m.offset += int(n)

	return p
}

// ConsumeBytes is equivalent to Consume, but returns a slice aliasing the
// message storage. The result is nil if Consume would fail.
func (m *InMessage) ConsumeBytes(n uintptr) []byte {
	if uintptr(m.Len()) < n {
		return nil
	}

	b := m.storage[m.offset : m.offset+int(n)]
	m.offset += int(n)

	return b
}

// Rest consumes and returns all remaining body bytes, aliasing the message
// storage.
func (m *InMessage) Rest() []byte {
	n := m.Len()
	b := m.storage[m.offset : m.offset+n]
	m.offset += n

	return b
}

// ConsumeName consumes a NUL-terminated name from the body, returning a copy
// of the bytes before the terminator. The terminator itself is consumed but
// excluded from the result. ok is false if no NUL remains in the body.
func (m *InMessage) ConsumeName() (name []byte, ok bool) {
	rest := m.storage[m.offset:m.length]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return nil, false
	}

	name = make([]byte, i)
	copy(name, rest[:i])
	m.offset += i + 1

	return name, true
}
