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
	"unsafe"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// OutMessageHeaderSize is the size of the leading header in every
// properly-constructed OutMessage.
const OutMessageHeaderSize = fusekernel.OutHeaderSize

// OutMessage provides a mechanism for constructing a single contiguous fuse
// message from multiple segments, where the first segment is always a zeroed
// fusekernel.OutHeader.
//
// Must be created with NewOutMessage. Pointers returned by Grow are
// invalidated by the next Grow or Append.
type OutMessage struct {
	slice []byte
}

// NewOutMessage creates a message whose initial contents are a zeroed
// fusekernel.OutHeader, with room to grow by extra bytes without copying.
func NewOutMessage(extra uintptr) OutMessage {
	return OutMessage{
		slice: make([]byte, OutMessageHeaderSize, uintptr(OutMessageHeaderSize)+extra),
	}
}

// OutHeader returns a pointer to the header at the start of the message.
func (m *OutMessage) OutHeader() *fusekernel.OutHeader {
	return (*fusekernel.OutHeader)(unsafe.Pointer(&m.slice[0]))
}

// Grow grows the message by n zeroed bytes, returning a pointer to the start
// of the new segment.
func (m *OutMessage) Grow(n uintptr) unsafe.Pointer {
	old := len(m.slice)
	m.slice = append(m.slice, make([]byte, n)...)

	return unsafe.Pointer(&m.slice[old])
}

// Append appends src to the message.
func (m *OutMessage) Append(src []byte) {
	m.slice = append(m.slice, src...)
}

// AppendString is like Append, but accepts string input.
func (m *OutMessage) AppendString(src string) {
	m.slice = append(m.slice, src...)
}

// Len returns the current size of the message, including the leading header.
func (m *OutMessage) Len() int {
	return len(m.slice)
}

// Bytes returns a reference to the current contents of the message, including
// the leading header.
func (m *OutMessage) Bytes() []byte {
	return m.slice
}
