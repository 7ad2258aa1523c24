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
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// A reader that returns the supplied frame in a single Read call, the way the
// fuse device does.
type frameReader struct {
	frame []byte
}

func (r *frameReader) Read(p []byte) (int, error) {
	return copy(p, r.frame), nil
}

func makeInHeader(len uint32, opcode uint32, unique uint64) []byte {
	b := make([]byte, fusekernel.InHeaderSize)
	binary.LittleEndian.PutUint32(b[0:], len)
	binary.LittleEndian.PutUint32(b[4:], opcode)
	binary.LittleEndian.PutUint64(b[8:], unique)
	return b
}

func TestInMessageInit(t *testing.T) {
	frame := makeInHeader(uint32(fusekernel.InHeaderSize+4), 1, 0xcafe)
	frame = append(frame, 'a', 'b', 'c', 0)

	var m InMessage
	require.NoError(t, m.Init(&frameReader{frame}))

	h := m.Header()
	assert.Equal(t, uint32(1), h.Opcode)
	assert.Equal(t, uint64(0xcafe), h.Unique)
	assert.Equal(t, 4, m.Len())
}

func TestInMessageShortRead(t *testing.T) {
	var m InMessage
	err := m.Init(&frameReader{makeInHeader(40, 1, 1)[:17]})
	assert.Error(t, err)
}

// The body must never extend past what was actually read, even if the header
// claims more.
func TestInMessageLyingHeader(t *testing.T) {
	frame := makeInHeader(1<<20, 1, 1)
	frame = append(frame, 1, 2, 3)

	var m InMessage
	require.NoError(t, m.Init(&frameReader{frame}))
	assert.Equal(t, 3, m.Len())
}

func TestInMessageConsume(t *testing.T) {
	frame := makeInHeader(uint32(fusekernel.InHeaderSize+16), 2, 1)
	body := make([]byte, 16)
	binary.LittleEndian.PutUint64(body[0:], 0x0102030405060708)
	binary.LittleEndian.PutUint64(body[8:], 0x1112131415161718)
	frame = append(frame, body...)

	var m InMessage
	require.NoError(t, m.Init(&frameReader{frame}))

	p := m.Consume(unsafe.Sizeof(fusekernel.ForgetOne{}))
	require.NotNil(t, p)
	fo := *(*fusekernel.ForgetOne)(p)
	assert.Equal(t, uint64(0x0102030405060708), fo.Nodeid)
	assert.Equal(t, uint64(0x1112131415161718), fo.Nlookup)
	assert.Equal(t, 0, m.Len())

	// Nothing left.
	assert.Nil(t, m.Consume(1))
}

func TestInMessageConsumeName(t *testing.T) {
	cases := []struct {
		body     []byte
		wantName []byte
		wantOK   bool
		wantRest []byte
	}{
		{[]byte("hello\x00"), []byte("hello"), true, []byte{}},
		{[]byte("hello\x00tail"), []byte("hello"), true, []byte("tail")},
		{[]byte("sp ace\x00"), []byte("sp ace"), true, []byte{}},
		{[]byte("taco\xc2\xa9\x00"), []byte("taco\xc2\xa9"), true, []byte{}},
		{[]byte("\x00"), []byte{}, true, []byte{}},
		{[]byte("nonull"), nil, false, nil},
	}

	for _, tc := range cases {
		frame := makeInHeader(uint32(fusekernel.InHeaderSize+len(tc.body)), 1, 1)
		frame = append(frame, tc.body...)

		var m InMessage
		require.NoError(t, m.Init(&frameReader{frame}))

		name, ok := m.ConsumeName()
		assert.Equal(t, tc.wantOK, ok, "body %q", tc.body)
		if !ok {
			continue
		}

		assert.Equal(t, tc.wantName, name, "body %q", tc.body)
		assert.Equal(t, tc.wantRest, m.Rest(), "body %q", tc.body)
	}
}

func TestOutMessageHeaderOnly(t *testing.T) {
	m := NewOutMessage(0)
	assert.Equal(t, fusekernel.OutHeaderSize, m.Len())

	h := m.OutHeader()
	h.Len = uint32(m.Len())
	h.Error = -2
	h.Unique = 0xbeef

	b := m.Bytes()
	assert.Equal(t, uint32(16), binary.LittleEndian.Uint32(b[0:]))
	assert.Equal(t, int32(-2), int32(binary.LittleEndian.Uint32(b[4:])))
	assert.Equal(t, uint64(0xbeef), binary.LittleEndian.Uint64(b[8:]))
}

func TestOutMessageGrow(t *testing.T) {
	m := NewOutMessage(fusekernel.WriteOutSize)

	p := m.Grow(unsafe.Sizeof(fusekernel.WriteOut{}))
	out := (*fusekernel.WriteOut)(p)
	out.Size = 8

	assert.Equal(t, fusekernel.OutHeaderSize+fusekernel.WriteOutSize, m.Len())

	b := m.Bytes()
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(b[fusekernel.OutHeaderSize:]))
}

func TestOutMessageAppend(t *testing.T) {
	m := NewOutMessage(16)
	m.Append([]byte("taco"))
	m.AppendString("burrito")

	want := append(
		make([]byte, fusekernel.OutHeaderSize),
		[]byte("tacoburrito")...)

	assert.Equal(t, len(want), m.Len())
	if !bytes.Equal(m.Bytes(), want) {
		t.Error("messages differ")
	}
}

// Growing past the initial capacity must preserve contents and keep the
// header addressable.
func TestOutMessageGrowPastCapacity(t *testing.T) {
	m := NewOutMessage(4)
	m.AppendString("tacotacotacotaco")
	m.OutHeader().Unique = 77

	b := m.Bytes()
	assert.Equal(t, uint64(77), binary.LittleEndian.Uint64(b[8:]))
	assert.Equal(t, "tacotacotacotaco", string(b[fusekernel.OutHeaderSize:]))
}
