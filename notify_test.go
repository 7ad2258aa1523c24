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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionfs/fuse/internal/fusekernel"
)

// Every notification must lead with {len = total, error = notification code,
// unique = 0}.
func TestNotifyHeaderDiscipline(t *testing.T) {
	cases := []struct {
		name     string
		kind     NotifyKind
		wantCode int32
		wantLen  int
	}{
		{
			name:     "Wakeup",
			kind:     NotifyPollWakeup{Kh: 7},
			wantCode: 1,
			wantLen:  16 + fusekernel.NotifyPollWakeupOutSize,
		},
		{
			name:     "InvalidInode",
			kind:     NotifyInvalInode{Inode: 2, Offset: -1, Len: -1},
			wantCode: 2,
			wantLen:  16 + fusekernel.NotifyInvalInodeOutSize,
		},
		{
			name:     "InvalidEntry",
			kind:     NotifyInvalEntry{Parent: 1, Name: "taco"},
			wantCode: 3,
			wantLen:  16 + fusekernel.NotifyInvalEntryOutSize + len("taco"),
		},
		{
			name:     "Delete",
			kind:     NotifyDelete{Parent: 1, Child: 2, Name: "burrito"},
			wantCode: 6,
			wantLen:  16 + fusekernel.NotifyDeleteOutSize + len("burrito"),
		},
		{
			name:     "Store",
			kind:     NotifyStore{Inode: 3, Offset: 8, Data: []byte{1, 2, 3}},
			wantCode: 4,
			wantLen:  16 + fusekernel.NotifyStoreOutSize + 3,
		},
		{
			name:     "Retrieve",
			kind:     NotifyRetrieve{NotifyUnique: 9, Inode: 3, Offset: 0, Size: 64},
			wantCode: 5,
			wantLen:  16 + fusekernel.NotifyRetrieveOutSize,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := encodeNotify(tc.kind)

			require.Equal(t, tc.wantLen, len(b))
			assert.Equal(t, uint32(tc.wantLen), binary.LittleEndian.Uint32(b[0:]))
			assert.Equal(t, tc.wantCode, int32(binary.LittleEndian.Uint32(b[4:])))
			assert.Equal(t, uint64(0), binary.LittleEndian.Uint64(b[8:]))
		})
	}
}

// Name payloads carry no NUL terminator; the kernel reads exactly namelen
// bytes.
func TestNotifyNamesAreNotNulTerminated(t *testing.T) {
	b := encodeNotify(NotifyInvalEntry{Parent: 5, Name: "taco"})

	body := b[16:]
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(body[0:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(body[8:]))

	// The name is the final payload, with no terminator after it.
	assert.Equal(t, "taco", string(b[len(b)-4:]))

	b = encodeNotify(NotifyDelete{Parent: 5, Child: 6, Name: "x"})
	assert.Equal(t, byte('x'), b[len(b)-1])
}

func TestNotifyStoreBody(t *testing.T) {
	data := []byte{0xa, 0xb, 0xc, 0xd}
	b := encodeNotify(NotifyStore{Inode: 11, Offset: 256, Data: data})

	body := b[16:]
	assert.Equal(t, uint64(11), binary.LittleEndian.Uint64(body[0:]))
	assert.Equal(t, uint64(256), binary.LittleEndian.Uint64(body[8:]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(body[16:]))
	assert.Equal(t, data, body[fusekernel.NotifyStoreOutSize:])
}

func TestNotifyRetrieveBody(t *testing.T) {
	b := encodeNotify(NotifyRetrieve{NotifyUnique: 77, Inode: 11, Offset: 512, Size: 1024})

	body := b[16:]
	assert.Equal(t, uint64(77), binary.LittleEndian.Uint64(body[0:]))
	assert.Equal(t, uint64(11), binary.LittleEndian.Uint64(body[8:]))
	assert.Equal(t, uint64(512), binary.LittleEndian.Uint64(body[16:]))
	assert.Equal(t, uint32(1024), binary.LittleEndian.Uint32(body[24:]))
}
