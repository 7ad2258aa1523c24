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

package fuseutil

import (
	"encoding/binary"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/internal/fusekernel"
)

// readDirent decodes one serialized entry, returning the entry and the
// offset of the next one.
func readDirent(t *testing.T, buf []byte) (fuseops.Dirent, int) {
	t.Helper()

	if len(buf) < fusekernel.DirentSize {
		t.Fatalf("short dirent: %d bytes", len(buf))
	}

	namelen := int(binary.LittleEndian.Uint32(buf[16:]))
	d := fuseops.Dirent{
		Inode:  fuseops.InodeID(binary.LittleEndian.Uint64(buf[0:])),
		Offset: fuseops.DirOffset(binary.LittleEndian.Uint64(buf[8:])),
		Type:   fuseops.DirentType(binary.LittleEndian.Uint32(buf[20:])),
		Name:   string(buf[fusekernel.DirentSize : fusekernel.DirentSize+namelen]),
	}

	next := fusekernel.DirentSize + namelen
	for next%fusekernel.DirentAlignment != 0 {
		if buf[next] != 0 {
			t.Errorf("non-zero padding byte at offset %d", next)
		}
		next++
	}

	return d, next
}

// Any sequence of entries must round-trip through the serialized form, with
// each record a multiple of 8 bytes.
func TestAppendDirentRoundTrip(t *testing.T) {
	entries := []fuseops.Dirent{
		{Offset: 1, Inode: 10, Name: "a", Type: fuseops.DT_File},
		{Offset: 2, Inode: 11, Name: "bb", Type: fuseops.DT_Directory},
		{Offset: 3, Inode: 12, Name: "exactly8", Type: fuseops.DT_Link},
		{Offset: 4, Inode: 13, Name: "sp ace caf\xc3\xa9", Type: fuseops.DT_File},
	}

	var buf []byte
	for _, e := range entries {
		before := len(buf)
		buf = AppendDirent(buf, e)

		if (len(buf)-before)%fusekernel.DirentAlignment != 0 {
			t.Errorf("entry %q not padded to alignment", e.Name)
		}
	}

	var got []fuseops.Dirent
	for off := 0; off < len(buf); {
		d, n := readDirent(t, buf[off:])
		got = append(got, d)
		off += n
	}

	if diff := pretty.Compare(entries, got); diff != "" {
		t.Errorf("entries differ: (-want +got)\n%s", diff)
	}
}

func TestDirentLen(t *testing.T) {
	d := fuseops.Dirent{Name: "taco"}
	if got, want := DirentLen(d), 24+4; got != want {
		t.Errorf("DirentLen = %d, want %d", got, want)
	}

	dp := fuseops.DirentPlus{Dirent: fuseops.Dirent{Name: "taco"}}
	if got, want := DirentPlusLen(dp), 152+4; got != want {
		t.Errorf("DirentPlusLen = %d, want %d", got, want)
	}
}

func TestAppendDirentPlus(t *testing.T) {
	dp := fuseops.DirentPlus{
		Dirent: fuseops.Dirent{Offset: 1, Inode: 10, Name: "hello", Type: fuseops.DT_File},
		Entry: fuseops.ChildInodeEntry{
			Child:      10,
			Generation: 3,
		},
	}

	buf := AppendDirentPlus(nil, dp)

	// entry_out leads: nodeid, generation.
	if got := binary.LittleEndian.Uint64(buf[0:]); got != 10 {
		t.Errorf("nodeid = %d, want 10", got)
	}
	if got := binary.LittleEndian.Uint64(buf[8:]); got != 3 {
		t.Errorf("generation = %d, want 3", got)
	}

	// The plain dirent follows the entry_out.
	d, _ := readDirent(t, buf[fusekernel.EntryOutSize:])
	if d.Name != "hello" || d.Inode != 10 {
		t.Errorf("embedded dirent = %+v", d)
	}

	// Whole record padded to alignment.
	if len(buf)%fusekernel.DirentAlignment != 0 {
		t.Errorf("record length %d not aligned", len(buf))
	}
}
