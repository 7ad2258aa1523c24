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

package fusekernel

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// The encoder sizes reply buffers from the size constants, and the decoder
// type-puns records out of raw buffers, so each constant must equal the real
// in-memory size of its struct.
func TestRecordSizes(t *testing.T) {
	cases := []struct {
		name string
		want uintptr
		got  uintptr
	}{
		{"InHeader", InHeaderSize, unsafe.Sizeof(InHeader{})},
		{"OutHeader", OutHeaderSize, unsafe.Sizeof(OutHeader{})},
		{"Attr", AttrSize, unsafe.Sizeof(Attr{})},
		{"EntryOut", EntryOutSize, unsafe.Sizeof(EntryOut{})},
		{"AttrOut", AttrOutSize, unsafe.Sizeof(AttrOut{})},
		{"InitIn", InitInSize, unsafe.Sizeof(InitIn{})},
		{"InitOut", InitOutSize, unsafe.Sizeof(InitOut{})},
		{"ForgetIn", ForgetInSize, unsafe.Sizeof(ForgetIn{})},
		{"BatchForgetIn", BatchForgetInSize, unsafe.Sizeof(BatchForgetIn{})},
		{"ForgetOne", ForgetOneSize, unsafe.Sizeof(ForgetOne{})},
		{"GetattrIn", GetattrInSize, unsafe.Sizeof(GetattrIn{})},
		{"SetattrIn", SetattrInSize, unsafe.Sizeof(SetattrIn{})},
		{"MknodIn", MknodInSize, unsafe.Sizeof(MknodIn{})},
		{"MkdirIn", MkdirInSize, unsafe.Sizeof(MkdirIn{})},
		{"RenameIn", RenameInSize, unsafe.Sizeof(RenameIn{})},
		{"Rename2In", Rename2InSize, unsafe.Sizeof(Rename2In{})},
		{"LinkIn", LinkInSize, unsafe.Sizeof(LinkIn{})},
		{"OpenIn", OpenInSize, unsafe.Sizeof(OpenIn{})},
		{"OpenOut", OpenOutSize, unsafe.Sizeof(OpenOut{})},
		{"ReadIn", ReadInSize, unsafe.Sizeof(ReadIn{})},
		{"WriteIn", WriteInSize, unsafe.Sizeof(WriteIn{})},
		{"WriteOut", WriteOutSize, unsafe.Sizeof(WriteOut{})},
		{"StatfsOut", StatfsOutSize, unsafe.Sizeof(StatfsOut{})},
		{"ReleaseIn", ReleaseInSize, unsafe.Sizeof(ReleaseIn{})},
		{"FsyncIn", FsyncInSize, unsafe.Sizeof(FsyncIn{})},
		{"SetxattrIn", SetxattrInSize, unsafe.Sizeof(SetxattrIn{})},
		{"GetxattrIn", GetxattrInSize, unsafe.Sizeof(GetxattrIn{})},
		{"GetxattrOut", GetxattrOutSize, unsafe.Sizeof(GetxattrOut{})},
		{"FlushIn", FlushInSize, unsafe.Sizeof(FlushIn{})},
		{"LkIn", LkInSize, unsafe.Sizeof(LkIn{})},
		{"LkOut", LkOutSize, unsafe.Sizeof(LkOut{})},
		{"AccessIn", AccessInSize, unsafe.Sizeof(AccessIn{})},
		{"CreateIn", CreateInSize, unsafe.Sizeof(CreateIn{})},
		{"InterruptIn", InterruptInSize, unsafe.Sizeof(InterruptIn{})},
		{"BmapIn", BmapInSize, unsafe.Sizeof(BmapIn{})},
		{"BmapOut", BmapOutSize, unsafe.Sizeof(BmapOut{})},
		{"PollIn", PollInSize, unsafe.Sizeof(PollIn{})},
		{"PollOut", PollOutSize, unsafe.Sizeof(PollOut{})},
		{"NotifyRetrieveIn", NotifyRetrieveInSize, unsafe.Sizeof(NotifyRetrieveIn{})},
		{"FallocateIn", FallocateInSize, unsafe.Sizeof(FallocateIn{})},
		{"LseekIn", LseekInSize, unsafe.Sizeof(LseekIn{})},
		{"LseekOut", LseekOutSize, unsafe.Sizeof(LseekOut{})},
		{"CopyFileRangeIn", CopyFileRangeInSize, unsafe.Sizeof(CopyFileRangeIn{})},
		{"Dirent", DirentSize, unsafe.Sizeof(Dirent{})},
		{"DirentPlus", DirentPlusSize, unsafe.Sizeof(DirentPlus{})},
		{"NotifyPollWakeupOut", NotifyPollWakeupOutSize, unsafe.Sizeof(NotifyPollWakeupOut{})},
		{"NotifyInvalInodeOut", NotifyInvalInodeOutSize, unsafe.Sizeof(NotifyInvalInodeOut{})},
		{"NotifyInvalEntryOut", NotifyInvalEntryOutSize, unsafe.Sizeof(NotifyInvalEntryOut{})},
		{"NotifyDeleteOut", NotifyDeleteOutSize, unsafe.Sizeof(NotifyDeleteOut{})},
		{"NotifyStoreOut", NotifyStoreOutSize, unsafe.Sizeof(NotifyStoreOut{})},
		{"NotifyRetrieveOut", NotifyRetrieveOutSize, unsafe.Sizeof(NotifyRetrieveOut{})},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.got, "sizeof(%s)", tc.name)
	}
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "LOOKUP", OpLookup.String())
	assert.Equal(t, "COPY_FILE_RANGE", OpCopyFileRange.String())
	assert.Equal(t, "UNKNOWN", Opcode(0xdeadbeef).String())

	assert.True(t, OpInit.Known())
	assert.False(t, Opcode(0xdeadbeef).Known())
}
