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
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestFSNameDefault(t *testing.T) {
	var c MountConfig
	if got, want := c.fsName(), "fuse"; got != want {
		t.Errorf("fsName() = %q, want %q", got, want)
	}

	c.FSName = "memfs"
	if got, want := c.fsName(), "memfs"; got != want {
		t.Errorf("fsName() = %q, want %q", got, want)
	}
}

func TestToOptionsString(t *testing.T) {
	var c MountConfig

	want := fmt.Sprintf(
		"fd=7,rootmode=40000,user_id=%d,group_id=%d",
		os.Getuid(),
		os.Getgid())

	if got := c.toOptionsString(7); got != want {
		t.Errorf("toOptionsString = %q, want %q", got, want)
	}

	c.DefaultPermissions = true
	if got := c.toOptionsString(7); !strings.HasSuffix(got, ",default_permissions") {
		t.Errorf("expected default_permissions suffix, got %q", got)
	}
}
