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
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Seam for tests that want to observe unmount attempts without a fusermount
// binary present.
var fuserunmountMock = fuserunmount

// unmount asks fusermount to detach the mount at dir. Mount points of the
// form /dev/fd/N belong to whoever opened the descriptor and get a
// distinguishable error.
func unmount(dir string) error {
	err := fuserunmountMock(dir)
	if err != nil && strings.HasPrefix(dir, "/dev/fd/") {
		return fmt.Errorf("%w: %s", ErrExternallyManagedMountPoint, err)
	}

	return err
}

func fuserunmount(dir string) error {
	fusermount, err := findFusermount()
	if err != nil {
		return err
	}

	output, err := exec.Command(fusermount, "-u", dir).CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			return fmt.Errorf("%v: %s", err, bytes.TrimRight(output, "\n"))
		}
		return err
	}

	return nil
}
