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

package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jacobsa/timeutil"

	"github.com/sessionfs/fuse"
	"github.com/sessionfs/fuse/samples/hellofs"
)

var fMountPoint = flag.String("mount_point", "", "Path to mount point.")
var fFusermount = flag.Bool(
	"use_fusermount", false,
	"Acquire the device via the fusermount helper instead of mount(2).")
var fDebug = flag.Bool("debug", false, "Enable debug logging.")

func main() {
	flag.Parse()

	if *fMountPoint == "" {
		log.Fatalf("You must set --mount_point.")
	}

	cfg := &fuse.MountConfig{
		FSName:        "hellofs",
		UseFusermount: *fFusermount,
		ErrorLogger:   log.New(os.Stderr, "fuse: ", log.Flags()),
	}
	if *fDebug {
		cfg.DebugLogger = log.New(os.Stderr, "fuse_debug: ", log.Flags())
	}

	mfs, err := fuse.Mount(*fMountPoint, hellofs.NewHelloFS(timeutil.RealClock()), cfg)
	if err != nil {
		log.Fatalf("Mount: %v", err)
	}

	if err := mfs.Join(context.Background()); err != nil {
		log.Fatalf("Join: %v", err)
	}
}
