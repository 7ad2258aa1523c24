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
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

func findFusermount() (string, error) {
	for _, name := range []string{"fusermount3", "fusermount"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	return "", errors.New("no fusermount binary found in PATH")
}

// openFuseDevice acquires an open fuse device for the given mount point,
// either directly (requires CAP_SYS_ADMIN) or via fusermount.
func openFuseDevice(dir string, config *MountConfig) (*os.File, error) {
	if config.UseFusermount {
		return mountFusermount(dir, config)
	}

	return mountDirect(dir, config)
}

// mountDirect opens /dev/fuse and issues the mount(2) syscall itself.
func mountDirect(dir string, config *MountConfig) (*os.File, error) {
	dev, err := os.OpenFile("/dev/fuse", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening /dev/fuse: %w", err)
	}

	opts := config.toOptionsString(dev.Fd())
	err = unix.Mount(
		config.fsName(),
		dir,
		"fuse",
		unix.MS_NOSUID|unix.MS_NODEV,
		opts)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("mount(2) with options %q: %w", opts, err)
	}

	return dev, nil
}

// mountFusermount spawns the setuid fusermount helper and receives the open
// device descriptor back over a UNIX socket, allowing unprivileged mounts.
func mountFusermount(dir string, config *MountConfig) (*os.File, error) {
	fusermount, err := findFusermount()
	if err != nil {
		return nil, err
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}

	childEnd := os.NewFile(uintptr(fds[0]), "fusermount-child")
	defer childEnd.Close()
	parentEnd := os.NewFile(uintptr(fds[1]), "fusermount-parent")
	defer parentEnd.Close()

	opts := fmt.Sprintf(
		"rootmode=40000,user_id=%d,group_id=%d,fsname=%s",
		os.Getuid(),
		os.Getgid(),
		config.fsName())
	if config.DefaultPermissions {
		opts += ",default_permissions"
	}

	cmd := exec.Command(fusermount, "-o", opts, "--", dir)
	cmd.Env = append(os.Environ(), "_FUSE_COMMFD=3")
	cmd.ExtraFiles = []*os.File{childEnd}

	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("fusermount: %v: %s", err, output)
	}

	return receiveDeviceFd(parentEnd)
}

// receiveDeviceFd reads the SCM_RIGHTS message fusermount sends over its
// communication socket and turns the passed descriptor into a file.
func receiveDeviceFd(socket *os.File) (*os.File, error) {
	conn, err := net.FileConn(socket)
	if err != nil {
		return nil, fmt.Errorf("FileConn: %w", err)
	}
	defer conn.Close()

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil, fmt.Errorf("expected a UnixConn, got %T", conn)
	}

	buf := make([]byte, 32)
	oob := make([]byte, 32)

	_, oobn, _, _, err := unixConn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, fmt.Errorf("ReadMsgUnix: %w", err)
	}

	scms, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("ParseSocketControlMessage: %w", err)
	}
	if len(scms) != 1 {
		return nil, fmt.Errorf("expected one control message, got %d", len(scms))
	}

	devFds, err := unix.ParseUnixRights(&scms[0])
	if err != nil {
		return nil, fmt.Errorf("ParseUnixRights: %w", err)
	}
	if len(devFds) != 1 {
		return nil, fmt.Errorf("expected one fd, got %d", len(devFds))
	}

	return os.NewFile(uintptr(devFds[0]), "/dev/fuse"), nil
}
