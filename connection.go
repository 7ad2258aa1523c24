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
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/sessionfs/fuse/internal/buffer"
)

// Connection wraps the open fuse device. It is the only component that
// performs device I/O: the session's read loop reads through it, and the
// reply pump writes through it.
type Connection struct {
	dev io.ReadWriteCloser

	closeOnce sync.Once
	closeErr  error
}

func newConnection(dev io.ReadWriteCloser) *Connection {
	return &Connection{dev: dev}
}

// ReadMessage reads the next message from the kernel into m. EINTR is
// retried internally. ENODEV (surfaced by errnoFromIOError) means the file
// system has been unmounted.
//
// The message storage belongs to the caller and is reused across calls; this
// must not be called concurrently with itself.
func (c *Connection) ReadMessage(m *buffer.InMessage) error {
	for {
		err := m.Init(c.dev)
		if errnoFromIOError(err) == unix.EINTR {
			continue
		}

		return err
	}
}

// WriteMessage writes the supplied message to the kernel in a single write,
// as the protocol requires. A short write is an error.
func (c *Connection) WriteMessage(msg []byte) error {
	n, err := c.dev.Write(msg)
	if err != nil {
		return err
	}

	if n != len(msg) {
		return fmt.Errorf("wrote %d bytes; expected %d", n, len(msg))
	}

	return nil
}

// close closes the device. Safe to call more than once; used both for
// orderly teardown and to unblock a read loop when the reply pump fails.
func (c *Connection) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.dev.Close()
	})

	return c.closeErr
}
