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

// Package fusetesting contains helpers for testing code built on this
// package's session machinery: a scripted stand-in for the fuse device and
// builders for raw request frames.
package fusetesting

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FakeDev plays the kernel's role for a session under test. Reads return
// scripted request frames one at a time; writes are recorded and handed out
// through NextReply. It satisfies the io.ReadWriteCloser contract expected
// by fuse.NewSession.
type FakeDev struct {
	requests chan []byte
	replies  chan []byte

	// Controls the error returned once the script runs out.
	mu       sync.Mutex
	finalErr error

	// WriteErr, if non-nil, is consulted for each write; returning a non-nil
	// error makes the write fail without being recorded.
	WriteErr func(frame []byte) error

	closeOnce sync.Once
	closed    chan struct{}
}

func NewFakeDev() *FakeDev {
	return &FakeDev{
		requests: make(chan []byte, 64),
		replies:  make(chan []byte, 64),
		finalErr: &os.PathError{Op: "read", Path: "/dev/fuse", Err: unix.ENODEV},
		closed:   make(chan struct{}),
	}
}

// PushRequest schedules a frame to be returned by a later Read.
func (d *FakeDev) PushRequest(frame []byte) {
	d.requests <- frame
}

// FinishWith sets the error Reads return after the script is exhausted. The
// default is ENODEV, the error an unmount produces.
func (d *FakeDev) FinishWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finalErr = err
}

func (d *FakeDev) Read(p []byte) (int, error) {
	select {
	case frame := <-d.requests:
		return d.copyFrame(p, frame)

	case <-d.closed:
		// Serve any frame that was pushed before the close.
		select {
		case frame := <-d.requests:
			return d.copyFrame(p, frame)
		default:
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		return 0, d.finalErr
	}
}

func (d *FakeDev) copyFrame(p []byte, frame []byte) (int, error) {
	if len(frame) > len(p) {
		return 0, fmt.Errorf("frame of %d bytes exceeds read buffer", len(frame))
	}
	return copy(p, frame), nil
}

func (d *FakeDev) Write(p []byte) (int, error) {
	if d.WriteErr != nil {
		if err := d.WriteErr(p); err != nil {
			return 0, err
		}
	}

	frame := make([]byte, len(p))
	copy(frame, p)
	d.replies <- frame

	return len(p), nil
}

// Close ends the script: pending reads unblock and return the final error.
func (d *FakeDev) Close() error {
	d.closeOnce.Do(func() { close(d.closed) })
	return nil
}

// NextReply returns the next recorded reply, waiting up to the supplied
// duration for one to arrive.
func (d *FakeDev) NextReply(timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-d.replies:
		return frame, nil
	case <-time.After(timeout):
		return nil, errors.New("timed out waiting for a reply")
	}
}

// NoReply asserts quiescence: it reports an error if a reply arrives within
// the supplied duration.
func (d *FakeDev) NoReply(wait time.Duration) error {
	select {
	case frame := <-d.replies:
		return fmt.Errorf("unexpected reply of %d bytes", len(frame))
	case <-time.After(wait):
		return nil
	}
}
