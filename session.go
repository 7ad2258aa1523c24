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
	"io"
	"log"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/sessionfs/fuse/fuseops"
	"github.com/sessionfs/fuse/internal/buffer"
	"github.com/sessionfs/fuse/internal/fusekernel"
)

// Values advertised in the INIT reply.
const (
	initMaxBackground       = 12
	initCongestionThreshold = 9
	initTimeGran            = 1
	initMaxPages            = buffer.MaxWriteSize / 4096
	initMapAlignment        = 0
)

// A Session serves one fuse connection: it reads requests from the device,
// dispatches them to the file system, and writes replies back. The session
// owns its connection and file system for its lifetime.
//
// Request handling is concurrent, one goroutine per request, but replies are
// serialized through a single writer so that each reply is one write
// syscall, as the protocol requires. Reply order across distinct requests is
// whatever order handlers finish in; the kernel does not care.
type Session struct {
	cfg  MountConfig
	fs   FileSystem
	conn *Connection

	debugLogger *log.Logger
	errorLogger *log.Logger

	// The reply queue, drained by the pump. Request goroutines and notifiers
	// are the producers.
	replies chan []byte

	// In-flight request goroutines.
	wg sync.WaitGroup

	// Closed by Serve once the read loop has exited and all request
	// goroutines have finished, telling the pump to drain and stop.
	sendersDone chan struct{}

	// Closed when the pump has exited, for whatever reason. Guards enqueue so
	// that late senders (notifiers in particular) get an error back instead
	// of blocking or panicking.
	pumpExited chan struct{}
}

// NewSession creates a session serving fs over the supplied fuse device. The
// device is normally an *os.File for /dev/fuse, but anything that delivers
// one kernel message per Read will do.
func NewSession(fs FileSystem, dev io.ReadWriteCloser, cfg MountConfig) *Session {
	debugLogger := cfg.DebugLogger
	if debugLogger == nil {
		debugLogger = getLogger()
	}

	return &Session{
		cfg:         cfg,
		fs:          fs,
		conn:        newConnection(dev),
		debugLogger: debugLogger,
		errorLogger: cfg.ErrorLogger,
		replies:     make(chan []byte, 64),
		sendersDone: make(chan struct{}),
		pumpExited:  make(chan struct{}),
	}
}

// Notifier returns a handle for pushing notifications to the kernel through
// this session.
func (s *Session) Notifier() *Notifier {
	return &Notifier{session: s}
}

// Serve runs the session until the file system is unmounted or a fatal
// device error occurs. Unmount (ENODEV on read) and a DESTROY request both
// end the session successfully, after calling the file system's Destroy.
func (s *Session) Serve() error {
	group := new(errgroup.Group)
	group.Go(s.replyPump)

	readErr := s.readLoop()

	// All request goroutines hold the reply queue; wait for them before
	// telling the pump there is nothing more to drain.
	s.wg.Wait()
	close(s.sendersDone)

	// The pump only fails on device-level write errors, and when it does it
	// closes the device, so its error is the root cause of whatever the read
	// loop saw afterward.
	if pumpErr := group.Wait(); pumpErr != nil {
		return pumpErr
	}
	return readErr
}

// enqueue hands a ready-to-write message to the reply pump. It reports false
// if the pump is gone and the message was dropped.
func (s *Session) enqueue(msg []byte) bool {
	select {
	case <-s.pumpExited:
		return false
	default:
	}

	select {
	case s.replies <- msg:
		return true
	case <-s.pumpExited:
		return false
	}
}

// replyPump is the single writer: it drains the reply queue in FIFO order
// and writes each message to the device.
func (s *Session) replyPump() error {
	defer close(s.pumpExited)

	for {
		select {
		case msg := <-s.replies:
			if err := s.pumpWrite(msg); err != nil {
				// Unblock a read loop stuck in read(2).
				s.conn.close()
				return err
			}

		case <-s.sendersDone:
			for {
				select {
				case msg := <-s.replies:
					if err := s.pumpWrite(msg); err != nil {
						s.conn.close()
						return err
					}
				default:
					return nil
				}
			}
		}
	}
}

// pumpWrite writes one message, swallowing the benign ENOENT the kernel
// returns when it has stopped waiting for the request being answered.
func (s *Session) pumpWrite(msg []byte) error {
	err := s.conn.WriteMessage(msg)
	if err == nil {
		return nil
	}

	if errnoFromIOError(err) == unix.ENOENT {
		s.logf("reply for an interrupted request dropped by the kernel: %v", err)
		return nil
	}

	s.logError("WriteMessage: %v", err)
	return fmt.Errorf("WriteMessage: %w", err)
}

// readLoop owns the single read buffer and consumes messages in arrival
// order, handing each to the dispatcher. It never blocks on reply I/O.
func (s *Session) readLoop() error {
	m := new(buffer.InMessage)

	for {
		if err := s.conn.ReadMessage(m); err != nil {
			// ENODEV means the file system was unmounted out from under us.
			// That is how sessions normally end.
			if errnoFromIOError(err) == unix.ENODEV || err == io.EOF {
				s.logf("device gone; destroying")
				s.fs.Destroy()
				return nil
			}

			// A malformed frame is logged and skipped; only device-level
			// errors are fatal.
			if errnoFromIOError(err) == 0 && !errors.Is(err, os.ErrClosed) {
				s.logError("discarding malformed message: %v", err)
				continue
			}

			s.logError("ReadMessage: %v", err)
			return fmt.Errorf("ReadMessage: %w", err)
		}

		h := m.Header()
		opcode := fusekernel.Opcode(h.Opcode)
		s.logf("<- %v unique %v node %v", opcode, h.Unique, h.Nodeid)

		switch opcode {
		case fusekernel.OpInit:
			if err := s.handleInit(m); err != nil {
				return err
			}

		case fusekernel.OpDestroy:
			s.fs.Destroy()
			return nil

		default:
			s.dispatch(m)
		}
	}
}

// handleInit negotiates features with the kernel and replies directly on the
// connection, bypassing the pump: nothing else can be in flight yet, and a
// failure must tear the session down before the pump matters.
func (s *Session) handleInit(m *buffer.InMessage) error {
	unique := m.Header().Unique

	p := m.Consume(unsafe.Sizeof(fusekernel.InitIn{}))
	if p == nil {
		s.writeDirectError(unique, unix.EINVAL)
		return fmt.Errorf("truncated INIT request")
	}
	in := *(*fusekernel.InitIn)(p)

	s.logf("INIT kernel %d.%d flags 0x%08x", in.Major, in.Minor, in.Flags)

	flags := s.negotiateInitFlags(in.Flags)

	op := &fuseops.InitOp{OpContext: fuseops.OpContext{FuseID: unique}}
	if err := s.fs.Init(s.cfg.opContext(), op); err != nil {
		errno := ErrnoFromError(err)
		s.writeDirectError(unique, errno)
		return fmt.Errorf("Init: %w", errno)
	}

	om := buffer.NewOutMessage(fusekernel.InitOutSize)
	out := (*fusekernel.InitOut)(om.Grow(unsafe.Sizeof(fusekernel.InitOut{})))
	out.Major = fusekernel.KernelVersion
	out.Minor = fusekernel.KernelMinorVersion
	out.MaxReadahead = in.MaxReadahead
	out.Flags = flags
	out.MaxBackground = initMaxBackground
	out.CongestionThreshold = initCongestionThreshold
	out.MaxWrite = buffer.MaxWriteSize
	out.TimeGran = initTimeGran
	out.MaxPages = initMaxPages
	out.MapAlignment = initMapAlignment

	h := om.OutHeader()
	h.Len = uint32(om.Len())
	h.Unique = unique

	if err := s.conn.WriteMessage(om.Bytes()); err != nil {
		s.logError("writing INIT reply: %v", err)
		return fmt.Errorf("writing INIT reply: %w", err)
	}

	s.logf("INIT done, flags 0x%08x", flags)
	return nil
}

// negotiateInitFlags answers each kernel-offered feature bit we support,
// honoring the mount option gates.
func (s *Session) negotiateInitFlags(offered fusekernel.InitFlags) fusekernel.InitFlags {
	var flags fusekernel.InitFlags

	// Bits answered whenever the kernel offers them.
	always := fusekernel.InitAsyncRead |
		fusekernel.InitFileOps |
		fusekernel.InitAtomicTrunc |
		fusekernel.InitExportSupport |
		fusekernel.InitBigWrites |
		fusekernel.InitSpliceWrite |
		fusekernel.InitSpliceMove |
		fusekernel.InitSpliceRead |
		fusekernel.InitAutoInvalData |
		fusekernel.InitAsyncDIO |
		fusekernel.InitParallelDirOps |
		fusekernel.InitMaxPages |
		fusekernel.InitCacheSymlinks

	flags |= offered & always

	if s.cfg.EnableFileLocks {
		flags |= offered & fusekernel.InitPosixLocks
	}
	if s.cfg.DontMask {
		flags |= offered & fusekernel.InitDontMask
	}
	if s.cfg.WriteBack {
		flags |= offered & fusekernel.InitWritebackCache
	}
	if s.cfg.NoOpenSupport {
		flags |= offered & fusekernel.InitNoOpenSupport
	}
	if s.cfg.NoOpenDirSupport {
		flags |= offered & fusekernel.InitNoOpendirSupport
	}
	if s.cfg.HandleKillpriv {
		flags |= offered & fusekernel.InitHandleKillpriv
	}
	if s.cfg.DefaultPermissions {
		flags |= offered & fusekernel.InitPosixACL
	}

	// Readdirplus: on when the kernel offers it or when forced; the adaptive
	// bit only makes sense when not forcing.
	if offered&fusekernel.InitDoReaddirplus != 0 || s.cfg.ForceReaddirPlus {
		flags |= fusekernel.InitDoReaddirplus
	}
	if offered&fusekernel.InitReaddirplusAuto != 0 && !s.cfg.ForceReaddirPlus {
		flags |= fusekernel.InitReaddirplusAuto
	}

	return flags
}

// writeDirectError writes a header-only error reply straight to the device,
// used only on the INIT path where the pump is not yet trusted.
func (s *Session) writeDirectError(unique uint64, errno unix.Errno) {
	om := buffer.NewOutMessage(0)
	h := om.OutHeader()
	h.Len = uint32(om.Len())
	h.Error = -int32(errno)
	h.Unique = unique

	if err := s.conn.WriteMessage(om.Bytes()); err != nil {
		s.logError("writing error reply: %v", err)
	}
}

func (s *Session) logf(format string, v ...interface{}) {
	if s.debugLogger != nil {
		s.debugLogger.Printf(format, v...)
	}
}

func (s *Session) logError(format string, v ...interface{}) {
	if s.errorLogger != nil {
		s.errorLogger.Printf(format, v...)
	}
}
