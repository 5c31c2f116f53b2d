package rpcshim

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/mosalloc-go/mosalloc/internal/interposer"
	"github.com/mosalloc-go/mosalloc/internal/obslog"
	"github.com/mosalloc-go/mosalloc/internal/session"
)

// Server accepts connections on a Unix socket and dispatches each request
// to the shared Interposer, the same instance a same-process caller would
// use directly.
type Server struct {
	SocketPath string
	Interposer *interposer.Interposer
	Log        *obslog.Logger
}

// Listen creates the Unix socket, removing any stale file left behind by a
// previous run at the same path.
func (s *Server) Listen() (net.Listener, error) {
	if err := os.Remove(s.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("rpcshim: removing stale socket %s: %w", s.SocketPath, err)
	}
	ln, err := net.Listen("unix", s.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("rpcshim: listening on %s: %w", s.SocketPath, err)
	}
	return ln, nil
}

// Serve accepts connections until ln is closed, handling each on its own
// goroutine. A connection error ends that connection only.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rpcshim: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	for {
		var req Request
		if err := ReadMessage(conn, &req); err != nil {
			if err != io.EOF && s.Log != nil {
				s.Log.WithSession(req.Session).WithError(err).Debug("rpcshim: connection closed")
			}
			return
		}
		resp := s.dispatch(req)
		if err := WriteMessage(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req Request) Response {
	if _, err := session.Parse(req.Session); err != nil {
		return Response{OK: false, Error: fmt.Sprintf("invalid session id: %v", err)}
	}

	switch req.Kind {
	case KindAllocAnon:
		addr, err := s.Interposer.Mmap(0, req.Length, req.Prot, req.Flags, -1, 0)
		return toResponse(uint64(addr), err)
	case KindAllocFile:
		addr, err := s.Interposer.Mmap(uintptr(req.Addr), req.Length, req.Prot, req.Flags, req.FD, req.Offset)
		return toResponse(uint64(addr), err)
	case KindFree:
		err := s.Interposer.Munmap(uintptr(req.Addr), req.Length)
		return toResponse(0, err)
	case KindBrk:
		err := s.Interposer.Brk(uintptr(req.Addr))
		return toResponse(req.Addr, err)
	case KindSbrk:
		prior, err := s.Interposer.Sbrk(req.Increment)
		return toResponse(uint64(prior), err)
	case KindStats:
		anonMax, fileMax, brkMax := s.Interposer.MaxSizes()
		anonCur, fileCur, brkCur := s.Interposer.CurrentSizes()
		anonStart, anonEnd, brkStart, brkEnd, fileStart, fileEnd := s.Interposer.RegionBases()
		return Response{OK: true, Stats: &Stats{
			AnonMax: anonMax, FileMax: fileMax, BrkMax: brkMax,
			AnonCur: anonCur, FileCur: fileCur, BrkCur: brkCur,
			AnonStart: uint64(anonStart), AnonEnd: uint64(anonEnd),
			FileStart: uint64(fileStart), FileEnd: uint64(fileEnd),
			BrkStart: uint64(brkStart), BrkEnd: uint64(brkEnd),
		}}
	default:
		return Response{OK: false, Error: fmt.Sprintf("unknown request kind %q", req.Kind)}
	}
}

func toResponse(addr uint64, err error) Response {
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Addr: addr}
}
