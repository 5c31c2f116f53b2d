// Package rpcshim implements the companion protocol a process-local
// morecore/mmap hook uses to ask an out-of-process allocator daemon for
// address ranges: a length-prefixed JSON request/response pair over a Unix
// domain socket. This stands in for true libc symbol interposition, which
// a pure Go program cannot perform in a foreign process.
package rpcshim

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Kind names one of the request shapes: the five Interposer operations
// plus a stats query.
type Kind string

const (
	KindAllocAnon Kind = "alloc_anon"
	KindAllocFile Kind = "alloc_file"
	KindFree      Kind = "free"
	KindBrk       Kind = "brk"
	KindSbrk      Kind = "sbrk"
	KindStats     Kind = "stats"
)

// DefaultSocketPath is used when MOSALLOC_SOCK is unset.
func DefaultSocketPath(pid int) string {
	return fmt.Sprintf("/run/mosalloc/%d.sock", pid)
}

// Request is the wire shape of every rpcshim call. Only the fields
// relevant to Kind are populated; the rest are zero.
type Request struct {
	Session string `json:"session"`
	Kind    Kind   `json:"kind"`

	Addr      uint64 `json:"addr,omitempty"`
	Length    uint64 `json:"length,omitempty"`
	Prot      int    `json:"prot,omitempty"`
	Flags     int    `json:"flags,omitempty"`
	FD        int    `json:"fd,omitempty"`
	Offset    int64  `json:"offset,omitempty"`
	Increment int64  `json:"increment,omitempty"`
}

// Response is the wire shape of every rpcshim reply.
type Response struct {
	OK    bool   `json:"ok"`
	Addr  uint64 `json:"addr,omitempty"`
	Error string `json:"error,omitempty"`
	Stats *Stats `json:"stats,omitempty"`
}

// Stats is the per-pool high-water marks and base pointers a KindStats
// request returns, the same shape the TUI watch dashboard polls.
type Stats struct {
	AnonMax, FileMax, BrkMax               uint64
	AnonCur, FileCur, BrkCur               uint64
	AnonStart, AnonEnd, FileStart, FileEnd uint64
	BrkStart, BrkEnd                       uint64
}

// WriteMessage writes a 4-byte big-endian length prefix followed by the
// JSON encoding of v.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("rpcshim: encoding message: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("rpcshim: writing length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("rpcshim: writing message body: %w", err)
	}
	return nil
}

// maxMessageBytes bounds a single message so a corrupt or hostile peer
// can't make a reader allocate an unbounded buffer from a forged length
// prefix.
const maxMessageBytes = 1 << 20

// ReadMessage reads one length-prefixed JSON message into v.
func ReadMessage(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("rpcshim: reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxMessageBytes {
		return fmt.Errorf("rpcshim: message length %d exceeds limit", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("rpcshim: reading message body: %w", err)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("rpcshim: decoding message: %w", err)
	}
	return nil
}
