package rpcshim

import (
	"fmt"
	"net"

	"github.com/mosalloc-go/mosalloc/internal/session"
)

// Client is a connection to a rpcshim Server, used by an in-process
// morecore/mmap hook that wants address ranges from a separate allocator
// daemon process.
type Client struct {
	conn    net.Conn
	session session.ID
}

// Dial connects to the allocator daemon's Unix socket.
func Dial(socketPath string, sessionID session.ID) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("rpcshim: dialing %s: %w", socketPath, err)
	}
	return &Client{conn: conn, session: sessionID}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) call(req Request) (Response, error) {
	req.Session = c.session.String()
	if err := WriteMessage(c.conn, req); err != nil {
		return Response{}, err
	}
	var resp Response
	if err := ReadMessage(c.conn, &resp); err != nil {
		return Response{}, err
	}
	if !resp.OK {
		return Response{}, fmt.Errorf("rpcshim: %s", resp.Error)
	}
	return resp, nil
}

// AllocAnon requests length bytes from the daemon's anonymous mmap pool.
func (c *Client) AllocAnon(length uint64, prot, flags int) (uintptr, error) {
	resp, err := c.call(Request{Kind: KindAllocAnon, Length: length, Prot: prot, Flags: flags})
	if err != nil {
		return 0, err
	}
	return uintptr(resp.Addr), nil
}

// AllocFile requests a file-backed mapping, optionally at a fixed addr.
func (c *Client) AllocFile(addr uintptr, length uint64, prot, flags, fd int, offset int64) (uintptr, error) {
	resp, err := c.call(Request{
		Kind: KindAllocFile, Addr: uint64(addr), Length: length,
		Prot: prot, Flags: flags, FD: fd, Offset: offset,
	})
	if err != nil {
		return 0, err
	}
	return uintptr(resp.Addr), nil
}

// Free returns [addr, addr+length) to whichever pool owns it.
func (c *Client) Free(addr uintptr, length uint64) error {
	_, err := c.call(Request{Kind: KindFree, Addr: uint64(addr), Length: length})
	return err
}

// Brk sets the program break to addr exactly.
func (c *Client) Brk(addr uintptr) error {
	_, err := c.call(Request{Kind: KindBrk, Addr: uint64(addr)})
	return err
}

// Sbrk adjusts the program break by increment bytes, returning its prior
// value.
func (c *Client) Sbrk(increment int64) (uintptr, error) {
	resp, err := c.call(Request{Kind: KindSbrk, Increment: increment})
	if err != nil {
		return 0, err
	}
	return uintptr(resp.Addr), nil
}

// Stats fetches each pool's high-water mark and reserved address range
// from the daemon, the data source behind the watch dashboard when it's
// pointed at a separate process rather than an in-process Interposer.
func (c *Client) Stats() (Stats, error) {
	resp, err := c.call(Request{Kind: KindStats})
	if err != nil {
		return Stats{}, err
	}
	if resp.Stats == nil {
		return Stats{}, fmt.Errorf("rpcshim: stats response missing payload")
	}
	return *resp.Stats, nil
}
