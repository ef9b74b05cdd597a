package jit

import (
	"fmt"

	"github.com/stikjit/jitstub/internal/rsp"
)

// DefaultPageSize is the arm64 iOS page size (16 KiB).
const DefaultPageSize = 0x4000

// MemoryPreparer makes a region of target memory ready to execute JIT
// code. The returned status is free-form and only logged; a non-nil error
// means the channel failed.
type MemoryPreparer interface {
	Prepare(ch rsp.Channel, address, size uint64) (string, error)
}

// PreparerFunc adapts a function to MemoryPreparer.
type PreparerFunc func(ch rsp.Channel, address, size uint64) (string, error)

// Prepare implements MemoryPreparer.
func (f PreparerFunc) Prepare(ch rsp.Channel, address, size uint64) (string, error) {
	return f(ch, address, size)
}

// PageTouchPreparer prepares a region by reading one byte from every page
// it covers and writing the same byte back through the debugger, so each
// page is faulted in under debugger control.
type PageTouchPreparer struct {
	// PageSize must be a power of two. Zero means DefaultPageSize.
	PageSize uint64
}

// Prepare implements MemoryPreparer. It returns "OK" when every page was
// touched, or the first error reply the stub produced.
func (p PageTouchPreparer) Prepare(ch rsp.Channel, address, size uint64) (string, error) {
	if size == 0 {
		return "OK", nil
	}

	page := p.PageSize
	if page == 0 || page&(page-1) != 0 {
		page = DefaultPageSize
	}

	last := address + size - 1
	if last < address {
		last = ^uint64(0)
	}

	for addr := address &^ (page - 1); ; addr += page {
		status, err := touchPage(ch, addr)
		if err != nil || status != "OK" {
			return status, err
		}
		if last-addr < page {
			break
		}
	}
	return "OK", nil
}

func touchPage(ch rsp.Channel, addr uint64) (string, error) {
	reply, err := ch.Send(rsp.ReadMemory(addr, 1))
	if err != nil {
		return "", err
	}
	if rsp.IsErrorReply(reply) {
		return reply, nil
	}

	b, err := rsp.DecodeMemory(reply)
	if err != nil || len(b) != 1 {
		return fmt.Sprintf("E00 unreadable page 0x%x: %q", addr, reply), nil
	}

	reply, err = ch.Send(rsp.WriteMemory(addr, b))
	if err != nil {
		return "", err
	}
	if reply != "OK" {
		if reply == "" {
			return fmt.Sprintf("E00 write unsupported at 0x%x", addr), nil
		}
		return reply, nil
	}
	return "OK", nil
}
