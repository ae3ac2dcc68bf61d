//go:build !windows

package memory

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by live-process access on platforms other than Windows.
var ErrUnsupported = errors.New("当前平台不支持进程内存访问")

// Process is unavailable outside Windows.
type Process struct{}

// CurrentProcess returns a Process whose operations all fail.
func CurrentProcess() *Process {
	return &Process{}
}

// OpenProcess always fails outside Windows.
func OpenProcess(pid uint32) (*Process, error) {
	return nil, fmt.Errorf("打开进程 %d 失败: %w", pid, ErrUnsupported)
}

// PID returns 0.
func (p *Process) PID() uint32 { return 0 }

// Close is a no-op.
func (p *Process) Close() error { return nil }

// ReadAt always fails.
func (p *Process) ReadAt(buf []byte, addr uintptr) error { return ErrUnsupported }

// WriteAt always fails.
func (p *Process) WriteAt(buf []byte, addr uintptr) error { return ErrUnsupported }

// Modules always fails.
func (p *Process) Modules() ([]Module, error) { return nil, ErrUnsupported }
