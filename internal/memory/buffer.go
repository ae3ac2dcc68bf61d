package memory

import "fmt"

// Buffer is a Space backed by a byte slice mapped at Base.
type Buffer struct {
	Base uintptr
	Data []byte
}

// NewBuffer allocates a zeroed buffer of size bytes mapped at base.
func NewBuffer(base uintptr, size int) *Buffer {
	return &Buffer{Base: base, Data: make([]byte, size)}
}

func (b *Buffer) span(addr uintptr, n int) (int, error) {
	if addr < b.Base || addr-b.Base > uintptr(len(b.Data)) || uintptr(len(b.Data))-(addr-b.Base) < uintptr(n) {
		return 0, fmt.Errorf("地址越界: 0x%X (+%d)", addr, n)
	}
	return int(addr - b.Base), nil
}

// ReadAt copies len(p) bytes starting at addr.
func (b *Buffer) ReadAt(p []byte, addr uintptr) error {
	off, err := b.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, b.Data[off:])
	return nil
}

// WriteAt copies p into the buffer at addr.
func (b *Buffer) WriteAt(p []byte, addr uintptr) error {
	off, err := b.span(addr, len(p))
	if err != nil {
		return err
	}
	copy(b.Data[off:], p)
	return nil
}

// StaticModules is an Enumerator over a fixed module list.
type StaticModules []Module

// Modules returns the list unchanged.
func (s StaticModules) Modules() ([]Module, error) {
	return s, nil
}
