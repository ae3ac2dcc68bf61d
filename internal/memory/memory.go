// Package memory provides module lookup and byte-level access to process address spaces.
package memory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrModuleNotFound is returned when no loaded module matches the requested name.
var ErrModuleNotFound = errors.New("未找到模块")

// Space is an address space addressed by absolute virtual address.
type Space interface {
	ReadAt(p []byte, addr uintptr) error
	WriteAt(p []byte, addr uintptr) error
}

// Module describes a module loaded into a process.
type Module struct {
	Name string  // File name, e.g. "f4sevr_1_2_72.dll".
	Base uintptr // Load address. Zero means not found.
	Size uint32  // SizeOfImage as reported by the loader.
}

// Found reports whether m refers to a located module.
func (m Module) Found() bool {
	return m.Base != 0
}

// Addr returns the absolute address of offset inside the module.
func (m Module) Addr(offset uintptr) uintptr {
	return m.Base + offset
}

// Enumerator lists the modules of a process.
type Enumerator interface {
	Modules() ([]Module, error)
}

// Find returns the first module whose name equals name exactly.
func Find(mods []Module, name string) (Module, bool) {
	for _, m := range mods {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// Locate enumerates the modules of e and returns the one named name.
// On any failure the zero Module is returned together with the error.
func Locate(e Enumerator, name string) (Module, error) {
	mods, err := e.Modules()
	if err != nil {
		return Module{}, fmt.Errorf("枚举模块失败: %w", err)
	}

	m, ok := Find(mods, name)
	if !ok {
		return Module{}, fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	return m, nil
}

// ReadUint64 reads a little-endian 64-bit value at addr.
func ReadUint64(s Space, addr uintptr) (uint64, error) {
	var buf [8]byte
	if err := s.ReadAt(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// ReadUint16 reads a little-endian 16-bit value at addr.
func ReadUint16(s Space, addr uintptr) (uint16, error) {
	var buf [2]byte
	if err := s.ReadAt(buf[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadUint8 reads a single byte at addr.
func ReadUint8(s Space, addr uintptr) (uint8, error) {
	var buf [1]byte
	if err := s.ReadAt(buf[:], addr); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// readerAt exposes a Space as an io.ReaderAt rooted at base.
type readerAt struct {
	space Space
	base  uintptr
}

// NewReaderAt returns an io.ReaderAt whose offset 0 is base in s.
// It lets debug/pe parse headers of a module mapped in memory.
func NewReaderAt(s Space, base uintptr) io.ReaderAt {
	return &readerAt{space: s, base: base}
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("无效偏移: %d", off)
	}
	if err := r.space.ReadAt(p, r.base+uintptr(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}
