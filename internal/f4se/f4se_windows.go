//go:build windows

// Package f4se binds the shim to the script extender's native interfaces.
package f4se

import (
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/offsets"
	"github.com/ZacharyZcR/VRShim/internal/serial"
)

// ErrNoLookup is returned when the offset table carries no DataHandler entries.
var ErrNoLookup = errors.New("未配置 DataHandler 偏移")

// SerializationInterface wraps an F4SESerializationInterface pointer. Its
// function table is read through space, so only the native call is unsafe.
type SerializationInterface struct {
	space memory.Space
	ptr   uintptr
	slot  uintptr
}

// NewSerializationInterface wraps ptr. slot is the offset of the
// ReadRecordData function pointer inside the interface.
func NewSerializationInterface(space memory.Space, ptr, slot uintptr) *SerializationInterface {
	return &SerializationInterface{space: space, ptr: ptr, slot: slot}
}

// ReadRecordData reads up to len(p) bytes of the current record.
func (s *SerializationInterface) ReadRecordData(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	fn, err := memory.ReadUint64(s.space, s.ptr+s.slot)
	if err != nil {
		return 0, fmt.Errorf("读取 ReadRecordData 指针失败: %w", err)
	}
	if fn == 0 {
		return 0, errors.New("ReadRecordData 指针为空")
	}

	// UInt32 ReadRecordData(void* buf, UInt32 length)
	r, _, _ := syscall.SyscallN(uintptr(fn), uintptr(unsafe.Pointer(&p[0])), uintptr(uint32(len(p))))
	return int(uint32(r)), nil
}

// DataHandlerLookup resolves plugin names through the extender's
// DataHandler::GetLoadedModIndex.
type DataHandlerLookup struct {
	space    memory.Space
	instance uintptr // address of the DataHandler* singleton
	fn       uintptr
}

// NewDataHandlerLookup binds the lookup to the located modules. The
// DataHandler slot is relative to the game, the function to the extender.
func NewDataHandlerLookup(space memory.Space, game, extender memory.Module, table offsets.Table) (*DataHandlerLookup, error) {
	if table.DataHandler == 0 || table.GetLoadedModIndex == 0 {
		return nil, ErrNoLookup
	}
	if !game.Found() {
		return nil, fmt.Errorf("%w: %s", memory.ErrModuleNotFound, offsets.GameModule)
	}
	return &DataHandlerLookup{
		space:    space,
		instance: game.Addr(table.DataHandler),
		fn:       extender.Addr(table.GetLoadedModIndex),
	}, nil
}

// LoadedModIndex implements serial.ModLookup.
func (l *DataHandlerLookup) LoadedModIndex(name string) uint8 {
	dh, err := memory.ReadUint64(l.space, l.instance)
	if err != nil || dh == 0 {
		return serial.NotLoaded
	}
	cstr, err := windows.BytePtrFromString(name)
	if err != nil {
		return serial.NotLoaded
	}

	// UInt8 DataHandler::GetLoadedModIndex(const char* modName)
	r, _, _ := syscall.SyscallN(l.fn, uintptr(dh), uintptr(unsafe.Pointer(cstr)))
	return uint8(r)
}

// DispatchCallback is the native function the dispatch trampoline calls with
// (intfc, type). Records arriving before Bind are ignored.
type DispatchCallback struct {
	space      memory.Space
	slot       uintptr
	logger     *slog.Logger
	dispatcher *serial.Dispatcher
	ptr        uintptr
}

// NewDispatchCallback allocates the native entry point. Callbacks are never
// released, so one is created per process.
func NewDispatchCallback(space memory.Space, slot uintptr, logger *slog.Logger) *DispatchCallback {
	if logger == nil {
		logger = slog.Default()
	}
	c := &DispatchCallback{space: space, slot: slot, logger: logger}
	c.ptr = windows.NewCallback(c.call)
	return c
}

// Pointer returns the address to install as the hook target.
func (c *DispatchCallback) Pointer() uintptr {
	return c.ptr
}

// Bind attaches the dispatcher once the shim is initialized.
func (c *DispatchCallback) Bind(d *serial.Dispatcher) {
	c.dispatcher = d
}

func (c *DispatchCallback) call(intfc, typ uintptr) uintptr {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("record handler panicked", slog.Any("panic", r))
		}
	}()

	if c.dispatcher == nil {
		c.logger.Warn("record received before initialization", "type", serial.RecordType(uint32(typ)).String())
		return 0
	}
	c.dispatcher.HandleRecord(NewSerializationInterface(c.space, intfc, c.slot), serial.RecordType(uint32(typ)))
	return 0
}
