//go:build windows

package memory

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32DLL               = windows.NewLazySystemDLL("kernel32.dll")
	procFlushInstructionCache = kernel32DLL.NewProc("FlushInstructionCache")
)

const processAccess = windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ |
	windows.PROCESS_VM_WRITE | windows.PROCESS_VM_OPERATION

// Process is a Space over the memory of a live process.
type Process struct {
	handle windows.Handle
	pid    uint32
	owned  bool
}

// CurrentProcess returns a Process for the calling process.
func CurrentProcess() *Process {
	return &Process{
		handle: windows.CurrentProcess(),
		pid:    windows.GetCurrentProcessId(),
	}
}

// OpenProcess opens the process with the given PID for reading and writing.
func OpenProcess(pid uint32) (*Process, error) {
	h, err := windows.OpenProcess(processAccess, false, pid)
	if err != nil {
		return nil, fmt.Errorf("打开进程 %d 失败: %w", pid, err)
	}
	return &Process{handle: h, pid: pid, owned: true}, nil
}

// PID returns the process identifier.
func (p *Process) PID() uint32 {
	return p.pid
}

// Close releases the process handle if it was opened by OpenProcess.
func (p *Process) Close() error {
	if !p.owned {
		return nil
	}
	return windows.CloseHandle(p.handle)
}

// ReadAt reads len(p) bytes at addr.
func (p *Process) ReadAt(buf []byte, addr uintptr) error {
	if len(buf) == 0 {
		return nil
	}
	var n uintptr
	if err := windows.ReadProcessMemory(p.handle, addr, &buf[0], uintptr(len(buf)), &n); err != nil {
		return fmt.Errorf("读取内存 0x%X 失败: %w", addr, err)
	}
	if n != uintptr(len(buf)) {
		return fmt.Errorf("读取内存 0x%X 不完整: %d/%d", addr, n, len(buf))
	}
	return nil
}

// WriteAt writes buf at addr. Page protection is lifted for the duration of
// the write and the instruction cache is flushed afterwards, so code pages
// can be patched.
func (p *Process) WriteAt(buf []byte, addr uintptr) error {
	if len(buf) == 0 {
		return nil
	}
	size := uintptr(len(buf))

	var oldProtect uint32
	if err := windows.VirtualProtectEx(p.handle, addr, size, windows.PAGE_EXECUTE_READWRITE, &oldProtect); err != nil {
		return fmt.Errorf("修改内存保护 0x%X 失败: %w", addr, err)
	}

	var n uintptr
	writeErr := windows.WriteProcessMemory(p.handle, addr, &buf[0], size, &n)

	var ignored uint32
	restoreErr := windows.VirtualProtectEx(p.handle, addr, size, oldProtect, &ignored)
	_, _, _ = procFlushInstructionCache.Call(uintptr(p.handle), addr, size)

	if writeErr != nil {
		return fmt.Errorf("写入内存 0x%X 失败: %w", addr, writeErr)
	}
	if n != size {
		return fmt.Errorf("写入内存 0x%X 不完整: %d/%d", addr, n, size)
	}
	if restoreErr != nil {
		return fmt.Errorf("恢复内存保护 0x%X 失败: %w", addr, restoreErr)
	}
	return nil
}

// Modules lists the modules loaded in the process using a Toolhelp32 snapshot.
func (p *Process) Modules() ([]Module, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, p.pid)
	if err != nil {
		return nil, fmt.Errorf("创建模块快照失败: %w", err)
	}
	defer func() { _ = windows.CloseHandle(snap) }()

	var entry windows.ModuleEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var mods []Module
	for err = windows.Module32First(snap, &entry); err == nil; err = windows.Module32Next(snap, &entry) {
		mods = append(mods, Module{
			Name: windows.UTF16ToString(entry.Module[:]),
			Base: entry.ModBaseAddr,
			Size: entry.ModBaseSize,
		})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("遍历模块失败: %w", err)
	}

	return mods, nil
}
