// Package asm assembles the small x86-64 call trampolines written over hook sites.
package asm

import (
	"encoding/binary"
	"fmt"
)

// Reg is an x86-64 general purpose register, numbered as in ModRM encoding.
type Reg uint8

// General purpose registers.
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var regNames = [...]string{
	"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("Reg(%d)", uint8(r))
}

// Nop is the single-byte no-op.
const Nop = 0x90

// Move copies Src into Dst before the call.
type Move struct {
	Dst Reg
	Src Reg
}

// Trampoline describes an absolute indirect call: argument moves, then
// mov Scratch, imm64 followed by call Scratch.
type Trampoline struct {
	Moves   []Move
	Scratch Reg
	Target  uint64
	// AlignImmediate pads with NOPs before the mov so the 64-bit immediate
	// sits on an 8-byte boundary of its absolute address.
	AlignImmediate bool
	// Size is the exact number of bytes to emit. Zero means no trailing padding.
	Size int
}

// Assemble encodes the trampoline for placement at address at.
func (t Trampoline) Assemble(at uintptr) ([]byte, error) {
	if t.Scratch > R15 {
		return nil, fmt.Errorf("无效寄存器: %s", t.Scratch)
	}

	var code []byte
	for _, m := range t.Moves {
		if m.Dst > R15 || m.Src > R15 {
			return nil, fmt.Errorf("无效寄存器: %s <- %s", m.Dst, m.Src)
		}
		code = append(code, MovRegReg(m.Dst, m.Src)...)
	}

	if t.AlignImmediate {
		// The immediate starts two bytes after the mov opcode begins.
		immAt := at + uintptr(len(code)) + 2
		for immAt%8 != 0 {
			code = append(code, Nop)
			immAt++
		}
	}

	code = append(code, MovRegImm64(t.Scratch, t.Target)...)
	code = append(code, CallReg(t.Scratch)...)

	if t.Size == 0 {
		return code, nil
	}
	if len(code) > t.Size {
		return nil, fmt.Errorf("跳板大小 %d 字节超过可用空间 %d 字节", len(code), t.Size)
	}
	for len(code) < t.Size {
		code = append(code, Nop)
	}
	return code, nil
}

// MovRegReg encodes mov dst, src (REX.W 89 /r).
func MovRegReg(dst, src Reg) []byte {
	rex := byte(0x48)
	if src >= R8 {
		rex |= 0x04 // REX.R
	}
	if dst >= R8 {
		rex |= 0x01 // REX.B
	}
	modrm := 0xC0 | byte(src&7)<<3 | byte(dst&7)
	return []byte{rex, 0x89, modrm}
}

// MovRegImm64 encodes mov reg, imm64 (REX.W B8+r io).
func MovRegImm64(reg Reg, imm uint64) []byte {
	rex := byte(0x48)
	if reg >= R8 {
		rex |= 0x01
	}
	code := make([]byte, 10)
	code[0] = rex
	code[1] = 0xB8 + byte(reg&7)
	binary.LittleEndian.PutUint64(code[2:], imm)
	return code
}

// CallReg encodes call reg (FF /2).
func CallReg(reg Reg) []byte {
	modrm := 0xD0 | byte(reg&7)
	if reg >= R8 {
		return []byte{0x41, 0xFF, modrm}
	}
	return []byte{0xFF, modrm}
}
