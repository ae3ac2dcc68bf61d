package asm

import (
	"bytes"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

var x86Regs = map[Reg]x86asm.Reg{
	RAX: x86asm.RAX, RCX: x86asm.RCX, RDX: x86asm.RDX, RBX: x86asm.RBX,
	RSP: x86asm.RSP, RBP: x86asm.RBP, RSI: x86asm.RSI, RDI: x86asm.RDI,
	R8: x86asm.R8, R9: x86asm.R9, R10: x86asm.R10, R11: x86asm.R11,
	R12: x86asm.R12, R13: x86asm.R13, R14: x86asm.R14, R15: x86asm.R15,
}

// decodeAll disassembles code and fails on undecodable or trailing bytes.
func decodeAll(t *testing.T, code []byte) []x86asm.Inst {
	t.Helper()
	var insts []x86asm.Inst
	for pos := 0; pos < len(code); {
		inst, err := x86asm.Decode(code[pos:], 64)
		if err != nil {
			t.Fatalf("Decode(% X) at %d error = %v", code, pos, err)
		}
		insts = append(insts, inst)
		pos += inst.Len
	}
	return insts
}

func TestAssembleDispatchTrampoline(t *testing.T) {
	const target = 0x00007FF8DEADBEEF
	tr := Trampoline{
		Moves:          []Move{{Dst: RCX, Src: RBX}},
		Scratch:        RAX,
		Target:         target,
		AlignImmediate: true,
	}

	// Site offset 0x18e81 in a module loaded at a 64K boundary.
	code, err := tr.Assemble(0x7FF800000000 + 0x18e81)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	want := []byte{
		0x48, 0x89, 0xD9, // mov rcx, rbx
		0x90, 0x90, // nop; nop
		0x48, 0xB8, 0xEF, 0xBE, 0xAD, 0xDE, 0xF8, 0x7F, 0x00, 0x00, // mov rax, imm64
		0xFF, 0xD0, // call rax
	}
	if !bytes.Equal(code, want) {
		t.Fatalf("Assemble() = % X, want % X", code, want)
	}

	insts := decodeAll(t, code)
	ops := []x86asm.Op{x86asm.MOV, x86asm.NOP, x86asm.NOP, x86asm.MOV, x86asm.CALL}
	if len(insts) != len(ops) {
		t.Fatalf("decoded %d instructions, want %d", len(insts), len(ops))
	}
	for i, op := range ops {
		if insts[i].Op != op {
			t.Errorf("instruction %d = %v, want %v", i, insts[i].Op, op)
		}
	}
	if insts[0].Args[0] != x86asm.RCX || insts[0].Args[1] != x86asm.RBX {
		t.Errorf("move = %v", insts[0])
	}
	if insts[3].Args[0] != x86asm.RAX || insts[3].Args[1] != x86asm.Imm(target) {
		t.Errorf("immediate load = %v", insts[3])
	}
	if insts[4].Args[0] != x86asm.RAX {
		t.Errorf("call = %v", insts[4])
	}
}

func TestAssembleImmediateAlignment(t *testing.T) {
	tests := []struct {
		name    string
		at      uintptr
		moves   []Move
		wantLen int
	}{
		{name: "Already aligned", at: 0x1006, wantLen: 12},
		{name: "One move, two pads", at: 0x18e81, moves: []Move{{Dst: RCX, Src: RBX}}, wantLen: 17},
		{name: "Seven pads", at: 0x1007, wantLen: 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Trampoline{Moves: tt.moves, Scratch: RAX, Target: 1, AlignImmediate: true}
			code, err := tr.Assemble(tt.at)
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if len(code) != tt.wantLen {
				t.Errorf("len = %d, want %d (% X)", len(code), tt.wantLen, code)
			}
			immOffset := bytes.Index(code, []byte{0x48, 0xB8}) + 2
			if (tt.at+uintptr(immOffset))%8 != 0 {
				t.Errorf("immediate at 0x%X is not 8-byte aligned", tt.at+uintptr(immOffset))
			}
		})
	}
}

func TestAssembleExtendedRegisters(t *testing.T) {
	for dst := RAX; dst <= R15; dst++ {
		for src := RAX; src <= R15; src++ {
			insts := decodeAll(t, MovRegReg(dst, src))
			if len(insts) != 1 || insts[0].Op != x86asm.MOV ||
				insts[0].Args[0] != x86Regs[dst] || insts[0].Args[1] != x86Regs[src] {
				t.Fatalf("MovRegReg(%s, %s) decoded as %v", dst, src, insts)
			}
		}
	}

	for reg := RAX; reg <= R15; reg++ {
		if reg == RSP {
			continue
		}
		code := append(MovRegImm64(reg, 0x1122334455667788), CallReg(reg)...)
		insts := decodeAll(t, code)
		if len(insts) != 2 {
			t.Fatalf("%s: decoded %d instructions", reg, len(insts))
		}
		if insts[0].Args[0] != x86Regs[reg] || insts[0].Args[1] != x86asm.Imm(0x1122334455667788) {
			t.Errorf("%s: immediate load = %v", reg, insts[0])
		}
		if insts[1].Op != x86asm.CALL || insts[1].Args[0] != x86Regs[reg] {
			t.Errorf("%s: call = %v", reg, insts[1])
		}
	}
}

func TestAssembleSize(t *testing.T) {
	tr := Trampoline{Moves: []Move{{Dst: RCX, Src: RDX}}, Scratch: R11, Target: 0x1000, Size: 20}
	code, err := tr.Assemble(0)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(code) != 20 {
		t.Fatalf("len = %d, want 20", len(code))
	}
	insts := decodeAll(t, code)
	if last := insts[len(insts)-1]; last.Op != x86asm.NOP {
		t.Errorf("trailing instruction = %v, want NOP", last)
	}

	tr.Size = 10
	if _, err := tr.Assemble(0); err == nil {
		t.Error("Assemble() should fail when the sequence exceeds Size")
	}
}
