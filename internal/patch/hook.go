package patch

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/ZacharyZcR/VRShim/internal/asm"
)

// maxInstLen is the longest legal x86 instruction.
const maxInstLen = 15

var (
	// ErrNoPattern is returned when a hook has no pinned original bytes.
	ErrNoPattern = errors.New("未配置钩子位置的原始字节")
	// ErrBadPattern is returned when the pinned bytes cannot host the trampoline.
	ErrBadPattern = errors.New("钩子位置的原始字节无效")
)

// Hook redirects the instructions at an extender offset into a call.
type Hook struct {
	Name       string
	Offset     uintptr
	Trampoline asm.Trampoline
	// Original are the whole instructions the trampoline replaces.
	Original []byte
}

// DispatchHook builds the hook over the default case of the extender's core
// load callback switch. The record interface pointer lives in RBX at that
// point and is moved into RCX, the first argument of target; the record
// type stays in EDX as the second.
func (p *Patcher) DispatchHook(target uintptr) Hook {
	return Hook{
		Name:   "SwitchDefault",
		Offset: p.table.SwitchDefault,
		Trampoline: asm.Trampoline{
			Moves:          []asm.Move{{Dst: asm.RCX, Src: asm.RBX}},
			Scratch:        asm.RAX,
			Target:         uint64(target),
			AlignImmediate: true,
		},
		Original: p.table.SwitchDefaultOriginal,
	}
}

// HookState describes a hook site before installation.
type HookState struct {
	State    SiteState
	Code     []byte // trampoline padded to Covered bytes
	Covered  int    // bytes of original instructions replaced
	Original []x86asm.Inst
	Live     []byte // site bytes backing Original
	// Installed is the call target of a trampoline already at the site.
	Installed uint64
}

// InspectHook compares the site with the pinned original bytes and plans
// the write without performing it. A site is original only when it starts
// with h.Original; the trampoline then covers exactly those bytes.
func (p *Patcher) InspectHook(h Hook) (HookState, error) {
	addr := p.Addr(h.Offset)

	unpadded := h.Trampoline
	unpadded.Size = 0
	code, err := unpadded.Assemble(addr)
	if err != nil {
		return HookState{}, err
	}

	window := make([]byte, max(len(code), len(h.Original)))
	if err := p.space.ReadAt(window, addr); err != nil {
		return HookState{}, fmt.Errorf("读取 %s 失败: %w", h.Name, err)
	}

	// Everything up to the 64-bit immediate identifies a trampoline of ours.
	immStart := len(code) - len(asm.CallReg(h.Trampoline.Scratch)) - 8
	if bytes.HasPrefix(window, code[:immStart]) {
		installed := binary.LittleEndian.Uint64(window[immStart:])
		if bytes.Equal(window[:len(code)], code) {
			return HookState{State: StatePatched, Code: code, Covered: len(code), Installed: installed}, nil
		}
		return HookState{State: StateUnknown, Covered: len(code), Installed: installed}, nil
	}

	if len(h.Original) == 0 {
		return p.describeSite(addr, len(code)), ErrNoPattern
	}

	insts, err := decodeAll(h.Original)
	if err != nil {
		return HookState{State: StateUnknown}, fmt.Errorf("%w: %s: %v", ErrBadPattern, h.Name, err)
	}
	if len(h.Original) < len(code) {
		return HookState{State: StateUnknown}, fmt.Errorf("%w: %s 需要 %d 字节, 仅有 %d 字节",
			ErrBadPattern, h.Name, len(code), len(h.Original))
	}

	if !bytes.HasPrefix(window, h.Original) {
		return HookState{State: StateUnknown}, nil
	}

	state := HookState{State: StateOriginal, Covered: len(h.Original), Original: insts, Live: window[:len(h.Original)]}
	padded := h.Trampoline
	padded.Size = state.Covered
	state.Code, err = padded.Assemble(addr)
	if err != nil {
		return HookState{}, err
	}
	return state, nil
}

// describeSite decodes the whole instructions that a trampoline of n bytes
// would cover, so unpinned sites can be shown to the user.
func (p *Patcher) describeSite(addr uintptr, n int) HookState {
	state := HookState{State: StateUnknown}
	live := make([]byte, n+maxInstLen)
	if err := p.space.ReadAt(live, addr); err != nil {
		return state
	}
	for state.Covered < n {
		inst, err := x86asm.Decode(live[state.Covered:], 64)
		if err != nil {
			break
		}
		state.Original = append(state.Original, inst)
		state.Covered += inst.Len
	}
	state.Live = live[:state.Covered]
	return state
}

// decodeAll decodes b as 64-bit code that ends on an instruction boundary.
func decodeAll(b []byte) ([]x86asm.Inst, error) {
	var insts []x86asm.Inst
	for pos := 0; pos < len(b); {
		inst, err := x86asm.Decode(b[pos:], 64)
		if err != nil {
			return nil, fmt.Errorf("偏移 %d: %w", pos, err)
		}
		insts = append(insts, inst)
		pos += inst.Len
	}
	return insts, nil
}

// InstallHook writes the trampoline over the pinned original instructions,
// padding with NOPs to their end. Sites holding anything else, including a
// different trampoline, are skipped.
func (p *Patcher) InstallHook(h Hook) (Outcome, error) {
	if p.applied[h.Name] {
		return AlreadyApplied, nil
	}

	state, err := p.InspectHook(h)
	if errors.Is(err, ErrNoPattern) {
		p.logger.Warn("hook site has no pinned original bytes, not patching", "site", h.Name)
		return Skipped, err
	}
	if err != nil {
		return Skipped, err
	}

	switch state.State {
	case StatePatched:
		p.logger.Info("hook already installed", "site", h.Name)
		p.markApplied(h.Name)
		return AlreadyApplied, nil
	case StateUnknown:
		p.logger.Warn("hook site not recognized, not patching", "site", h.Name,
			"expected", hex.EncodeToString(h.Original))
		return Skipped, nil
	}

	for _, inst := range state.Original {
		p.logger.Debug("replacing instruction", "site", h.Name, "inst", x86asm.IntelSyntax(inst, 0, nil))
	}

	if err := p.Write(h.Name, p.Addr(h.Offset), state.Code); err != nil {
		return Skipped, err
	}
	return Applied, nil
}
