package patch

import (
	"encoding/binary"
	"fmt"

	"github.com/ZacharyZcR/VRShim/internal/memory"
)

// Literal replaces a stored 8-byte game address when, and only when, it
// holds a known-bad value. Bad and Good are relative to the game base.
type Literal struct {
	Name   string
	Offset uintptr // extender offset of the stored value
	Bad    uintptr
	Good   uintptr
}

// GameDataReadyFix corrects the RelocAddr the extender stores for
// GameDataReady, so the game-data-ready event fires.
func (p *Patcher) GameDataReadyFix() Literal {
	return Literal{
		Name:   "GameDataReadyOriginal",
		Offset: p.table.GameDataReadyOriginal,
		Bad:    p.table.GameDataReadyBad,
		Good:   p.table.GameDataReadyGood,
	}
}

// LiteralState is the value currently stored at a literal site.
type LiteralState struct {
	Value uint64
	State SiteState
}

// InspectLiteral reads the site without writing.
func (p *Patcher) InspectLiteral(l Literal) (LiteralState, error) {
	value, err := memory.ReadUint64(p.space, p.Addr(l.Offset))
	if err != nil {
		return LiteralState{}, fmt.Errorf("读取 %s 失败: %w", l.Name, err)
	}

	state := LiteralState{Value: value, State: StateUnknown}
	switch value {
	case uint64(p.GameAddr(l.Bad)):
		state.State = StateOriginal
	case uint64(p.GameAddr(l.Good)):
		state.State = StatePatched
	}
	return state, nil
}

// ApplyLiteral overwrites the known-bad value with the known-good one.
// A site already holding the good value, or any third value, is left alone.
func (p *Patcher) ApplyLiteral(l Literal) (Outcome, error) {
	if p.applied[l.Name] {
		return AlreadyApplied, nil
	}

	state, err := p.InspectLiteral(l)
	if err != nil {
		return Skipped, err
	}

	switch state.State {
	case StatePatched:
		p.logger.Info("literal already correct", "site", l.Name)
		p.markApplied(l.Name)
		return AlreadyApplied, nil
	case StateUnknown:
		p.logger.Warn("literal holds unrecognized value, not patching",
			"site", l.Name,
			"value", fmt.Sprintf("0x%X", state.Value),
			"bad", fmt.Sprintf("0x%X", p.GameAddr(l.Bad)))
		return Skipped, nil
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(p.GameAddr(l.Good)))
	if err := p.Write(l.Name, p.Addr(l.Offset), buf[:]); err != nil {
		return Skipped, err
	}
	return Applied, nil
}
