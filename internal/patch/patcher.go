// Package patch applies guarded, audited patches to a module mapped in a process.
package patch

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

var (
	// ErrAlreadyApplied is returned when a site was already written through this context.
	ErrAlreadyApplied = errors.New("补丁已应用")
	// ErrNoModule is returned when patching is attempted without a located module.
	ErrNoModule = errors.New("目标模块未定位")
	// ErrVerifyFailed is returned when read-back bytes differ from what was written.
	ErrVerifyFailed = errors.New("写入校验失败")
)

// Outcome is the result of applying a single patch site.
type Outcome int

const (
	// Applied means the site was written.
	Applied Outcome = iota
	// AlreadyApplied means the site already held the patched state.
	AlreadyApplied
	// Skipped means the guard did not match and nothing was written.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "已应用"
	case AlreadyApplied:
		return "已存在"
	case Skipped:
		return "已跳过"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// SiteState classifies the bytes currently found at a patch site.
type SiteState int

const (
	// StateOriginal means the site holds the known-bad original contents.
	StateOriginal SiteState = iota
	// StatePatched means the site already holds the patched contents.
	StatePatched
	// StateUnknown means the site holds something else and must not be touched.
	StateUnknown
)

func (s SiteState) String() string {
	switch s {
	case StateOriginal:
		return "原始"
	case StatePatched:
		return "已修补"
	default:
		return "未知"
	}
}

// Patcher is the patch context: the located target module, the base that
// game-relative addresses are computed from, and the only path to raw writes.
type Patcher struct {
	space     memory.Space
	module    memory.Module
	relocBase uintptr
	table     offsets.Table
	logger    *slog.Logger
	applied   map[string]bool
	compat    error
	checked   bool
}

// NewPatcher creates a patch context for module. relocBase is the load
// address of the game executable.
func NewPatcher(space memory.Space, module memory.Module, relocBase uintptr, table offsets.Table, logger *slog.Logger) (*Patcher, error) {
	if !module.Found() {
		return nil, ErrNoModule
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Patcher{
		space:     space,
		module:    module,
		relocBase: relocBase,
		table:     table,
		logger:    logger.With("module", module.Name),
		applied:   make(map[string]bool),
	}, nil
}

// Module returns the patched module.
func (p *Patcher) Module() memory.Module {
	return p.module
}

// Space returns the address space the patcher writes to.
func (p *Patcher) Space() memory.Space {
	return p.space
}

// Table returns the offset table in use.
func (p *Patcher) Table() offsets.Table {
	return p.table
}

// Addr returns the absolute address of an extender offset.
func (p *Patcher) Addr(offset uintptr) uintptr {
	return p.module.Addr(offset)
}

// GameAddr returns the absolute address of a game-relative offset.
func (p *Patcher) GameAddr(offset uintptr) uintptr {
	return p.relocBase + offset
}

// Write is the single audited path for raw writes. It records the bytes
// before and after the write, verifies the read-back and marks site applied.
func (p *Patcher) Write(site string, addr uintptr, data []byte) error {
	if p.applied[site] {
		return fmt.Errorf("%w: %s", ErrAlreadyApplied, site)
	}
	if err := p.requireCompatible(); err != nil {
		return err
	}

	before := make([]byte, len(data))
	if err := p.space.ReadAt(before, addr); err != nil {
		return fmt.Errorf("读取补丁点 %s 失败: %w", site, err)
	}

	if err := p.space.WriteAt(data, addr); err != nil {
		return fmt.Errorf("写入补丁点 %s 失败: %w", site, err)
	}

	after := make([]byte, len(data))
	if err := p.space.ReadAt(after, addr); err != nil {
		return fmt.Errorf("回读补丁点 %s 失败: %w", site, err)
	}

	p.logger.Info("patch written",
		"site", site,
		"addr", fmt.Sprintf("0x%X", addr),
		"len", len(data),
		"before", hex.EncodeToString(before),
		"after", hex.EncodeToString(after))

	if !bytes.Equal(after, data) {
		return fmt.Errorf("%w: %s", ErrVerifyFailed, site)
	}

	p.applied[site] = true
	return nil
}

// Applied reports whether site was written through this context.
func (p *Patcher) Applied(site string) bool {
	return p.applied[site]
}

// markApplied records a site that was found already patched.
func (p *Patcher) markApplied(site string) {
	p.applied[site] = true
}
