package shim

import (
	"fmt"
	"log/slog"

	"github.com/ZacharyZcR/VRShim/internal/config"
	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/patch"
	"github.com/ZacharyZcR/VRShim/internal/serial"
)

// Status is a read-only view of every site and table.
type Status struct {
	Extender memory.Module
	Game     memory.Module
	Build    patch.BuildInfo
	Compat   error

	Literal    patch.LiteralState
	LiteralErr error

	Hook    patch.HookState
	HookErr error

	Tables    serial.Snapshot
	TablesErr error
}

// Inspect reads the state of env without writing anything. The returned
// error is set only when the extender cannot be located.
func Inspect(env Env, cfg config.Config, logger *slog.Logger) (Status, *patch.Patcher, error) {
	var st Status

	mods, err := env.Modules()
	if err != nil {
		return st, nil, fmt.Errorf("枚举模块失败: %w", err)
	}

	extender, ok := memory.Find(mods, cfg.TargetModule)
	if !ok {
		return st, nil, fmt.Errorf("%w: %s", memory.ErrModuleNotFound, cfg.TargetModule)
	}
	st.Extender = extender
	st.Game, _ = memory.Find(mods, cfg.GameModule)

	p, err := patch.NewPatcher(env, extender, st.Game.Base, cfg.Offsets, logger)
	if err != nil {
		return st, nil, err
	}

	st.Build, st.Compat = p.CheckCompatibility(cfg.TimeDateStamp)

	if st.Game.Found() {
		st.Literal, st.LiteralErr = p.InspectLiteral(p.GameDataReadyFix())
	} else {
		st.LiteralErr = fmt.Errorf("%w: %s", memory.ErrModuleNotFound, cfg.GameModule)
	}

	st.Hook, st.HookErr = p.InspectHook(p.DispatchHook(0))

	store := serial.NewRemapStore(env, extender, cfg.Offsets)
	st.Tables, st.TablesErr = store.Snapshot()

	return st, p, nil
}
