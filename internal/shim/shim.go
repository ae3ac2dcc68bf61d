// Package shim wires module location, patching and the plugin list hook together.
package shim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZacharyZcR/VRShim/internal/config"
	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/patch"
	"github.com/ZacharyZcR/VRShim/internal/serial"
)

// ErrDisabled marks a site turned off by configuration or missing prerequisites.
var ErrDisabled = errors.New("补丁未启用")

// Env is the process the shim runs against.
type Env interface {
	memory.Space
	memory.Enumerator
}

// SiteResult is the outcome of one patch site.
type SiteResult struct {
	Name    string
	Outcome patch.Outcome
	Err     error
}

// Result summarizes initialization. Err is set when patching was not
// attempted at all; per-site failures are in Sites.
type Result struct {
	Extender memory.Module
	Game     memory.Module
	Build    patch.BuildInfo
	Err      error
	Sites    []SiteResult
	Patcher  *patch.Patcher
}

// Applied reports whether any site was written or found already patched.
func (r Result) Applied() bool {
	for _, s := range r.Sites {
		if s.Err == nil && s.Outcome != patch.Skipped {
			return true
		}
	}
	return false
}

// Init locates the extender, checks it against the offset table and applies
// the enabled patches. hookTarget is the function the dispatch hook calls;
// zero leaves the hook uninstalled. Init never panics and never returns an
// error to the host: everything is logged and reported in Result.
func Init(env Env, cfg config.Config, hookTarget uintptr, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	var res Result
	mods, err := env.Modules()
	if err != nil {
		res.Err = fmt.Errorf("枚举模块失败: %w", err)
		logger.Error("module enumeration failed, no patches applied", "error", err)
		return res
	}

	extender, ok := memory.Find(mods, cfg.TargetModule)
	if !ok {
		res.Err = fmt.Errorf("%w: %s", memory.ErrModuleNotFound, cfg.TargetModule)
		logger.Error("extender module not found, no patches applied", "module", cfg.TargetModule)
		return res
	}
	res.Extender = extender
	logger.Info("extender located", "module", extender.Name, "base", fmt.Sprintf("0x%X", extender.Base))

	game, ok := memory.Find(mods, cfg.GameModule)
	if ok {
		res.Game = game
		logger.Info("game located", "module", game.Name, "base", fmt.Sprintf("0x%X", game.Base))
	} else {
		logger.Warn("game module not found", "module", cfg.GameModule)
	}

	p, err := patch.NewPatcher(env, extender, game.Base, cfg.Offsets, logger)
	if err != nil {
		res.Err = err
		return res
	}
	res.Patcher = p

	res.Build, err = p.CheckCompatibility(cfg.TimeDateStamp)
	if err != nil {
		res.Err = err
		logger.Error("extender build does not match offset table, no patches applied", "error", err)
		return res
	}

	res.Sites = append(res.Sites, applyLiteral(p, cfg, game))
	res.Sites = append(res.Sites, installHook(p, cfg, hookTarget))

	for _, s := range res.Sites {
		if s.Err != nil && !errors.Is(s.Err, ErrDisabled) {
			logger.Error("patch failed", "site", s.Name, "error", s.Err)
		}
	}
	return res
}

func applyLiteral(p *patch.Patcher, cfg config.Config, game memory.Module) SiteResult {
	lit := p.GameDataReadyFix()
	site := SiteResult{Name: lit.Name, Outcome: patch.Skipped}

	switch {
	case !cfg.FixGameDataReady:
		site.Err = fmt.Errorf("%w: FixGameDataReady", ErrDisabled)
	case !game.Found():
		site.Err = fmt.Errorf("%w: 未定位游戏模块 %s", ErrDisabled, cfg.GameModule)
	default:
		site.Outcome, site.Err = p.ApplyLiteral(lit)
	}
	return site
}

func installHook(p *patch.Patcher, cfg config.Config, target uintptr) SiteResult {
	hook := p.DispatchHook(target)
	site := SiteResult{Name: hook.Name, Outcome: patch.Skipped}

	switch {
	case !cfg.InstallPluginListHook:
		site.Err = fmt.Errorf("%w: InstallPluginListHook", ErrDisabled)
	case target == 0:
		site.Err = fmt.Errorf("%w: 未提供钩子函数", ErrDisabled)
	case len(hook.Original) == 0:
		site.Err = fmt.Errorf("%w: %v", ErrDisabled, patch.ErrNoPattern)
	default:
		site.Outcome, site.Err = p.InstallHook(hook)
	}
	return site
}

// NewDispatcher builds the plugin list dispatcher writing into the remap
// tables of the located extender.
func NewDispatcher(res Result, space memory.Space, lookup serial.ModLookup, logger *slog.Logger) (*serial.Dispatcher, error) {
	if res.Patcher == nil {
		return nil, patch.ErrNoModule
	}
	store := serial.NewRemapStore(space, res.Extender, res.Patcher.Table())
	return serial.NewDispatcher(serial.NewImporter(store, lookup, logger), logger), nil
}
