//go:build windows && cgo

// Package main builds the F4SE plugin DLL:
//
//	go build -buildmode=c-shared -o vrshim.dll ./cmd/vrshim-plugin
package main

/*
#include <stdbool.h>
#include <stdint.h>

typedef struct {
	uint32_t    infoVersion;
	const char* name;
	uint32_t    version;
} PluginInfo;

typedef struct {
	uint32_t f4seVersion;
	uint32_t runtimeVersion;
	uint32_t editorVersion;
	uint32_t isEditor;
} F4SEInterface;
*/
import "C"

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ZacharyZcR/VRShim/internal/config"
	"github.com/ZacharyZcR/VRShim/internal/f4se"
	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/serial"
	"github.com/ZacharyZcR/VRShim/internal/shim"
)

const (
	pluginInfoVersion = 1
	pluginVersion     = 1
	// runtimeVR1272 is Fallout 4 VR 1.2.72 as encoded by the extender.
	runtimeVR1272 = 0x01020480
)

var (
	pluginName = C.CString("VRShim")
	pluginDir  = filepath.Join("Data", "F4SE", "Plugins")

	// callback stays reachable for the life of the process.
	callback *f4se.DispatchCallback
)

//export F4SEPlugin_Query
func F4SEPlugin_Query(f4seIntfc *C.F4SEInterface, info *C.PluginInfo) C.bool {
	info.infoVersion = pluginInfoVersion
	info.name = pluginName
	info.version = pluginVersion

	if f4seIntfc.isEditor != 0 {
		return false
	}
	return uint32(f4seIntfc.runtimeVersion) == runtimeVR1272
}

//export F4SEPlugin_Load
func F4SEPlugin_Load(f4seIntfc *C.F4SEInterface) C.bool {
	load()
	// Failures are logged; the host keeps running without the shim.
	return true
}

func load() {
	cfg, cfgErr := config.Load(filepath.Join(pluginDir, config.FileName))
	if cfgErr != nil {
		cfg = config.Default()
	}

	logger, closeLog := openLog(cfg)
	defer closeLog()
	if cfgErr != nil {
		logger.Warn("config not loaded, using defaults", slog.Any("error", cfgErr))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("initialization panicked", slog.Any("panic", r))
		}
	}()

	proc := memory.CurrentProcess()
	mods, err := proc.Modules()
	if err != nil {
		logger.Error("module enumeration failed", slog.Any("error", err))
		return
	}
	game, _ := memory.Find(mods, cfg.GameModule)
	extender, _ := memory.Find(mods, cfg.TargetModule)

	var lookup serial.ModLookup
	var target uintptr
	if l, err := f4se.NewDataHandlerLookup(proc, game, extender, cfg.Offsets); err != nil {
		logger.Warn("plugin list hook disabled", slog.Any("error", err))
	} else {
		lookup = l
		callback = f4se.NewDispatchCallback(proc, cfg.Offsets.ReadRecordDataSlot, logger)
		target = callback.Pointer()
	}

	res := shim.Init(proc, cfg, target, logger)
	if res.Err != nil || callback == nil {
		return
	}

	d, err := shim.NewDispatcher(res, proc, lookup, logger)
	if err != nil {
		logger.Error("dispatcher not created", slog.Any("error", err))
		return
	}
	callback.Bind(d)
}

// openLog writes to cfg.LogFile next to the plugin. The returned function
// syncs the file; the handle itself stays open for callbacks during loads.
func openLog(cfg config.Config) (*slog.Logger, func()) {
	path := cfg.LogFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(pluginDir, path)
	}

	var out io.Writer = io.Discard
	sync := func() {}
	if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
		out = f
		sync = func() { _ = f.Sync() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger, sync
}

func main() {}
