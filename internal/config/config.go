// Package config loads the shim's INI configuration.
package config

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

// FileName is the configuration file the plugin looks for next to its DLL.
const FileName = "vrshim.ini"

// Sample is a commented configuration listing every key.
//
//go:embed vrshim.ini
var Sample []byte

// Config holds every tunable of the shim. Defaults reproduce the pinned build.
type Config struct {
	TargetModule          string
	GameModule            string
	FixGameDataReady      bool
	InstallPluginListHook bool
	LogLevel              slog.Level
	LogFile               string

	// TimeDateStamp pins the extender's link timestamp. Zero disables the check.
	TimeDateStamp uint32

	Offsets offsets.Table
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TargetModule:          offsets.TargetModule,
		GameModule:            offsets.GameModule,
		FixGameDataReady:      true,
		InstallPluginListHook: true,
		LogLevel:              slog.LevelInfo,
		LogFile:               "vrshim.log",
		Offsets:               offsets.Default(),
	}
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse reads INI data over the defaults.
func Parse(data []byte) (Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return Config{}, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg := Default()

	general := file.Section("General")
	cfg.TargetModule = general.Key("TargetModule").MustString(cfg.TargetModule)
	cfg.GameModule = general.Key("GameModule").MustString(cfg.GameModule)
	cfg.FixGameDataReady = general.Key("FixGameDataReady").MustBool(cfg.FixGameDataReady)
	cfg.InstallPluginListHook = general.Key("InstallPluginListHook").MustBool(cfg.InstallPluginListHook)
	cfg.LogFile = general.Key("LogFile").MustString(cfg.LogFile)

	if general.HasKey("LogLevel") {
		if err := cfg.LogLevel.UnmarshalText([]byte(general.Key("LogLevel").String())); err != nil {
			return Config{}, fmt.Errorf("配置项 General.LogLevel 无效: %w", err)
		}
	}

	compat := file.Section("Compat")
	if compat.HasKey("TimeDateStamp") {
		v, err := parseHex(compat.Key("TimeDateStamp").String(), 32)
		if err != nil {
			return Config{}, fmt.Errorf("配置项 Compat.TimeDateStamp 无效: %w", err)
		}
		cfg.TimeDateStamp = uint32(v)
	}

	section := file.Section("Offsets")
	for _, f := range offsetFields(&cfg.Offsets) {
		if !section.HasKey(f.key) {
			continue
		}
		v, err := parseHex(section.Key(f.key).String(), 64)
		if err != nil {
			return Config{}, fmt.Errorf("配置项 Offsets.%s 无效: %w", f.key, err)
		}
		*f.ptr = uintptr(v)
	}

	if section.HasKey("SwitchDefaultOriginal") {
		b, err := parseBytes(section.Key("SwitchDefaultOriginal").String())
		if err != nil {
			return Config{}, fmt.Errorf("配置项 Offsets.SwitchDefaultOriginal 无效: %w", err)
		}
		cfg.Offsets.SwitchDefaultOriginal = b
	}

	return cfg, nil
}

type offsetField struct {
	key string
	ptr *uintptr
}

func offsetFields(t *offsets.Table) []offsetField {
	return []offsetField{
		{"SavefileIndexMap", &t.SavefileIndexMap},
		{"NumSavefileMods", &t.NumSavefileMods},
		{"SavefileLightIndexMap", &t.SavefileLightIndexMap},
		{"NumSavefileLightMods", &t.NumSavefileLightMods},
		{"SwitchDefault", &t.SwitchDefault},
		{"GameDataReadyOriginal", &t.GameDataReadyOriginal},
		{"GameDataReadyBad", &t.GameDataReadyBad},
		{"GameDataReadyGood", &t.GameDataReadyGood},
		{"DataHandler", &t.DataHandler},
		{"GetLoadedModIndex", &t.GetLoadedModIndex},
		{"ReadRecordDataSlot", &t.ReadRecordDataSlot},
	}
}

// parseHex accepts "0x1A2B" or "1A2B".
func parseHex(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, bits)
}

// parseBytes accepts hex bytes with optional spaces, e.g. "4C 8D 44 24 40".
func parseBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.Join(strings.Fields(s), ""))
}
