package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetModule != offsets.TargetModule || !reflect.DeepEqual(cfg.Offsets, offsets.Default()) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if !cfg.FixGameDataReady || !cfg.InstallPluginListHook {
		t.Error("patches should be enabled by default")
	}
}

func TestLoadFile(t *testing.T) {
	data := `
[General]
FixGameDataReady = false
LogLevel = debug
LogFile = custom.log

[Compat]
TimeDateStamp = 0x5C8F1A2B

[Offsets]
SwitchDefault = 0x18E90
DataHandler = 5A86E58
GetLoadedModIndex = 0x0013BD40
SwitchDefaultOriginal = 4C 8D 44 24 40 48 8D 0D 78 56 34 12 E8 00 10 00 00
`
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.FixGameDataReady {
		t.Error("FixGameDataReady = true, want false")
	}
	if !cfg.InstallPluginListHook {
		t.Error("InstallPluginListHook should keep its default")
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFile != "custom.log" {
		t.Errorf("logging = %v %q", cfg.LogLevel, cfg.LogFile)
	}
	if cfg.TimeDateStamp != 0x5C8F1A2B {
		t.Errorf("TimeDateStamp = 0x%X", cfg.TimeDateStamp)
	}
	if cfg.Offsets.SwitchDefault != 0x18E90 {
		t.Errorf("SwitchDefault = 0x%X", cfg.Offsets.SwitchDefault)
	}
	if cfg.Offsets.DataHandler != 0x5A86E58 || cfg.Offsets.GetLoadedModIndex != 0x13BD40 {
		t.Errorf("lookup offsets = 0x%X 0x%X", cfg.Offsets.DataHandler, cfg.Offsets.GetLoadedModIndex)
	}
	want := []byte{0x4C, 0x8D, 0x44, 0x24, 0x40, 0x48, 0x8D, 0x0D, 0x78, 0x56, 0x34, 0x12, 0xE8, 0x00, 0x10, 0x00, 0x00}
	if !bytes.Equal(cfg.Offsets.SwitchDefaultOriginal, want) {
		t.Errorf("SwitchDefaultOriginal = % X", cfg.Offsets.SwitchDefaultOriginal)
	}
	if cfg.Offsets.SavefileIndexMap != offsets.Default().SavefileIndexMap {
		t.Error("unset offsets should keep their defaults")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "Bad offset", data: "[Offsets]\nSwitchDefault = 0xZZ\n"},
		{name: "Timestamp overflow", data: "[Compat]\nTimeDateStamp = 0x100000000\n"},
		{name: "Bad log level", data: "[General]\nLogLevel = loud\n"},
		{name: "Odd byte count", data: "[Offsets]\nSwitchDefaultOriginal = 4C 8D 4\n"},
		{name: "Bad byte", data: "[Offsets]\nSwitchDefaultOriginal = 4C GG\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestSampleMatchesDefaults(t *testing.T) {
	cfg, err := Parse(Sample)
	if err != nil {
		t.Fatalf("Parse(Sample) error = %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Parse(Sample) = %+v, want defaults", cfg)
	}

	// Uncommenting a default must not change it.
	for _, line := range bytes.Split(Sample, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte(";")) || !bytes.Contains(line, []byte(" = ")) {
			continue
		}
		key, value, _ := bytes.Cut(line[1:], []byte(" = "))
		if len(bytes.TrimSpace(value)) == 0 || bytes.ContainsAny(key, " ") {
			continue
		}
		section := "Offsets"
		for _, s := range []string{"General", "Compat"} {
			if bytes.Contains(sampleSection(Sample, s), line) {
				section = s
			}
		}
		data := "[" + section + "]\n" + string(line[1:]) + "\n"
		got, err := Parse([]byte(data))
		if err != nil {
			t.Errorf("Parse(%q) error = %v", data, err)
			continue
		}
		if !reflect.DeepEqual(got, Default()) {
			t.Errorf("Parse(%q) changed the defaults", data)
		}
	}
}

func sampleSection(sample []byte, name string) []byte {
	_, rest, ok := bytes.Cut(sample, []byte("["+name+"]"))
	if !ok {
		return nil
	}
	if i := bytes.Index(rest, []byte("\n[")); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
