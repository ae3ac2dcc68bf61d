package patch

import (
	"debug/pe"
	"errors"
	"fmt"

	"github.com/ZacharyZcR/VRShim/internal/memory"
)

// ErrIncompatible is returned when the mapped module does not match the offset table.
var ErrIncompatible = errors.New("模块版本不兼容")

// BuildInfo describes the PE headers of the mapped module.
type BuildInfo struct {
	Machine       uint16
	TimeDateStamp uint32
	SizeOfImage   uint32
}

// ReadBuildInfo parses the PE headers of the module from memory.
func ReadBuildInfo(space memory.Space, module memory.Module) (BuildInfo, error) {
	f, err := pe.NewFile(memory.NewReaderAt(space, module.Base))
	if err != nil {
		return BuildInfo{}, fmt.Errorf("解析模块PE头失败: %w", err)
	}
	defer f.Close()

	info := BuildInfo{
		Machine:       f.Machine,
		TimeDateStamp: f.TimeDateStamp,
	}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		info.SizeOfImage = oh.SizeOfImage
	case *pe.OptionalHeader32:
		info.SizeOfImage = oh.SizeOfImage
	}
	return info, nil
}

// CheckCompatibility verifies the module is the build the offset table was
// taken from. It must succeed before any site is written. A non-zero
// timeDateStamp pins the exact link timestamp.
func (p *Patcher) CheckCompatibility(timeDateStamp uint32) (BuildInfo, error) {
	p.checked = true
	info, err := ReadBuildInfo(p.space, p.module)
	if err != nil {
		p.compat = fmt.Errorf("%w: %w", ErrIncompatible, err)
		return info, p.compat
	}

	switch {
	case info.Machine != pe.IMAGE_FILE_MACHINE_AMD64:
		p.compat = fmt.Errorf("%w: 非x64模块 (Machine 0x%X)", ErrIncompatible, info.Machine)
	case uintptr(info.SizeOfImage) < p.table.ExtenderEnd():
		p.compat = fmt.Errorf("%w: 镜像大小 0x%X 小于偏移表上界 0x%X",
			ErrIncompatible, info.SizeOfImage, p.table.ExtenderEnd())
	case timeDateStamp != 0 && info.TimeDateStamp != timeDateStamp:
		p.compat = fmt.Errorf("%w: 链接时间戳 0x%08X, 期望 0x%08X",
			ErrIncompatible, info.TimeDateStamp, timeDateStamp)
	default:
		p.compat = nil
	}

	if p.compat != nil {
		p.logger.Warn("compatibility check failed", "error", p.compat)
	} else {
		p.logger.Info("compatibility check passed",
			"timestamp", fmt.Sprintf("0x%08X", info.TimeDateStamp),
			"size", fmt.Sprintf("0x%X", info.SizeOfImage))
	}
	return info, p.compat
}

func (p *Patcher) requireCompatible() error {
	if !p.checked {
		return fmt.Errorf("%w: 尚未执行兼容性检查", ErrIncompatible)
	}
	return p.compat
}
