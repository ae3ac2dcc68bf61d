package memory

import (
	"debug/pe"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrReadOnly is returned when writing to a space that cannot be modified.
var ErrReadOnly = errors.New("只读地址空间")

// Image is a read-only Space over a PE file on disk, laid out as the loader
// would map it at its preferred image base.
type Image struct {
	path        string
	file        *os.File
	peFile      *pe.File
	imageBase   uint64
	sizeOfImage uint32
	headersSize uint32
}

// OpenImage opens a PE file for address-based reading.
func OpenImage(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}

	peFile, err := pe.NewFile(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("解析PE文件失败: %w", err)
	}

	img := &Image{path: path, file: file, peFile: peFile}
	switch oh := peFile.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		img.imageBase = oh.ImageBase
		img.sizeOfImage = oh.SizeOfImage
		img.headersSize = oh.SizeOfHeaders
	case *pe.OptionalHeader32:
		img.imageBase = uint64(oh.ImageBase)
		img.sizeOfImage = oh.SizeOfImage
		img.headersSize = oh.SizeOfHeaders
	default:
		_ = peFile.Close()
		_ = file.Close()
		return nil, fmt.Errorf("缺少可选头: %s", path)
	}

	return img, nil
}

// Close releases the underlying file.
func (img *Image) Close() error {
	_ = img.peFile.Close()
	return img.file.Close()
}

// Module describes the image as if it were loaded at its preferred base.
func (img *Image) Module() Module {
	return Module{
		Name: filepath.Base(img.path),
		Base: uintptr(img.imageBase),
		Size: img.sizeOfImage,
	}
}

// Modules lets an Image stand in as the only module of a process.
func (img *Image) Modules() ([]Module, error) {
	return []Module{img.Module()}, nil
}

// ReadAt reads len(p) bytes at the virtual address addr.
// Bytes past a section's raw data but inside its virtual size read as zero.
func (img *Image) ReadAt(p []byte, addr uintptr) error {
	if uint64(addr) < img.imageBase {
		return fmt.Errorf("地址 0x%X 低于镜像基址", addr)
	}
	rva := uint32(uint64(addr) - img.imageBase)

	for i := range p {
		b, err := img.byteAt(rva + uint32(i))
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// WriteAt always fails: images are inspected, never modified.
func (img *Image) WriteAt(p []byte, addr uintptr) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, img.path)
}

// byteAt converts an RVA to a file offset and reads one byte.
func (img *Image) byteAt(rva uint32) (byte, error) {
	var buf [1]byte

	if rva < img.headersSize {
		if _, err := img.file.ReadAt(buf[:], int64(rva)); err != nil {
			return 0, fmt.Errorf("读取RVA 0x%X 失败: %w", rva, err)
		}
		return buf[0], nil
	}

	for _, section := range img.peFile.Sections {
		if rva < section.VirtualAddress || rva >= section.VirtualAddress+section.VirtualSize {
			continue
		}
		delta := rva - section.VirtualAddress
		if delta >= section.Size {
			return 0, nil
		}
		if _, err := img.file.ReadAt(buf[:], int64(section.Offset+delta)); err != nil {
			return 0, fmt.Errorf("读取RVA 0x%X 失败: %w", rva, err)
		}
		return buf[0], nil
	}

	return 0, fmt.Errorf("RVA 0x%X 不在任何节区内", rva)
}
