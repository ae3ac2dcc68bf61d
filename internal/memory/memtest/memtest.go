// Package memtest builds small PE64 images for tests.
package memtest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
)

const (
	// HeadersSize is the raw and virtual size of the header region.
	HeadersSize = 0x200
	// TextRVA is where the single .text section is mapped.
	TextRVA = 0x1000
)

// PE64 returns a minimal PE32+ file with one .text section holding text.
// The section's virtual size is virtualSize, so bytes past len(text) map to zeros.
// timeDateStamp is stored in the COFF header.
func PE64(imageBase uint64, text []byte, virtualSize uint32, timeDateStamp uint32) []byte {
	rawSize := alignUp(uint32(len(text)), 0x200)
	sizeOfImage := alignUp(TextRVA+virtualSize, 0x1000)

	var buf bytes.Buffer

	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     1,
		TimeDateStamp:        timeDateStamp,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader64{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_DLL,
	}
	_ = binary.Write(&buf, binary.LittleEndian, fh)

	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           imageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         sizeOfImage,
		SizeOfHeaders:       HeadersSize,
		Subsystem:           pe.IMAGE_SUBSYSTEM_WINDOWS_GUI,
		NumberOfRvaAndSizes: 16,
	}
	_ = binary.Write(&buf, binary.LittleEndian, oh)

	sh := pe.SectionHeader32{
		VirtualSize:      virtualSize,
		VirtualAddress:   TextRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: HeadersSize,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_EXECUTE,
	}
	copy(sh.Name[:], ".text")
	_ = binary.Write(&buf, binary.LittleEndian, sh)

	out := make([]byte, HeadersSize+rawSize)
	copy(out, buf.Bytes())
	copy(out[HeadersSize:], text)
	return out
}

// Mapped lays out the PE64 image the way the loader would: headers at 0,
// .text at TextRVA, padded with zeros to the image size.
func Mapped(imageBase uint64, text []byte, virtualSize uint32, timeDateStamp uint32) []byte {
	file := PE64(imageBase, text, virtualSize, timeDateStamp)
	sizeOfImage := alignUp(TextRVA+virtualSize, 0x1000)

	out := make([]byte, sizeOfImage)
	copy(out, file[:HeadersSize])
	copy(out[TextRVA:], text)
	return out
}

func alignUp(value, alignment uint32) uint32 {
	return (value + alignment - 1) &^ (alignment - 1)
}
