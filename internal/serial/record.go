// Package serial reads the PLGN plugin-list save record into the extender's
// mod-index remap tables.
package serial

import (
	"encoding/binary"
	"fmt"
)

// RecordType is a four-character save record tag, most significant byte first.
type RecordType uint32

// PluginListType tags the plugin list record written by current F4SE.
const PluginListType RecordType = 'P'<<24 | 'L'<<16 | 'G'<<8 | 'N'

func (t RecordType) String() string {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("%08X", uint32(t))
		}
	}
	return string(b[:])
}

// RecordReader reads the payload of the current save record sequentially.
// It returns the number of bytes read; short counts mean the record ended.
type RecordReader interface {
	ReadRecordData(p []byte) (int, error)
}

// ModLookup resolves a plugin file name to its index in the current load order.
type ModLookup interface {
	LoadedModIndex(name string) uint8
}

// Index sentinels shared with the save format and the extender.
const (
	// NotLoaded is the index a lookup yields for a plugin that is not loaded.
	NotLoaded uint8 = 0xFF
	// LightNotLoaded marks an unresolved light plugin in the light table.
	LightNotLoaded uint16 = 0xFFFF
	// LightMarker is the stored index announcing a trailing light index.
	LightMarker uint8 = 0xFE
	// ReservedIndex is never a valid regular slot.
	ReservedIndex uint8 = 0xFF
	// ReservedLightIndex is never a valid light slot.
	ReservedLightIndex uint16 = 0xFFFF
)

// PluginRecord is one parsed entry of the plugin list.
type PluginRecord struct {
	Index      uint8
	LightIndex uint16 // valid when Light is set
	Light      bool
	Name       string
}

// Slot returns the table slot the entry remaps.
func (r PluginRecord) Slot() int {
	if r.Light {
		return int(r.LightIndex)
	}
	return int(r.Index)
}
