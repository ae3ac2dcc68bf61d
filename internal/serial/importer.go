package serial

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

var (
	// ErrTruncated is returned when the record ends inside an entry.
	ErrTruncated = errors.New("插件列表记录被截断")
	// ErrNameTooLong is returned when a name does not fit the name buffer.
	ErrNameTooLong = errors.New("插件名称过长")
)

// Resolved is an entry together with the live index it was mapped to.
type Resolved struct {
	PluginRecord
	Live     uint16
	Loaded   bool
	Recorded bool // false when the slot was reserved or out of range
}

// Summary reports what an import did.
type Summary struct {
	Declared uint16
	Entries  []Resolved
}

// Unresolved counts entries whose plugin is not in the current load order.
func (s Summary) Unresolved() int {
	n := 0
	for _, e := range s.Entries {
		if !e.Loaded {
			n++
		}
	}
	return n
}

// Importer parses PLGN records into a RemapStore.
type Importer struct {
	store  *RemapStore
	lookup ModLookup
	logger *slog.Logger
}

// NewImporter creates an importer writing into store.
func NewImporter(store *RemapStore, lookup ModLookup, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, lookup: lookup, logger: logger}
}

// Import consumes one plugin list payload:
//
//	u16 count
//	count × { u8 index; [u16 lightIndex if index == 0xFE]; u16 nameLen; name[nameLen] }
//
// Entries are written as they are parsed. On error the entries already
// written stay in place and the rest of the record is left unread.
func (im *Importer) Import(r RecordReader) (Summary, error) {
	var summary Summary

	count, err := readUint16(r)
	if err != nil {
		return summary, fmt.Errorf("读取插件数量失败: %w", err)
	}
	summary.Declared = count
	im.logger.Info("loading plugin list", "count", count)

	var name [offsets.MaxNameLength]byte
	for i := 0; i < int(count); i++ {
		rec, err := readRecord(r, name[:])
		if err != nil {
			im.logger.Warn("plugin list import aborted", "entry", i, "error", err)
			return summary, fmt.Errorf("第 %d 项: %w", i, err)
		}

		entry, err := im.apply(rec)
		if err != nil {
			im.logger.Warn("plugin list import aborted", "entry", i, "error", err)
			return summary, fmt.Errorf("第 %d 项: %w", i, err)
		}
		summary.Entries = append(summary.Entries, entry)

		kind := "regular"
		if rec.Light {
			kind = "light"
		}
		im.logger.Info("plugin remapped",
			"entry", i, "kind", kind, "slot", rec.Slot(), "live", entry.Live,
			"loaded", entry.Loaded, "recorded", entry.Recorded, "name", rec.Name)
	}

	return summary, nil
}

// apply resolves rec and writes it to the matching table.
func (im *Importer) apply(rec PluginRecord) (Resolved, error) {
	live := im.lookup.LoadedModIndex(rec.Name)
	entry := Resolved{PluginRecord: rec, Loaded: live != NotLoaded}

	if rec.Light {
		entry.Live = uint16(live)
		if !entry.Loaded {
			entry.Live = LightNotLoaded
		}
		if rec.LightIndex == ReservedLightIndex || int(rec.LightIndex) >= offsets.LightCapacity {
			return entry, nil
		}
		entry.Recorded = true
		return entry, im.store.SetLight(rec.LightIndex, entry.Live)
	}

	entry.Live = uint16(live)
	if rec.Index == ReservedIndex {
		return entry, nil
	}
	entry.Recorded = true
	return entry, im.store.SetRegular(rec.Index, live)
}

// readRecord parses one entry, using name as the bounded name buffer.
func readRecord(r RecordReader, name []byte) (PluginRecord, error) {
	var rec PluginRecord

	index, err := readUint8(r)
	if err != nil {
		return rec, err
	}
	rec.Index = index

	if index == LightMarker {
		rec.Light = true
		if rec.LightIndex, err = readUint16(r); err != nil {
			return rec, err
		}
	}

	length, err := readUint16(r)
	if err != nil {
		return rec, err
	}
	// One byte stays reserved for the terminator.
	if int(length) >= len(name) {
		return rec, fmt.Errorf("%w: %d 字节 (最大 %d)", ErrNameTooLong, length, len(name)-1)
	}

	if err := readFull(r, name[:length]); err != nil {
		return rec, err
	}

	// The extender treats the name as a C string.
	raw := name[:length]
	if nul := bytes.IndexByte(raw, 0); nul >= 0 {
		raw = raw[:nul]
	}
	rec.Name = string(raw)

	return rec, nil
}

func readFull(r RecordReader, p []byte) error {
	for read := 0; read < len(p); {
		n, err := r.ReadRecordData(p[read:])
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		if n <= 0 {
			return ErrTruncated
		}
		read += n
	}
	return nil
}

func readUint8(r RecordReader) (uint8, error) {
	var b [1]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func readUint16(r RecordReader) (uint16, error) {
	var b [2]byte
	if err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
