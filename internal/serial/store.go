package serial

import (
	"encoding/binary"
	"fmt"

	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

// RemapStore writes the extender's regular and light remap tables in place.
// The tables live in the extender's static data; the store owns none of it.
type RemapStore struct {
	space        memory.Space
	regularMap   uintptr
	regularCount uintptr
	lightMap     uintptr
	lightCount   uintptr
}

// NewRemapStore binds the store to the tables of module.
func NewRemapStore(space memory.Space, module memory.Module, table offsets.Table) *RemapStore {
	return &RemapStore{
		space:        space,
		regularMap:   module.Addr(table.SavefileIndexMap),
		regularCount: module.Addr(table.NumSavefileMods),
		lightMap:     module.Addr(table.SavefileLightIndexMap),
		lightCount:   module.Addr(table.NumSavefileLightMods),
	}
}

// SetRegular stores index -> live and raises the regular count to index+1.
func (s *RemapStore) SetRegular(index, live uint8) error {
	if index == ReservedIndex || int(index) >= offsets.RegularCapacity {
		return fmt.Errorf("无效的插件槽位: 0x%X", index)
	}
	if err := s.space.WriteAt([]byte{live}, s.regularMap+uintptr(index)); err != nil {
		return fmt.Errorf("写入插件映射失败: %w", err)
	}

	count, err := memory.ReadUint8(s.space, s.regularCount)
	if err != nil {
		return fmt.Errorf("读取插件数量失败: %w", err)
	}
	if count <= index {
		if err := s.space.WriteAt([]byte{index + 1}, s.regularCount); err != nil {
			return fmt.Errorf("写入插件数量失败: %w", err)
		}
	}
	return nil
}

// SetLight stores index -> live and raises the light count to index+1.
func (s *RemapStore) SetLight(index, live uint16) error {
	if index == ReservedLightIndex || int(index) >= offsets.LightCapacity {
		return fmt.Errorf("无效的轻量插件槽位: 0x%X", index)
	}
	if err := s.space.WriteAt(le16(live), s.lightMap+2*uintptr(index)); err != nil {
		return fmt.Errorf("写入轻量插件映射失败: %w", err)
	}

	count, err := memory.ReadUint16(s.space, s.lightCount)
	if err != nil {
		return fmt.Errorf("读取轻量插件数量失败: %w", err)
	}
	if count <= index {
		if err := s.space.WriteAt(le16(index+1), s.lightCount); err != nil {
			return fmt.Errorf("写入轻量插件数量失败: %w", err)
		}
	}
	return nil
}

// Snapshot is a copy of both tables up to their counts.
type Snapshot struct {
	Regular []uint8
	Light   []uint16
}

// Snapshot reads both tables.
func (s *RemapStore) Snapshot() (Snapshot, error) {
	var snap Snapshot

	count, err := memory.ReadUint8(s.space, s.regularCount)
	if err != nil {
		return snap, fmt.Errorf("读取插件数量失败: %w", err)
	}
	snap.Regular = make([]uint8, count)
	if err := s.space.ReadAt(snap.Regular, s.regularMap); err != nil {
		return snap, fmt.Errorf("读取插件映射失败: %w", err)
	}

	lightCount, err := memory.ReadUint16(s.space, s.lightCount)
	if err != nil {
		return snap, fmt.Errorf("读取轻量插件数量失败: %w", err)
	}
	if int(lightCount) > offsets.LightCapacity {
		return snap, fmt.Errorf("轻量插件数量异常: %d", lightCount)
	}
	raw := make([]byte, 2*int(lightCount))
	if err := s.space.ReadAt(raw, s.lightMap); err != nil {
		return snap, fmt.Errorf("读取轻量插件映射失败: %w", err)
	}
	snap.Light = make([]uint16, lightCount)
	for i := range snap.Light {
		snap.Light[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}

	return snap, nil
}

func le16(v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return b[:]
}
