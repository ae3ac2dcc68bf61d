// Package offsets holds the version-pinned offset table for the patched extender build.
package offsets

// Module names of the pinned build.
const (
	TargetModule = "f4sevr_1_2_72.dll"
	GameModule   = "Fallout4VR.exe"
)

// Table maps every datum and patch site to its offset. Extender offsets are
// relative to the extender's base, game offsets to the game executable's base.
type Table struct {
	// Extender static data.
	SavefileIndexMap      uintptr // u8[RegularCapacity]
	NumSavefileMods       uintptr // u8
	SavefileLightIndexMap uintptr // u16[LightCapacity]
	NumSavefileLightMods  uintptr // u16

	// Extender code and data patch sites.
	SwitchDefault         uintptr // default case of the core load callback switch
	GameDataReadyOriginal uintptr // stored RelocAddr of GameDataReady
	GetLoadedModIndex     uintptr // DataHandler::GetLoadedModIndex, zero when unknown

	// SwitchDefaultOriginal are the instructions expected at SwitchDefault
	// before the hook is installed. The hook replaces exactly these bytes and
	// is not installed while they are unset.
	SwitchDefaultOriginal []byte

	// Game executable addresses, relative to the game base.
	GameDataReadyBad  uintptr
	GameDataReadyGood uintptr
	DataHandler       uintptr // DataHandler* singleton slot, zero when unknown

	// F4SESerializationInterface layout.
	ReadRecordDataSlot uintptr
}

// Table capacities and buffer sizes of the pinned build.
const (
	RegularCapacity = 0x100
	LightCapacity   = 0xFFF
	MaxNameLength   = 0x104
)

// Default returns the offsets of f4sevr_1_2_72.dll running in Fallout4VR 1.2.72.
func Default() Table {
	return Table{
		SavefileIndexMap:      0xca8a0,
		NumSavefileMods:       0xc7c8a,
		SavefileLightIndexMap: 0xca9a0,
		NumSavefileLightMods:  0xc7c8c,

		SwitchDefault:         0x18e81,
		GameDataReadyOriginal: 0xca290,

		GameDataReadyBad:  0x05AB9614,
		GameDataReadyGood: 0x00820130,

		ReadRecordDataSlot: 0x50,
	}
}

// ExtenderEnd returns one past the highest extender offset the table touches.
// Every pinned offset must fall below the module's SizeOfImage.
func (t Table) ExtenderEnd() uintptr {
	ends := []uintptr{
		t.SavefileIndexMap + RegularCapacity,
		t.NumSavefileMods + 1,
		t.SavefileLightIndexMap + 2*LightCapacity,
		t.NumSavefileLightMods + 2,
		t.SwitchDefault + uintptr(max(len(t.SwitchDefaultOriginal), 1)),
		t.GameDataReadyOriginal + 8,
	}

	var end uintptr
	for _, e := range ends {
		if e > end {
			end = e
		}
	}
	return end
}
