package serial

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ZacharyZcR/VRShim/internal/memory"
	"github.com/ZacharyZcR/VRShim/internal/offsets"
)

const moduleBase = 0x180000000

type mapLookup map[string]uint8

func (m mapLookup) LoadedModIndex(name string) uint8 {
	if idx, ok := m[name]; ok {
		return idx
	}
	return NotLoaded
}

// encode writes records in the PLGN payload format. count overrides the
// declared count when non-negative.
func encode(count int, records ...PluginRecord) []byte {
	var buf bytes.Buffer
	if count < 0 {
		count = len(records)
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint16(count))
	for _, r := range records {
		if r.Light {
			buf.WriteByte(LightMarker)
			_ = binary.Write(&buf, binary.LittleEndian, r.LightIndex)
		} else {
			buf.WriteByte(r.Index)
		}
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(r.Name)))
		buf.WriteString(r.Name)
	}
	return buf.Bytes()
}

func newStore(t *testing.T) (*RemapStore, *memory.Buffer) {
	t.Helper()
	buf := memory.NewBuffer(moduleBase, 0xD0000)
	mod := memory.Module{Name: offsets.TargetModule, Base: moduleBase}
	return NewRemapStore(buf, mod, offsets.Default()), buf
}

func TestImportRemapsRegularAndLight(t *testing.T) {
	store, _ := newStore(t)
	lookup := mapLookup{"A.esp": 5, "B.esp": 1, "C.esl": 7}
	payload := encode(-1,
		PluginRecord{Index: 2, Name: "A.esp"},
		PluginRecord{Index: 9, Name: "B.esp"},
		PluginRecord{Light: true, LightIndex: 40, Name: "C.esl"},
	)

	summary, err := NewImporter(store, lookup, nil).Import(NewStreamReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if summary.Declared != 3 || len(summary.Entries) != 3 {
		t.Fatalf("summary = %+v", summary)
	}

	snap, err := store.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(snap.Regular) < 10 {
		t.Fatalf("regular count = %d, want >= 10", len(snap.Regular))
	}
	if snap.Regular[2] != 5 || snap.Regular[9] != 1 {
		t.Errorf("regular[2] = %d, regular[9] = %d", snap.Regular[2], snap.Regular[9])
	}
	if len(snap.Light) < 41 {
		t.Fatalf("light count = %d, want >= 41", len(snap.Light))
	}
	if snap.Light[40] != 7 {
		t.Errorf("light[40] = %d, want 7", snap.Light[40])
	}
}

func TestImportCountsOnlyGrow(t *testing.T) {
	store, buf := newStore(t)
	table := offsets.Default()
	buf.Data[table.NumSavefileMods] = 20
	binary.LittleEndian.PutUint16(buf.Data[table.NumSavefileLightMods:], 100)

	payload := encode(-1,
		PluginRecord{Index: 3, Name: "A.esp"},
		PluginRecord{Light: true, LightIndex: 4, Name: "C.esl"},
	)
	if _, err := NewImporter(store, mapLookup{"A.esp": 0, "C.esl": 1}, nil).Import(NewStreamReader(bytes.NewReader(payload))); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if buf.Data[table.NumSavefileMods] != 20 {
		t.Errorf("regular count = %d, want 20", buf.Data[table.NumSavefileMods])
	}
	if got := binary.LittleEndian.Uint16(buf.Data[table.NumSavefileLightMods:]); got != 100 {
		t.Errorf("light count = %d, want 100", got)
	}
}

func TestImportUnresolvedUsesSentinel(t *testing.T) {
	store, _ := newStore(t)
	payload := encode(-1,
		PluginRecord{Index: 4, Name: "Missing.esp"},
		PluginRecord{Light: true, LightIndex: 2, Name: "Missing.esl"},
	)

	summary, err := NewImporter(store, mapLookup{}, nil).Import(NewStreamReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if summary.Unresolved() != 2 {
		t.Errorf("Unresolved() = %d, want 2", summary.Unresolved())
	}

	snap, _ := store.Snapshot()
	if snap.Regular[4] != NotLoaded {
		t.Errorf("regular[4] = 0x%X, want 0x%X", snap.Regular[4], NotLoaded)
	}
	if snap.Light[2] != LightNotLoaded {
		t.Errorf("light[2] = 0x%X, want 0x%X", snap.Light[2], LightNotLoaded)
	}
}

func TestImportNameLengthBoundary(t *testing.T) {
	tests := []struct {
		name    string
		length  int
		wantErr bool
	}{
		{name: "max-1", length: offsets.MaxNameLength - 1},
		{name: "max", length: offsets.MaxNameLength, wantErr: true},
		{name: "max+1", length: offsets.MaxNameLength + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, buf := newStore(t)
			long := strings.Repeat("x", tt.length)
			payload := encode(-1,
				PluginRecord{Index: 1, Name: "A.esp"},
				PluginRecord{Index: 2, Name: long},
				PluginRecord{Index: 3, Name: "B.esp"},
			)
			lookup := mapLookup{"A.esp": 10, long: 11, "B.esp": 12}

			summary, err := NewImporter(store, lookup, nil).Import(NewStreamReader(bytes.NewReader(payload)))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Import() error = %v, wantErr %v", err, tt.wantErr)
			}

			table := offsets.Default()
			regular := buf.Data[table.SavefileIndexMap:]
			if regular[1] != 10 {
				t.Errorf("entry before the long name was not kept: %d", regular[1])
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNameTooLong) {
					t.Errorf("error = %v, want ErrNameTooLong", err)
				}
				if len(summary.Entries) != 1 || regular[2] != 0 || regular[3] != 0 {
					t.Errorf("import continued past the long name: %+v", summary.Entries)
				}
				if buf.Data[table.NumSavefileMods] != 2 {
					t.Errorf("regular count = %d, want 2", buf.Data[table.NumSavefileMods])
				}
				return
			}
			if regular[2] != 11 || regular[3] != 12 {
				t.Errorf("regular[2:4] = %v", regular[2:4])
			}
		})
	}
}

func TestImportTruncated(t *testing.T) {
	full := encode(-1,
		PluginRecord{Index: 0, Name: "A.esp"},
		PluginRecord{Light: true, LightIndex: 7, Name: "C.esl"},
	)

	tests := []struct {
		name        string
		payload     []byte
		wantEntries int
	}{
		{name: "Empty", payload: nil},
		{name: "Half count", payload: full[:1]},
		{name: "Count only", payload: full[:2]},
		{name: "Inside first name", payload: full[:7]},
		{name: "Inside light index", payload: full[:11], wantEntries: 1},
		{name: "Declared more than present", payload: encode(3, PluginRecord{Index: 0, Name: "A.esp"}), wantEntries: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newStore(t)
			summary, err := NewImporter(store, mapLookup{"A.esp": 0}, nil).Import(NewStreamReader(bytes.NewReader(tt.payload)))
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("Import() error = %v, want ErrTruncated", err)
			}
			if len(summary.Entries) != tt.wantEntries {
				t.Errorf("entries = %d, want %d", len(summary.Entries), tt.wantEntries)
			}
		})
	}
}

func TestImportSkipsReservedSlots(t *testing.T) {
	store, buf := newStore(t)
	payload := encode(-1,
		PluginRecord{Index: ReservedIndex, Name: "A.esp"},
		PluginRecord{Light: true, LightIndex: ReservedLightIndex, Name: "B.esl"},
		PluginRecord{Light: true, LightIndex: offsets.LightCapacity, Name: "C.esl"},
		PluginRecord{Index: 1, Name: "D.esp"},
	)

	summary, err := NewImporter(store, mapLookup{"A.esp": 0, "B.esl": 1, "C.esl": 2, "D.esp": 3}, nil).
		Import(NewStreamReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(summary.Entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(summary.Entries))
	}
	for i, e := range summary.Entries[:3] {
		if e.Recorded {
			t.Errorf("entry %d recorded into a reserved slot", i)
		}
	}

	table := offsets.Default()
	if buf.Data[table.SavefileIndexMap+0xFF] != 0 {
		t.Error("regular slot 0xFF was written")
	}
	if buf.Data[table.NumSavefileMods] != 2 {
		t.Errorf("regular count = %d, want 2", buf.Data[table.NumSavefileMods])
	}
	if got := binary.LittleEndian.Uint16(buf.Data[table.NumSavefileLightMods:]); got != 0 {
		t.Errorf("light count = %d, want 0", got)
	}
}

func TestImportNameIsCString(t *testing.T) {
	store, _ := newStore(t)
	payload := encode(-1, PluginRecord{Index: 0, Name: "A.esp\x00garbage"})

	summary, err := NewImporter(store, mapLookup{"A.esp": 6}, nil).Import(NewStreamReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if summary.Entries[0].Name != "A.esp" || summary.Entries[0].Live != 6 {
		t.Errorf("entry = %+v", summary.Entries[0])
	}
}

func TestImportReusesNameBuffer(t *testing.T) {
	store, _ := newStore(t)
	payload := encode(-1,
		PluginRecord{Index: 0, Name: "LongerName.esp"},
		PluginRecord{Index: 1, Name: "B.esp"},
	)

	summary, err := NewImporter(store, mapLookup{"LongerName.esp": 3, "B.esp": 4}, nil).
		Import(NewStreamReader(bytes.NewReader(payload)))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(summary.Entries) != 2 {
		t.Fatalf("Import() entries = %d, want 2", len(summary.Entries))
	}
	if got := summary.Entries[1]; got.Name != "B.esp" || got.Live != 4 {
		t.Errorf("second entry = %+v", got)
	}
}

func TestDispatcher(t *testing.T) {
	payload := encode(-1, PluginRecord{Index: 2, Name: "A.esp"})

	tests := []struct {
		name         string
		typ          RecordType
		wantConsumed int64
		wantImport   bool
	}{
		{name: "Plugin list", typ: PluginListType, wantConsumed: int64(len(payload)), wantImport: true},
		{name: "Light plugin list", typ: 'L'<<24 | 'P'<<16 | 'L'<<8 | 'G', wantConsumed: 0},
		{name: "Byte-swapped tag", typ: 'N'<<24 | 'G'<<16 | 'L'<<8 | 'P', wantConsumed: 0},
		{name: "Zero", typ: 0, wantConsumed: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, buf := newStore(t)
			d := NewDispatcher(NewImporter(store, mapLookup{"A.esp": 5}, nil), nil)
			r := NewStreamReader(bytes.NewReader(payload))

			d.HandleRecord(r, tt.typ)

			if r.Consumed() != tt.wantConsumed {
				t.Errorf("consumed %d bytes, want %d", r.Consumed(), tt.wantConsumed)
			}
			imported := buf.Data[offsets.Default().SavefileIndexMap+2] == 5
			if imported != tt.wantImport {
				t.Errorf("imported = %v, want %v", imported, tt.wantImport)
			}
			if (d.Last() != nil) != tt.wantImport {
				t.Errorf("Last() = %v", d.Last())
			}
		})
	}
}

func TestRecordTypeString(t *testing.T) {
	tests := []struct {
		typ  RecordType
		want string
	}{
		{typ: PluginListType, want: "PLGN"},
		{typ: 0x504C4700, want: "504C4700"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if uint32(PluginListType) != 0x504C474E {
		t.Errorf("PluginListType = 0x%08X", uint32(PluginListType))
	}
}

func TestLoadOrder(t *testing.T) {
	order, err := ParseLoadOrder(strings.NewReader("# plugins\nFallout4.esm\n\n*DLCRobot.esm\n  *Mod.esp  \n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 {
		t.Fatalf("order = %v", order)
	}

	tests := []struct {
		name string
		want uint8
	}{
		{name: "Fallout4.esm", want: 0},
		{name: "dlcrobot.esm", want: 1},
		{name: "Mod.esp", want: 2},
		{name: "Other.esp", want: NotLoaded},
	}
	for _, tt := range tests {
		if got := order.LoadedModIndex(tt.name); got != tt.want {
			t.Errorf("LoadedModIndex(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
