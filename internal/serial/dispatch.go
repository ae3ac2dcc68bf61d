package serial

import (
	"log/slog"
)

// Dispatcher handles record types the extender's load callback does not know.
type Dispatcher struct {
	importer *Importer
	logger   *slog.Logger
	last     *Summary
}

// NewDispatcher creates a dispatcher that routes plugin lists to importer.
func NewDispatcher(importer *Importer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{importer: importer, logger: logger}
}

// HandleRecord imports plugin list records. Any other type is logged and
// left unread, since its length is unknown here.
func (d *Dispatcher) HandleRecord(r RecordReader, typ RecordType) {
	if typ != PluginListType {
		d.logger.Info("unhandled chunk type in core load callback", "type", typ.String(), "raw", uint32(typ))
		return
	}

	summary, err := d.importer.Import(r)
	d.last = &summary
	if err != nil {
		d.logger.Error("plugin list import failed", "error", err, "entries", len(summary.Entries))
		return
	}
	d.logger.Info("plugin list imported", "entries", len(summary.Entries), "unresolved", summary.Unresolved())
}

// Last returns the summary of the most recent import, or nil.
func (d *Dispatcher) Last() *Summary {
	return d.last
}
