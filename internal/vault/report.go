package vault

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// Report describes what a run did, or, for a dry run, would do.
type Report struct {
	RunID     string
	Operation string
	Phase     Phase
	DryRun    bool

	// Leaf paths acted on, sorted.
	Updated  []string
	Removed  []string
	Restored []string

	BytesUploaded   int64
	BytesDownloaded int64
	IndexSaved      bool
	Duration        time.Duration
}

func newReport(op string) *Report {
	return &Report{
		RunID:     uuid.NewString()[:8],
		Operation: op,
		Phase:     PhaseInit,
	}
}

// Changed reports whether the run touched the remote or the destination.
func (r *Report) Changed() bool {
	return len(r.Updated) > 0 || len(r.Removed) > 0 || len(r.Restored) > 0
}

func (r *Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("phase", r.Phase.String()),
		slog.Duration("took", r.Duration.Round(time.Millisecond)),
	}
	if r.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	switch r.Operation {
	case opRestore:
		attrs = append(attrs,
			slog.Int("restored", len(r.Restored)),
			slog.String("downloaded", humanize.Bytes(uint64(r.BytesDownloaded))),
		)
	default:
		attrs = append(attrs,
			slog.Int("updated", len(r.Updated)),
			slog.Int("removed", len(r.Removed)),
			slog.String("uploaded", humanize.Bytes(uint64(r.BytesUploaded))),
			slog.Bool("index_saved", r.IndexSaved),
		)
	}
	return slog.GroupValue(attrs...)
}
