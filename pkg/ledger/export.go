package ledger

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var csvHeader = []string{
	"id", "request_id", "time", "mode", "backend", "model", "provider",
	"status", "done_reason", "fragments", "heartbeats", "attempts", "latency_ms", "client",
}

// Export writes records to w as a JSON array or as CSV with a header row.
func Export(w io.Writer, records []*Record, format string) error {
	switch format {
	case FormatJSON:
		if records == nil {
			records = []*Record{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range records {
			if err := cw.Write([]string{
				r.ID, r.RequestID, r.Time.Format(time.RFC3339Nano), r.Mode, r.Backend, r.Model, r.Provider,
				r.Status, r.DoneReason,
				strconv.Itoa(r.Fragments), strconv.Itoa(r.Heartbeats), strconv.Itoa(r.Attempts),
				strconv.FormatInt(r.LatencyMs, 10), r.Client,
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	default:
		return fmt.Errorf("unsupported export format %q (supported: json, csv)", format)
	}
}
