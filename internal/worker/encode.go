package worker

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harborcare/careexport/internal/model"
)

// artifactEncoder turns pgx rows into the requested artifact encoding,
// optionally wrapped in gzip. Column names come from the row descriptions,
// so the encoder works for every source table.
type artifactEncoder struct {
	format  model.ExportFormat
	gzip    *gzip.Writer
	csv     *csv.Writer
	jsonOut io.Writer

	columns   []string
	wroteAny  bool
	headerSet bool
}

func newArtifactEncoder(out io.Writer, filters model.ExportFilters) (*artifactEncoder, error) {
	format := filters.Format
	if format == "" {
		format = model.FormatCSV
	}
	enc := &artifactEncoder{format: format}
	sink := out
	if filters.Compress {
		enc.gzip = gzip.NewWriter(out)
		sink = enc.gzip
	}
	switch format {
	case model.FormatCSV:
		enc.csv = csv.NewWriter(sink)
	case model.FormatJSON:
		enc.jsonOut = sink
		if _, err := io.WriteString(sink, "[\n"); err != nil {
			return nil, fmt.Errorf("write json prologue: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	return enc, nil
}

func (e *artifactEncoder) writeRow(rows pgx.Rows) error {
	if !e.headerSet {
		descs := rows.FieldDescriptions()
		e.columns = make([]string, len(descs))
		for i, d := range descs {
			e.columns[i] = string(d.Name)
		}
		e.headerSet = true
		if e.format == model.FormatCSV {
			if err := e.csv.Write(e.columns); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
		}
	}
	values, err := rows.Values()
	if err != nil {
		return fmt.Errorf("read row values: %w", err)
	}
	switch e.format {
	case model.FormatCSV:
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = stringifyValue(v)
		}
		if err := e.csv.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	case model.FormatJSON:
		obj := make(map[string]interface{}, len(values))
		for i, v := range values {
			obj[e.columns[i]] = jsonValue(v)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		prefix := "  "
		if e.wroteAny {
			prefix = ",\n  "
		}
		if _, err := io.WriteString(e.jsonOut, prefix+string(data)); err != nil {
			return fmt.Errorf("write json row: %w", err)
		}
	}
	e.wroteAny = true
	return nil
}

func (e *artifactEncoder) close() error {
	switch e.format {
	case model.FormatCSV:
		e.csv.Flush()
		if err := e.csv.Error(); err != nil {
			return fmt.Errorf("flush csv: %w", err)
		}
	case model.FormatJSON:
		suffix := "]\n"
		if e.wroteAny {
			suffix = "\n]\n"
		}
		if _, err := io.WriteString(e.jsonOut, suffix); err != nil {
			return fmt.Errorf("write json epilogue: %w", err)
		}
	}
	if e.gzip != nil {
		if err := e.gzip.Close(); err != nil {
			return fmt.Errorf("close gzip: %w", err)
		}
	}
	return nil
}

func (e *artifactEncoder) contentType() string {
	switch e.format {
	case model.FormatJSON:
		return "application/json"
	default:
		return "text/csv; charset=utf-8"
	}
}

func stringifyValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func jsonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		// JSONB columns arrive as raw bytes; keep them as JSON, not base64.
		return json.RawMessage(val)
	default:
		return val
	}
}
