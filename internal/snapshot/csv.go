package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// localizationEntry is one row of a localization table, serialized into the
// table's Contents property the way the engine expects it.
type localizationEntry struct {
	Key     string            `json:"key,omitempty"`
	Context string            `json:"context,omitempty"`
	Example string            `json:"examples,omitempty"`
	Source  string            `json:"source,omitempty"`
	Values  map[string]string `json:"values"`
}

// snapshotCSV reads a localization CSV into a LocalizationTable whose
// Contents property holds the JSON entry list.
func snapshotCSV(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	text, err := v.ReadString(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: malformed csv: %w", path, err)
	}

	var entries []localizationEntry
	if len(records) > 0 {
		header := records[0]
		for _, row := range records[1:] {
			entry := localizationEntry{Values: map[string]string{}}
			for i, cell := range row {
				if i >= len(header) {
					break
				}
				switch header[i] {
				case "Key":
					entry.Key = cell
				case "Context":
					entry.Context = cell
				case "Example", "Examples":
					entry.Example = cell
				case "Source":
					entry.Source = cell
				default:
					if cell != "" {
						entry.Values[header[i]] = cell
					}
				}
			}
			entries = append(entries, entry)
		}
	}

	contents, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	snap := &Snapshot{
		Name:      name,
		ClassName: "LocalizationTable",
		Properties: variant.Map{
			"Contents": variant.String(contents),
		},
		Metadata: Metadata{
			InstigatingSource: &InstigatingSource{Path: path},
			RelevantPaths:     []string{path},
			Middleware:        MiddlewareCSV,
			Context:           *ctx,
		},
	}

	meta, metaPath, err := readMeta(v, strings.TrimSuffix(path, ".csv"))
	if err != nil {
		return nil, err
	}
	if meta != nil {
		snap.Metadata.RelevantPaths = append(snap.Metadata.RelevantPaths, metaPath)
		if err := meta.applyTo(snap, metaPath); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
