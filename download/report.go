package download

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

type report struct {
	GeneratedAt time.Time     `yaml:"generated_at"`
	Files       []reportEntry `yaml:"files"`
}

type reportEntry struct {
	URL   string `yaml:"url"`
	Path  string `yaml:"path,omitempty"`
	Bytes int64  `yaml:"bytes"`
	State State  `yaml:"state"`
	Error string `yaml:"error,omitempty"`
}

// WriteReport writes the outcome of a batch to w as YAML.
func WriteReport(w io.Writer, results []Result) error {
	r := report{
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Files:       make([]reportEntry, 0, len(results)),
	}

	for _, res := range results {
		entry := reportEntry{
			URL:   res.URL,
			Path:  res.Path,
			Bytes: res.Bytes,
			State: res.State,
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		}
		r.Files = append(r.Files, entry)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return enc.Close()
}
