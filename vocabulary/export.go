package vocabulary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/richinex/fluentlens/model"
)

// Format is a serialization format for Export and Import.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format: %q", s)
	}
}

// Export writes the current configuration to w.
func (s *Store) Export(w io.Writer, format Format) error {
	snapshot := s.Snapshot()

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snapshot); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
}

// Import reads a configuration from r and replaces the current one.
func (s *Store) Import(ctx context.Context, r io.Reader, format Format) error {
	var cfg model.UserVocabularyConfig

	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil {
			return fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return fmt.Errorf("import: unknown format %q", format)
	}

	return s.Replace(ctx, cfg)
}
