// Package report renders cache and build state for the terminal and for
// machine-readable export.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Export formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// Formats lists the supported export formats
var Formats = []string{FormatJSON, FormatYAML, FormatTOML}

// ErrUnknownFormat is returned by Encode for an unsupported format
var ErrUnknownFormat = errors.New("unknown output format")

// Encode writes v to w in the given format
func Encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()

	case FormatTOML:
		enc := toml.NewEncoder(w)
		enc.SetIndentTables(true)
		return enc.Encode(v)

	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
	}
}
