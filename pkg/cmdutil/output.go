package cmdutil

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const (
	FormatAuto        = "auto"
	FormatTable       = "table"
	FormatJSON        = "json"
	FormatOpenMetrics = "openmetrics"
)

// ResolveFormat turns FormatAuto into FormatTable when f is a terminal and
// FormatJSON otherwise.
func ResolveFormat(format string, f *os.File) (string, error) {
	switch format {
	case FormatAuto:
		if f != nil && term.IsTerminal(int(f.Fd())) {
			return FormatTable, nil
		}
		return FormatJSON, nil
	case FormatTable, FormatJSON, FormatOpenMetrics:
		return format, nil
	}
	return "", fmt.Errorf("unsupported output format %q", format)
}
