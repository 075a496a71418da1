// ABOUTME: Startup banner and colorized status lines
// ABOUTME: printed once at boot; has no effect on logging output itself

package observability

import (
	"fmt"

	"github.com/fatih/color"
)

const banner = `
      _    _ _ _
 ___ | |__(_) | |___ ___ _ ___ _____ _ _
/ __|| / /| | / / -_|_-<'_/ -_) '_\ V /
\__| |_\_\|_|_\_\___/__/_| \___|_| \_/

`

// PrintBanner writes the startup banner and version line in cyan/gray.
func PrintBanner(version string) {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

// PrintStatusLine writes one "▶ label: value" line in green.
func PrintStatusLine(label, value string) {
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("%s: %s\n", label, value)
}
