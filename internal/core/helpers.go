package core

import (
	"fmt"
	"strings"
)

// trimmedOr returns s trimmed, or def when that leaves nothing.
func trimmedOr(s, def string) string {
	if t := strings.TrimSpace(s); t != "" {
		return t
	}
	return def
}

// outputTitle names the document generated for one row.
func outputTitle(base string, row int) string {
	return fmt.Sprintf("%s - row %d", trimmedOr(base, "Sync"), row)
}

// pagePrefix derives the deterministic slide id prefix for a row copied into
// a single-deck output. Slide object ids must start with a letter or
// underscore and stay under 50 characters.
func pagePrefix(jobID string, row int) string {
	short := strings.ReplaceAll(jobID, "-", "")
	if len(short) > 12 {
		short = short[:12]
	}
	return fmt.Sprintf("sg_%s_r%d_", short, row)
}
