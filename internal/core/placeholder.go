package core

import (
	"regexp"
	"strings"
)

// tokenPattern matches {{ followed by one or more non-} characters and }}.
var tokenPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ScanTokens returns every distinct raw token in the elements, in first-seen
// order. Unlike ExtractPlaceholders, "{{Name}}" and "{{ Name }}" are both
// kept because substitution must find each literal spelling.
func ScanTokens(elements []TextElement) []Placeholder {
	var out []Placeholder
	seen := make(map[string]bool)
	for _, el := range elements {
		for _, p := range scanText(el.Text) {
			if seen[p.RawToken] {
				continue
			}
			seen[p.RawToken] = true
			out = append(out, p)
		}
	}
	return out
}

// ExtractPlaceholders returns the placeholders in the elements, deduplicated
// by name in first-seen order. Zero matches yield an empty, non-nil slice.
func ExtractPlaceholders(elements []TextElement) []Placeholder {
	out := []Placeholder{}
	seen := make(map[string]bool)
	for _, p := range ScanTokens(elements) {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}

// ExtractFromText is ExtractPlaceholders for plain strings.
func ExtractFromText(texts ...string) []Placeholder {
	elements := make([]TextElement, len(texts))
	for i, t := range texts {
		elements[i] = TextElement{Text: t}
	}
	return ExtractPlaceholders(elements)
}

// HasPlaceholders reports whether any placeholder was found.
func HasPlaceholders(placeholders []Placeholder) bool {
	return len(placeholders) > 0
}

// PlaceholderNames returns the distinct placeholder names in text.
func PlaceholderNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, p := range scanText(text) {
		if !seen[p.Name] {
			seen[p.Name] = true
			names = append(names, p.Name)
		}
	}
	return names
}

func scanText(text string) []Placeholder {
	matches := tokenPattern.FindAllStringSubmatch(text, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			// "{{   }}" has nothing to map
			continue
		}
		out = append(out, Placeholder{RawToken: m[0], Name: name})
	}
	return out
}

// Render substitutes every token in text using table, which is keyed by raw
// token. Tokens missing from the table render as the empty string.
func Render(text string, table map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		if strings.TrimSpace(tok[2:len(tok)-2]) == "" {
			return tok
		}
		return table[tok]
	})
}

// Diff computes the change each text element would undergo when table is
// applied. Elements without placeholders are omitted.
func Diff(targetID string, elements []TextElement, table map[string]string) []PreviewChange {
	var changes []PreviewChange
	for _, el := range elements {
		vars := PlaceholderNames(el.Text)
		if len(vars) == 0 {
			continue
		}
		changes = append(changes, PreviewChange{
			TargetID:   targetID,
			ElementID:  el.ElementID,
			OldContent: el.Text,
			NewContent: Render(el.Text, table),
			Variables:  vars,
		})
	}
	return changes
}
