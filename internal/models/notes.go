package models

import (
	"strings"
)

// TastingNotes is the structured tasting profile of a wine. Any subset of
// fields may be present.
type TastingNotes struct {
	Aromas  []string `json:"aromas,omitempty"`
	Flavors []string `json:"flavors,omitempty"`
	Body    string   `json:"body,omitempty"`
	Tannins string   `json:"tannins,omitempty"`
	Acidity string   `json:"acidity,omitempty"`
	Finish  string   `json:"finish,omitempty"`
}

// NoteLine is one labeled line of formatted tasting notes.
type NoteLine struct {
	Label string
	Value string
}

func (n TastingNotes) IsEmpty() bool {
	return len(n.Lines()) == 0
}

// Lines returns the non-empty fields in display order.
func (n TastingNotes) Lines() []NoteLine {
	var lines []NoteLine
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, NoteLine{Label: label, Value: value})
		}
	}
	add("Aromas", strings.Join(nonEmpty(n.Aromas), ", "))
	add("Flavors", strings.Join(nonEmpty(n.Flavors), ", "))
	add("Body", strings.TrimSpace(n.Body))
	add("Tannins", strings.TrimSpace(n.Tannins))
	add("Acidity", strings.TrimSpace(n.Acidity))
	add("Finish", strings.TrimSpace(n.Finish))
	return lines
}

// Text renders the notes in the "Key: value" interchange format used by the
// edit form. ParseTastingNotes reverses it.
func (n TastingNotes) Text() string {
	var b strings.Builder
	for i, l := range n.Lines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Label)
		b.WriteString(": ")
		b.WriteString(l.Value)
	}
	return b.String()
}

// ParseTastingNotes reads the "Key: value" format. Keys are case-insensitive,
// unknown keys and lines without a colon are ignored, and a repeated key
// replaces the earlier value. Aromas and Flavors are comma separated.
func ParseTastingNotes(s string) TastingNotes {
	var n TastingNotes
	for _, line := range strings.Split(s, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "aromas":
			n.Aromas = splitList(value)
		case "flavors", "flavours":
			n.Flavors = splitList(value)
		case "body":
			n.Body = value
		case "tannins":
			n.Tannins = value
		case "acidity":
			n.Acidity = value
		case "finish":
			n.Finish = value
		}
	}
	return n
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return nonEmpty(strings.Split(s, ","))
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
