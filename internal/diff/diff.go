// Package diff segments two versions of a text into equal, inserted and
// deleted runs for tracked-change display.
package diff

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultTimeout bounds the character-level search. When it elapses the
// best diff found so far is returned.
const DefaultTimeout = time.Second

type Kind string

const (
	Equal  Kind = "equal"
	Insert Kind = "insert"
	Delete Kind = "delete"
)

type Segment struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Compute diffs original against revised with DefaultTimeout.
func Compute(original, revised string) []Segment {
	return ComputeWithTimeout(original, revised, DefaultTimeout)
}

// ComputeWithTimeout runs a character-level diff followed by a semantic
// cleanup pass so segments fall on word boundaries. A non-positive timeout
// disables the deadline.
//
// The character diff works on runes and would turn invalid UTF-8 into
// U+FFFD, so such input is returned as one whole delete and one whole insert.
func ComputeWithTimeout(original, revised string, timeout time.Duration) []Segment {
	if original == revised {
		if original == "" {
			return []Segment{}
		}
		return []Segment{{Kind: Equal, Text: original}}
	}
	if !utf8.ValidString(original) || !utf8.ValidString(revised) {
		return replaceWhole(original, revised)
	}

	dmp := diffmatchpatch.New()
	if timeout < 0 {
		timeout = 0
	}
	dmp.DiffTimeout = timeout
	diffs := dmp.DiffMain(original, revised, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	segments := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		kind := kindOf(d.Type)
		if n := len(segments); n > 0 && segments[n-1].Kind == kind {
			segments[n-1].Text += d.Text
			continue
		}
		segments = append(segments, Segment{Kind: kind, Text: d.Text})
	}
	return segments
}

func replaceWhole(original, revised string) []Segment {
	segments := make([]Segment, 0, 2)
	if original != "" {
		segments = append(segments, Segment{Kind: Delete, Text: original})
	}
	if revised != "" {
		segments = append(segments, Segment{Kind: Insert, Text: revised})
	}
	return segments
}

func kindOf(op diffmatchpatch.Operation) Kind {
	switch op {
	case diffmatchpatch.DiffInsert:
		return Insert
	case diffmatchpatch.DiffDelete:
		return Delete
	default:
		return Equal
	}
}

// Apply rebuilds the revised text: equal and inserted runs.
func Apply(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind != Delete {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// Unapply rebuilds the original text: equal and deleted runs.
func Unapply(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if s.Kind != Insert {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// HasChanges reports whether any segment is an insert or delete.
func HasChanges(segments []Segment) bool {
	for _, s := range segments {
		if s.Kind != Equal {
			return true
		}
	}
	return false
}
