package diff

import (
	"math/rand"
	"strings"
	"testing"
	"time"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		original string
		revised  string
	}{
		{name: "identical", original: "Fees are payable monthly.", revised: "Fees are payable monthly."},
		{name: "both empty", original: "", revised: ""},
		{name: "insert into empty", original: "", revised: "New clause."},
		{name: "delete everything", original: "Old clause.", revised: ""},
		{name: "word swap", original: "The Supplier shall indemnify.", revised: "The Customer shall indemnify."},
		{name: "indemnity rewrite", original: "A and B shall indemnify each other.", revised: "A shall indemnify B."},
		{name: "unicode", original: "Zahlung binnen 30 Tagen – netto.", revised: "Zahlung binnen 45 Tagen – brutto."},
		{name: "appended sentence", original: "Liability is unlimited.", revised: "Liability is unlimited. Except for gross negligence."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segments := Compute(tc.original, tc.revised)
			if got := Apply(segments); got != tc.revised {
				t.Fatalf("Apply() = %q, want %q", got, tc.revised)
			}
			if got := Unapply(segments); got != tc.original {
				t.Fatalf("Unapply() = %q, want %q", got, tc.original)
			}
			for i, s := range segments {
				if s.Text == "" {
					t.Fatalf("segment %d is empty", i)
				}
				if i > 0 && segments[i-1].Kind == s.Kind {
					t.Fatalf("segments %d and %d share kind %q and were not merged", i-1, i, s.Kind)
				}
			}
		})
	}
}

func TestIndemnityRewriteHasDeletesAndInserts(t *testing.T) {
	segments := Compute("A and B shall indemnify each other.", "A shall indemnify B.")
	var deletes, inserts, equals int
	for _, s := range segments {
		switch s.Kind {
		case Delete:
			deletes++
		case Insert:
			inserts++
		case Equal:
			equals++
		}
	}
	if deletes == 0 || inserts == 0 || equals == 0 {
		t.Fatalf("expected a mix of delete/insert/equal segments, got %+v", segments)
	}
	if !HasChanges(segments) {
		t.Fatal("expected HasChanges to be true")
	}
}

func TestSemanticCleanupAvoidsSingleLetterNoise(t *testing.T) {
	segments := Compute("The fee is payable monthly.", "The fee is payable quarterly.")
	for _, s := range segments {
		if s.Kind != Equal && len(strings.TrimSpace(s.Text)) == 1 {
			t.Fatalf("expected word-level segments, got single character %q in %+v", s.Text, segments)
		}
	}
}

func TestIdenticalTextIsSingleEqualSegment(t *testing.T) {
	segments := Compute("unchanged", "unchanged")
	if len(segments) != 1 || segments[0].Kind != Equal {
		t.Fatalf("expected one equal segment, got %+v", segments)
	}
	if HasChanges(segments) {
		t.Fatal("expected no changes")
	}
}

func TestTimeoutFallsBackToValidDiff(t *testing.T) {
	var a, b strings.Builder
	for i := 0; i < 4000; i++ {
		a.WriteString("alpha beta gamma ")
		if i%7 == 0 {
			b.WriteString("delta ")
		}
		b.WriteString("beta alpha gamma ")
	}
	original, revised := a.String(), b.String()

	segments := ComputeWithTimeout(original, revised, time.Nanosecond)
	if Apply(segments) != revised {
		t.Fatal("timed-out diff does not reproduce the revised text")
	}
	if Unapply(segments) != original {
		t.Fatal("timed-out diff does not reproduce the original text")
	}
}

// clauseRunes mixes ASCII, accented Latin, CJK and a 4-byte rune so the
// character diff crosses multi-byte boundaries.
var clauseRunes = []rune("abcde fghij,.;–äöüßé漢字契約😀\n")

func randomText(r *rand.Rand, maxLen int) string {
	n := r.Intn(maxLen + 1)
	out := make([]rune, n)
	for i := range out {
		out[i] = clauseRunes[r.Intn(len(clauseRunes))]
	}
	return string(out)
}

// mutate edits a copy of text with a few random inserts, deletes and
// replacements so the pair shares most of its content.
func mutate(r *rand.Rand, text string) string {
	runes := []rune(text)
	for edits := r.Intn(4); edits >= 0; edits-- {
		pos := 0
		if len(runes) > 0 {
			pos = r.Intn(len(runes) + 1)
		}
		switch r.Intn(3) {
		case 0:
			ins := []rune(randomText(r, 6))
			runes = append(runes[:pos], append(ins, runes[pos:]...)...)
		case 1:
			if pos < len(runes) {
				end := pos + r.Intn(len(runes)-pos) + 1
				runes = append(runes[:pos], runes[end:]...)
			}
		default:
			if pos < len(runes) {
				runes[pos] = clauseRunes[r.Intn(len(clauseRunes))]
			}
		}
	}
	return string(runes)
}

func TestRoundTripRandomPairs(t *testing.T) {
	r := rand.New(rand.NewSource(20240314))
	for i := 0; i < 3000; i++ {
		original := randomText(r, 40)
		revised := mutate(r, original)
		if i%5 == 0 {
			revised = randomText(r, 40)
		}

		segments := ComputeWithTimeout(original, revised, 0)
		if got := Apply(segments); got != revised {
			t.Fatalf("pair %d: Apply() = %q, want %q (original %q)", i, got, revised, original)
		}
		if got := Unapply(segments); got != original {
			t.Fatalf("pair %d: Unapply() = %q, want %q (revised %q)", i, got, original, revised)
		}
		for j, s := range segments {
			if s.Text == "" {
				t.Fatalf("pair %d: segment %d is empty", i, j)
			}
			if j > 0 && segments[j-1].Kind == s.Kind {
				t.Fatalf("pair %d: segments %d and %d share kind %q", i, j-1, j, s.Kind)
			}
		}
	}
}

func TestInvalidUTF8KeepsRoundTrip(t *testing.T) {
	original, revised := "abc\xff def", "abc def"
	segments := Compute(original, revised)
	if got := Unapply(segments); got != original {
		t.Fatalf("Unapply() = %q, want %q", got, original)
	}
	if got := Apply(segments); got != revised {
		t.Fatalf("Apply() = %q, want %q", got, revised)
	}
	if len(segments) != 2 || segments[0].Kind != Delete || segments[1].Kind != Insert {
		t.Fatalf("expected whole replacement, got %+v", segments)
	}
}
