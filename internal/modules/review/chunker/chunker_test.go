package chunker

import (
	"reflect"
	"strings"
	"testing"
)

func texts(chunks []Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		out = append(out, ch.Text)
	}
	return out
}

func TestSplitEmptyInputYieldsNothing(t *testing.T) {
	c := New(DefaultConfig())
	for _, in := range []string{"", "   ", "\n\n\t "} {
		if got := c.Split(in); len(got) != 0 {
			t.Fatalf("Split(%q) = %d chunks, want 0", in, len(got))
		}
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	c := New(Config{MaxRunes: 10, Overlap: 0, LookBack: 5})
	got := texts(c.Split("Hello. World is big."))
	want := []string{"Hello.", " World is ", "big."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitPrefersParagraphOverSentence(t *testing.T) {
	c := New(Config{MaxRunes: 14, Overlap: 0, LookBack: 7})
	got := c.Split("Ab cd.\n\nEf. Gh. Ij")
	if got[0].Text != "Ab cd.\n\n" {
		t.Fatalf("first chunk = %q, want paragraph cut", got[0].Text)
	}
}

func TestSplitOverlapAndOffsets(t *testing.T) {
	c := New(Config{MaxRunes: 4, Overlap: 2, LookBack: 0})
	got := c.Split("abcdefghij")
	want := []string{"abcd", "cdef", "efgh", "ghij"}
	if !reflect.DeepEqual(texts(got), want) {
		t.Fatalf("got %q, want %q", texts(got), want)
	}
	for i, ch := range got {
		if ch.Index != i {
			t.Fatalf("chunk %d has index %d", i, ch.Index)
		}
		if ch.End-ch.Start != 4 {
			t.Fatalf("chunk %d spans %d..%d", i, ch.Start, ch.End)
		}
	}
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c := New(Config{MaxRunes: 6, Overlap: 0, LookBack: 3})
	got := texts(c.Split("合同条款。违约责任。"))
	want := []string{"合同条款。", "违约责任。"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplitIsDeterministicAndRestartable(t *testing.T) {
	text := strings.Repeat("The supplier shall deliver on time. Penalties apply!\n", 80)
	c := New(Config{MaxRunes: 300, Overlap: 40, LookBack: 80})

	first := c.Split(text)
	second := c.Split(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-chunking produced a different sequence")
	}

	var partial []Chunk
	for ch := range c.Seq(text) {
		partial = append(partial, ch)
		if len(partial) == 3 {
			break
		}
	}
	if !reflect.DeepEqual(partial, first[:3]) {
		t.Fatalf("early-stopped iteration diverged from full split")
	}

	for i := 1; i < len(first); i++ {
		if first[i].Start <= first[i-1].Start {
			t.Fatalf("chunk %d does not advance: %d <= %d", i, first[i].Start, first[i-1].Start)
		}
		if first[i].Start > first[i-1].End {
			t.Fatalf("gap between chunk %d and %d", i-1, i)
		}
	}
	if last := first[len(first)-1]; last.End != len([]rune(text)) {
		t.Fatalf("last chunk ends at %d, want %d", last.End, len([]rune(text)))
	}
}

func TestNewNormalizesConfig(t *testing.T) {
	c := New(Config{MaxRunes: 0, Overlap: 5000, LookBack: -1})
	cfg := c.Config()
	if cfg.MaxRunes != DefaultConfig().MaxRunes || cfg.Overlap >= cfg.MaxRunes || cfg.LookBack != 0 {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
}
