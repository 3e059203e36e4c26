package corpus

import "testing"

func TestVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -2.5, 3.14159, 1e-7}
	e := &CorpusEntry{Embedding: EncodeVector(in)}
	out, ok := e.Vector()
	if !ok {
		t.Fatalf("expected vector")
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("idx %d: got %v want %v", i, out[i], in[i])
		}
	}
}

func TestVectorMissingOrGarbage(t *testing.T) {
	if _, ok := (&CorpusEntry{}).Vector(); ok {
		t.Fatalf("empty embedding should not decode")
	}
	if _, ok := (&CorpusEntry{Embedding: []byte(`{"a":1}`)}).Vector(); ok {
		t.Fatalf("object embedding should not decode")
	}
	if _, ok := (&CorpusEntry{Embedding: []byte(`[]`)}).Vector(); ok {
		t.Fatalf("empty array should not decode")
	}
}
