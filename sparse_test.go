package contexture

import (
	"reflect"
	"testing"
)

func TestSparseEncoderDeterministic(t *testing.T) {
	enc := NewSparseEncoder()
	text := "The warranty covers manufacturing defects for two years."

	a := enc.Encode(text)
	b := enc.Encode(text)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical input produced different vectors")
	}
	if len(a) == 0 {
		t.Fatal("expected non-empty vector")
	}
	for idx := range a {
		if idx >= enc.Dimension() {
			t.Errorf("index %d outside dimension %d", idx, enc.Dimension())
		}
	}
}

func TestSparseEncoderFiltering(t *testing.T) {
	enc := NewSparseEncoder()

	if got := enc.Encode("a an to of"); len(got) != 0 {
		t.Errorf("short tokens survived: %v", got)
	}
	if got := enc.Encode("the and with from"); len(got) != 0 {
		t.Errorf("stopwords survived: %v", got)
	}
	// Case folding: same token regardless of case.
	if !reflect.DeepEqual(enc.Encode("Warranty"), enc.Encode("warranty")) {
		t.Error("case folding not applied")
	}
}

func TestSparseEncoderTermFrequency(t *testing.T) {
	enc := NewSparseEncoder()

	once := enc.Encode("warranty")
	twice := enc.Encode("warranty warranty")
	if len(once) != 1 || len(twice) != 1 {
		t.Fatalf("expected single-entry vectors, got %d and %d", len(once), len(twice))
	}
	for idx, w1 := range once {
		w2 := twice[idx]
		if w2 <= w1 {
			t.Errorf("repeated term weight %v not greater than single %v", w2, w1)
		}
		// log(1+tf) grows sublinearly.
		if w2 >= 2*w1 {
			t.Errorf("repeated term weight %v should be sublinear in tf", w2)
		}
	}
}

func TestSparseEncoderDimensionOption(t *testing.T) {
	enc := NewSparseEncoder(WithSparseDimension(16))
	vec := enc.Encode("alpha bravo charlie delta echo foxtrot warranty coverage")
	for idx := range vec {
		if idx >= 16 {
			t.Errorf("index %d outside configured dimension 16", idx)
		}
	}
}
