package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Herons  Glen!!", "HERONS GLEN"},
		{"  somerville\t- phase 2 ", "SOMERVILLE PHASE 2"},
		{"ﬁeld office", "FIELD OFFICE"},
		{"", ""},
		{"!!!", ""},
		{"job_name #12", "JOB_NAME 12"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Normalize(got), "normalize must be idempotent")
		})
	}
}

func TestNormalizeCaseInsensitive(t *testing.T) {
	assert.Equal(t, Normalize("herons glen"), Normalize("HERONS GLEN"))
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 3, EditDistance("kitten", "sitting"))
	assert.Equal(t, 0, EditDistance("same", "same"))
	assert.Equal(t, 4, EditDistance("", "abcd"))
	assert.Equal(t, 4, EditDistance("abcd", ""))
	assert.Equal(t, 1, EditDistance("café", "cafe"))

	words := []string{"HERONSGLEN", "HERONSGELN", "SOMERVILLE", "SERVICE", "", "S"}
	for _, a := range words {
		for _, b := range words {
			dab := EditDistance(a, b)
			assert.Equal(t, dab, EditDistance(b, a), "symmetric for %q/%q", a, b)
			assert.GreaterOrEqual(t, dab, 0)
			assert.Equal(t, a == b, dab == 0, "zero iff equal for %q/%q", a, b)
			for _, c := range words {
				assert.LessOrEqual(t, EditDistance(a, c), dab+EditDistance(b, c),
					"triangle inequality for %q %q %q", a, b, c)
			}
		}
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 0.98, Similarity("HERONSGLEN", "HERONS GLEN"))
	assert.Equal(t, 1.0, Similarity("Herons Glen", "HERONS GLEN!"))
	assert.Equal(t, 0.0, Similarity("", "HERONS GLEN"))
	assert.Equal(t, 0.0, Similarity("---", "HERONS GLEN"))
	assert.InDelta(t, 0.8, Similarity("HERONSGELN", "HERONS GLEN"), 1e-9)

	pairs := [][2]string{
		{"Somerville", "Sommerville"},
		{"Service", "Servise"},
		{"ABC", "XYZW"},
		{"a", "completely different"},
	}
	for _, p := range pairs {
		s := Similarity(p[0], p[1])
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Equal(t, s, Similarity(p[1], p[0]))
		assert.Equal(t, 1.0, Similarity(p[0], p[0]))
	}
}

func TestFindNameInText(t *testing.T) {
	t.Run("exact normalized substring", func(t *testing.T) {
		m := FindNameInText("Ship to: Herons Glen, lot 4", "herons glen", 0.75)
		assert.True(t, m.Found)
		assert.Equal(t, 1.0, m.Score)
		assert.Equal(t, 9, m.Position)
	})

	t.Run("missing space", func(t *testing.T) {
		m := FindNameInText("JOB HERONSGLEN 1012", "Herons Glen", 0.75)
		assert.True(t, m.Found)
		assert.GreaterOrEqual(t, m.Score, 0.95)
	})

	t.Run("misspelled window", func(t *testing.T) {
		m := FindNameInText("Job: HERONS GELN phase 2", "Herons Glen", 0.75)
		assert.True(t, m.Found)
		assert.InDelta(t, 0.8, m.Score, 1e-9)
		assert.Equal(t, "HERONS GELN", m.Matched)
		assert.Equal(t, 5, m.Position)
	})

	t.Run("below threshold", func(t *testing.T) {
		m := FindNameInText("Job: HERONS GELN phase 2", "Herons Glen", 0.9)
		assert.False(t, m.Found)
		assert.Equal(t, -1, m.Position)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.False(t, FindNameInText("", "x", 0.5).Found)
		assert.False(t, FindNameInText("text", "  ", 0.5).Found)
	})
}
