package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocID(t *testing.T) {
	assert.Equal(t, "Q42_en_1", DocID("Q42", "en", 1))
	assert.Equal(t, "P31_zh-hans_12", DocID("P31", "zh-hans", 12))
}

func TestSplitDocID(t *testing.T) {
	qid, lang, ok := splitDocID("Q42_en_1")
	assert.True(t, ok)
	assert.Equal(t, "Q42", qid)
	assert.Equal(t, "en", lang)

	qid, lang, ok = splitDocID("P31_zh-hans_12")
	assert.True(t, ok)
	assert.Equal(t, "P31", qid)
	assert.Equal(t, "zh-hans", lang)
}

func TestSplitDocIDMalformed(t *testing.T) {
	for _, id := range []string{"", "Q42", "Q42_en", "Q42_en_1_extra"} {
		_, _, ok := splitDocID(id)
		assert.False(t, ok, "id %q should not split", id)
	}
}
