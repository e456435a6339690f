package textify

// DefaultMaxTokens is the chunk budget when none is configured, sized for
// embedding models with a 512 token window.
const DefaultMaxTokens = 512

// Chunker splits rendered entities into pieces that fit an embedding
// model's context window. Every piece repeats the entity header (label,
// description, aliases) so chunks embed independently of each other.
type Chunker struct {
	tok       Tokenizer
	maxTokens int
}

// NewChunker builds a chunker around a tokenizer and token budget.
func NewChunker(tok Tokenizer, maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{tok: tok, maxTokens: maxTokens}
}

// MaxTokens returns the configured chunk budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Chunk splits one rendered entity. The fast path returns the full text
// when it fits. When even the header overflows the budget, the properties
// cannot be represented at all and a single truncated chunk ships.
// Otherwise properties accumulate greedily: a property that would push the
// running chunk over the budget closes it and opens the next one, and a
// property too large to fit on its own ships truncated exactly once, so
// no property is ever dropped silently.
func (c *Chunker) Chunk(loc *Locale, label, description string, aliases []string, properties []PropertyText) []string {
	full := loc.MergeEntityText(label, description, aliases, properties)
	if c.tok.Count(full) < c.maxTokens {
		return []string{full}
	}

	header := loc.MergeEntityText(label, description, aliases, nil)
	if c.tok.Count(header) >= c.maxTokens {
		return []string{c.truncate(full)}
	}

	var chunks []string
	var accum []PropertyText
	for _, p := range properties {
		candidate := loc.MergeEntityText(label, description, aliases, withProperty(accum, p))
		if c.tok.Count(candidate) < c.maxTokens {
			accum = append(accum, p)
			continue
		}
		if len(accum) > 0 {
			chunks = append(chunks, loc.MergeEntityText(label, description, aliases, accum))
			accum = nil
		}
		solo := loc.MergeEntityText(label, description, aliases, []PropertyText{p})
		if c.tok.Count(solo) >= c.maxTokens {
			chunks = append(chunks, c.truncate(solo))
		} else {
			accum = []PropertyText{p}
		}
	}
	if len(accum) > 0 {
		tail := loc.MergeEntityText(label, description, aliases, accum)
		if c.tok.Count(tail) >= c.maxTokens {
			tail = c.truncate(tail)
		}
		chunks = append(chunks, tail)
	}
	return chunks
}

// truncate cuts text at the character boundary of its last in-budget
// token.
func (c *Chunker) truncate(text string) string {
	spans := c.tok.Spans(text)
	if len(spans) <= c.maxTokens {
		return text
	}
	return text[:spans[c.maxTokens-1].End]
}

// withProperty appends without sharing the accumulator's backing array.
func withProperty(accum []PropertyText, p PropertyText) []PropertyText {
	out := make([]PropertyText, 0, len(accum)+1)
	out = append(out, accum...)
	return append(out, p)
}
