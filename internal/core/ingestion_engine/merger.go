package ingestion_engine

// MergeChunks coalesces adjacent undersized chunks to cut embedding-call
// overhead. A chunk is merged into the running accumulator while the
// accumulator is below minTokens and the estimate of the joined text,
// separator included, stays within maxTokens; otherwise the accumulator
// is emitted and restarted. Order is
// never changed, indices are reassigned contiguously, and merged chunks
// are tagged in metadata. Purely an optimization; retrieval is correct
// without it.
func MergeChunks(chunks []Chunk, minTokens, maxTokens int) []Chunk {
	if len(chunks) < 2 {
		return chunks
	}

	out := make([]Chunk, 0, len(chunks))
	cur := chunks[0]
	merged := false

	emit := func() {
		c := cur
		c.Index = len(out)
		if merged {
			if c.Metadata == nil {
				c.Metadata = map[string]string{}
			}
			c.Metadata["merged"] = "true"
		}
		out = append(out, c)
	}

	for _, next := range chunks[1:] {
		if cur.TokenCount < minTokens {
			joined := cur.Content + "\n\n" + next.Content
			if n := EstimateTokens(joined); n <= maxTokens {
				cur.Content = joined
				cur.TokenCount = n
				merged = true
				continue
			}
		}
		emit()
		cur = next
		merged = false
	}
	emit()
	return out
}
