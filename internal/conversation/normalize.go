package conversation

import "strings"

// MergeAdjacentRoles folds consecutive blocks with the same role into one,
// keeping part order.
func MergeAdjacentRoles(blocks Transcript) Transcript {
	out := make(Transcript, 0, len(blocks))
	for _, block := range blocks {
		if n := len(out); n > 0 && out[n-1].Role == block.Role {
			out[n-1].Parts = append(out[n-1].Parts, block.Parts...)
			continue
		}
		out = append(out, Block{Role: block.Role, Parts: append([]Part(nil), block.Parts...)})
	}
	return out
}

// RetainLastAttachment strips every image and document part except those of
// the chronologically latest attachment. The kept parts move to the end of
// their own block, in their original relative order. Pages of one document
// share a group; only the contiguous run of pages ending at the latest part
// is kept, so an earlier reference to the same document is dropped.
func RetainLastAttachment(blocks Transcript) Transcript {
	lastBlock, lastPart := -1, -1
	for bi, block := range blocks {
		for pi, part := range block.Parts {
			if part.IsAttachment() {
				lastBlock, lastPart = bi, pi
			}
		}
	}
	if lastBlock < 0 {
		return blocks
	}
	parts := blocks[lastBlock].Parts
	first := lastPart
	if group := parts[lastPart].Group; group != "" {
		for first > 0 && parts[first-1].IsAttachment() && parts[first-1].Group == group {
			first--
		}
	}

	out := make(Transcript, len(blocks))
	for bi, block := range blocks {
		kept := make([]Part, 0, len(block.Parts))
		var retained []Part
		for pi, part := range block.Parts {
			if !part.IsAttachment() {
				kept = append(kept, part)
				continue
			}
			if bi == lastBlock && pi >= first && pi <= lastPart {
				retained = append(retained, part)
			}
		}
		out[bi] = Block{Role: block.Role, Parts: append(kept, retained...)}
	}
	return out
}

// MergeTextRuns collapses consecutive plain text parts of a block into one,
// newline-joined. Images and document parts stay as ordering anchors.
func MergeTextRuns(block Block) Block {
	parts := make([]Part, 0, len(block.Parts))
	var run []string
	flush := func() {
		if len(run) > 0 {
			parts = append(parts, TextPart(strings.Join(run, "\n")))
			run = nil
		}
	}
	for _, part := range block.Parts {
		if part.IsPlainText() {
			run = append(run, part.Text)
			continue
		}
		flush()
		parts = append(parts, part)
	}
	flush()
	return Block{Role: block.Role, Parts: parts}
}

// Normalize applies attachment retention and text-run merging. Running it
// on its own output returns an equal transcript.
func Normalize(blocks Transcript) Transcript {
	retained := RetainLastAttachment(blocks)
	out := make(Transcript, len(retained))
	for i, block := range retained {
		out[i] = MergeTextRuns(block)
	}
	return out
}
