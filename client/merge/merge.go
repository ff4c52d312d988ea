// Package merge implements the incremental content merging used to coalesce
// streamed message fragments into accumulated message state.
//
// The functions here are pure and fail-soft: a malformed fragment must never
// crash the client mid-stream, so incompatible inputs are logged and the
// existing value is returned unchanged.
package merge

import (
	"log/slog"
)

// MergeContent merges an incoming content fragment into existing content.
//
// Content is either a plain string or a []any of structured blocks
// (map[string]any). Rules:
//   - string + string: concatenation.
//   - string + block list (either order): the string is wrapped as a single
//     text block, then merged as block lists.
//   - block list + block list: incoming blocks are folded into the existing
//     list; blocks carrying a matching integer "index" are deep merged into
//     the block at that index, everything else is appended.
//
// Either side being nil yields the other side. Any other combination is
// logged and the existing value is returned unchanged.
func MergeContent(existing, incoming any) any {
	if incoming == nil {
		return existing
	}
	if existing == nil {
		return incoming
	}

	existingStr, existingIsStr := existing.(string)
	incomingStr, incomingIsStr := incoming.(string)
	if existingIsStr && incomingIsStr {
		return existingStr + incomingStr
	}

	existingBlocks, existingIsBlocks := existing.([]any)
	incomingBlocks, incomingIsBlocks := incoming.([]any)

	switch {
	case existingIsStr && incomingIsBlocks:
		return mergeBlockLists([]any{textBlock(existingStr)}, incomingBlocks)
	case existingIsBlocks && incomingIsStr:
		return mergeBlockLists(existingBlocks, []any{textBlock(incomingStr)})
	case existingIsBlocks && incomingIsBlocks:
		return mergeBlockLists(existingBlocks, incomingBlocks)
	default:
		slog.Default().Error("Cannot merge incompatible content types",
			"existing_type", typeName(existing),
			"incoming_type", typeName(incoming),
		)
		return existing
	}
}

// mergeBlockLists folds incoming into a copy of existing.
func mergeBlockLists(existing, incoming []any) []any {
	merged := make([]any, len(existing))
	copy(merged, existing)

	for _, item := range incoming {
		switch block := item.(type) {
		case nil:
			// Skip null fragments.
		case []any:
			// Nested lists are spread into the result.
			merged = append(merged, block...)
		case map[string]any:
			index, ok := blockIndex(block)
			if !ok {
				merged = append(merged, block)
				continue
			}
			at := findBlockByIndex(merged, index)
			if at < 0 {
				merged = append(merged, block)
				continue
			}
			base, ok := merged[at].(map[string]any)
			if !ok {
				merged = append(merged, block)
				continue
			}
			merged[at] = mergeIndexedBlock(base, block)
		default:
			// Scalars are appended as-is.
			merged = append(merged, block)
		}
	}

	return merged
}

// mergeIndexedBlock deep-merges an incoming fragment into the block sharing
// its index. "index" is positional identity, not payload, so it is excluded
// from the merge input; "type" is replaced wholesale rather than merged
// (incoming type wins, matching the mismatched-type rule of DeepMerge).
func mergeIndexedBlock(base, incoming map[string]any) map[string]any {
	payload := make(map[string]any, len(incoming))
	for k, v := range incoming {
		if k == "index" || k == "type" {
			continue
		}
		payload[k] = v
	}

	out := DeepMerge(base, payload)
	if t, ok := incoming["type"]; ok && t != nil {
		out["type"] = t
	}
	return out
}

// DeepMerge merges b into a without mutating either input. For every key in
// b whose value is non-nil:
//   - absent in a: taken from b.
//   - both strings: concatenated.
//   - both numbers: added.
//   - both slices: concatenated.
//   - both maps: merged recursively.
//   - otherwise (type mismatch included): b's value wins.
//
// Keys only in a are preserved. Unmodified subtrees may be shared by
// reference between the inputs and the result.
func DeepMerge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}

	for k, bv := range b {
		if bv == nil {
			continue
		}
		av, ok := out[k]
		if !ok || av == nil {
			out[k] = bv
			continue
		}
		out[k] = mergeValues(av, bv)
	}

	return out
}

func mergeValues(av, bv any) any {
	switch x := av.(type) {
	case string:
		if y, ok := bv.(string); ok {
			return x + y
		}
	case map[string]any:
		if y, ok := bv.(map[string]any); ok {
			return DeepMerge(x, y)
		}
	case []any:
		if y, ok := bv.([]any); ok {
			combined := make([]any, 0, len(x)+len(y))
			combined = append(combined, x...)
			combined = append(combined, y...)
			return combined
		}
	}

	if an, aok := asNumber(av); aok {
		if bn, bok := asNumber(bv); bok {
			return addNumbers(av, bv, an, bn)
		}
	}

	// Type mismatch or unmergeable type: b wins.
	return bv
}

func textBlock(text string) map[string]any {
	return map[string]any{"type": "text", "text": text}
}

// blockIndex extracts an integer index from a block. JSON decoding yields
// float64, so integral floats are accepted alongside native ints.
func blockIndex(block map[string]any) (int, bool) {
	v, ok := block["index"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func findBlockByIndex(blocks []any, index int) int {
	for i, item := range blocks {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if got, ok := blockIndex(block); ok && got == index {
			return i
		}
	}
	return -1
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// addNumbers preserves integer arithmetic when both operands are integers.
func addNumbers(av, bv any, an, bn float64) any {
	if isInt(av) && isInt(bv) {
		return int64(an) + int64(bn)
	}
	return an + bn
}

func isInt(v any) bool {
	switch v.(type) {
	case int, int32, int64:
		return true
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	case nil:
		return "nil"
	default:
		return "other"
	}
}
