package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// buildLines is the final pass: one LineFact per physical line with its
// owning implementation, block-nesting depth, and distinct-variable count.
func (w *walker) buildLines(root *sitter.Node) {
	lines := strings.Split(string(w.src), "\n")
	w.facts.LineCount = len(lines)

	// Owner per line: the narrowest enclosing implementation. The arena is
	// in pre-order, so a nested implementation visited later simply
	// overwrites its parent's claim on the lines it covers.
	owner := make([]int, len(lines)+1)
	for i := range owner {
		owner[i] = -1
	}
	for idx := range w.facts.Implementations {
		impl := &w.facts.Implementations[idx]
		for l := impl.StartLine; l <= impl.EndLine && l < len(owner); l++ {
			owner[l] = idx
		}
	}

	depth := make([]int, len(lines)+1)
	w.walkDepth(root, -1, 0, owner, depth)

	varCount := make(map[int]int)
	seen := make(map[usageKey]bool)
	for _, u := range w.facts.LineUsages {
		k := usageKey{line: u.LineNo, varKey: u.VariableKey}
		if !seen[k] {
			seen[k] = true
			varCount[u.LineNo]++
		}
	}

	for i, text := range lines {
		lineNo := i + 1
		implKey := ""
		if idx := owner[lineNo]; idx >= 0 {
			implKey = w.facts.Implementations[idx].Key
		}
		w.facts.Lines = append(w.facts.Lines, LineFact{
			LineNo:   lineNo,
			ImplKey:  implKey,
			Text:     strings.TrimSuffix(text, "\r"),
			Depth:    depth[lineNo],
			VarCount: varCount[lineNo],
		})
	}
}

// walkDepth records, per line, the maximum block-nesting depth reached by
// any construct on that line. Depth counts block boundaries inside the
// owning implementation's own body (the body block itself is depth one);
// entering a nested implementation resets the counter, so inner blocks
// never leak into the outer owner's statistics.
func (w *walker) walkDepth(n *sitter.Node, impl, depth int, owner, lineDepth []int) {
	if idx, ok := w.implNodes[span(n)]; ok {
		impl = idx
		depth = 0
	}

	if n.Type() == "block" && impl >= 0 {
		depth++
		start, end := line1(n), int(n.EndPoint().Row)+1
		for l := start; l <= end && l < len(lineDepth); l++ {
			if owner[l] == impl && depth > lineDepth[l] {
				lineDepth[l] = depth
			}
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walkDepth(n.NamedChild(i), impl, depth, owner, lineDepth)
	}
}
