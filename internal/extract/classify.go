package extract

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// classify is the reference pass: it binds identifier occurrences to
// visible variables, classifies the rest, and records invocations. It runs
// after collect so forward references see the complete variable tables.
func (w *walker) classify(n *sitter.Node, impl int) {
	if idx, ok := w.implNodes[span(n)]; ok {
		impl = idx
	}

	switch n.Type() {
	case "identifier":
		w.classifyIdentifier(n, impl)
	case "invocation_expression":
		w.recordInvocation(n, impl)
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.classify(n.NamedChild(i), impl)
	}
}

func (w *walker) classifyIdentifier(n *sitter.Node, impl int) {
	name := w.text(n)
	line := line1(n)
	col := col0(n)

	implKey := ""
	if impl >= 0 {
		implKey = w.facts.Implementations[impl].Key

		if varIdx, ok := w.lookupVariable(impl, name, line); ok {
			v := &w.facts.Variables[varIdx]
			uk := usageKey{line: line, varKey: v.Key}
			if !w.usageSeen[uk] {
				w.usageSeen[uk] = true
				w.facts.LineUsages = append(w.facts.LineUsages, LineUsageFact{
					LineNo:      line,
					VariableKey: v.Key,
				})
			}
			w.facts.References = append(w.facts.References, ReferenceFact{
				ImplKey:      implKey,
				Name:         name,
				Kind:         RefVariable,
				Line:         line,
				Col:          col,
				ResolvedType: v.DeclaredType,
			})
			return
		}
	}

	kind := w.syntacticKind(n)
	container, resolved := "", ""
	if res, ok := w.resolver.ResolveIdentifier(name, line, col); ok {
		if res.Kind != "" {
			kind = res.Kind
		}
		container = res.ContainerType
		resolved = res.ResolvedType
	}
	w.facts.References = append(w.facts.References, ReferenceFact{
		ImplKey:       implKey,
		Name:          name,
		Kind:          kind,
		Line:          line,
		Col:           col,
		ContainerType: container,
		ResolvedType:  resolved,
	})
}

// lookupVariable resolves a name at a usage line against the variables
// visible in impl and its enclosing implementations. Within the nearest
// declaring implementation, the latest declaration at or before the usage
// line wins; with no preceding declaration the earliest one binds, so
// forward references still resolve to something sensible.
func (w *walker) lookupVariable(impl int, name string, line int) (int, bool) {
	for j := impl; j >= 0; j = w.implParent[j] {
		decls := w.implVars[j][name]
		if len(decls) == 0 {
			continue
		}
		best := -1
		for _, idx := range decls {
			if w.facts.Variables[idx].Line <= line {
				best = idx
			}
		}
		if best == -1 {
			best = decls[0]
		}
		return best, true
	}
	return 0, false
}

func sameSpan(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// syntacticKind classifies an identifier that did not bind to a variable,
// from its syntactic position alone: the function position of a call is a
// method, the right-hand side of a member access is a property, anything
// else is a bare identifier.
func (w *walker) syntacticKind(n *sitter.Node) RefKind {
	parent := n.Parent()
	if parent == nil {
		return RefIdentifier
	}
	switch parent.Type() {
	case "invocation_expression":
		if sameSpan(parent.ChildByFieldName("function"), n) {
			return RefMethod
		}
	case "member_access_expression", "member_binding_expression":
		if sameSpan(parent.ChildByFieldName("name"), n) {
			return memberNameKind(parent)
		}
	case "generic_name":
		// The identifier inside Foo<T>: classify by where the generic
		// name itself sits.
		gp := parent.Parent()
		if gp == nil {
			break
		}
		switch gp.Type() {
		case "invocation_expression":
			if sameSpan(gp.ChildByFieldName("function"), parent) {
				return RefMethod
			}
		case "member_access_expression", "member_binding_expression":
			if sameSpan(gp.ChildByFieldName("name"), parent) {
				return memberNameKind(gp)
			}
		}
	}
	return RefIdentifier
}

// memberNameKind decides method vs. property for the name side of a member
// access: invoked member accesses are methods, the rest properties.
func memberNameKind(access *sitter.Node) RefKind {
	if gp := access.Parent(); gp != nil && gp.Type() == "invocation_expression" {
		if sameSpan(gp.ChildByFieldName("function"), access) {
			return RefMethod
		}
	}
	return RefProperty
}

func (w *walker) recordInvocation(n *sitter.Node, impl int) {
	fn := n.ChildByFieldName("function")
	callee := w.calleeName(fn)
	implKey := ""
	if impl >= 0 {
		implKey = w.facts.Implementations[impl].Key
	}
	w.facts.Invocations = append(w.facts.Invocations, InvocationFact{
		ImplKey:  implKey,
		Line:     line1(n),
		CallText: strings.TrimSpace(w.text(n)),
		Callee:   callee,
	})
}

// calleeName resolves a display name for the called member from the shape
// of the function expression: plain name, generic name, member access, or
// conditional member access.
func (w *walker) calleeName(fn *sitter.Node) string {
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		return w.text(fn)
	case "generic_name":
		for i := 0; i < int(fn.NamedChildCount()); i++ {
			if child := fn.NamedChild(i); child.Type() == "identifier" {
				return w.text(child)
			}
		}
		name := w.text(fn)
		if idx := strings.IndexByte(name, '<'); idx > 0 {
			return name[:idx]
		}
		return name
	case "member_access_expression", "member_binding_expression":
		return w.calleeName(fn.ChildByFieldName("name"))
	case "conditional_access_expression":
		// The interesting part is the rightmost binding or invocation.
		for i := int(fn.NamedChildCount()) - 1; i >= 0; i-- {
			if name := w.calleeName(fn.NamedChild(i)); name != "" {
				return name
			}
		}
		return ""
	case "parenthesized_expression":
		for i := 0; i < int(fn.NamedChildCount()); i++ {
			if name := w.calleeName(fn.NamedChild(i)); name != "" {
				return name
			}
		}
		return ""
	case "invocation_expression":
		return w.calleeName(fn.ChildByFieldName("function"))
	default:
		return strings.TrimSpace(w.text(fn))
	}
}
