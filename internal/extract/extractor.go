package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// Extractor derives a FileFacts bundle from one C# source file. It holds a
// tree-sitter parser and is not safe for concurrent use; create one
// Extractor per goroutine.
type Extractor struct {
	parser   *sitter.Parser
	resolver SemanticResolver
}

// NewExtractor creates an Extractor. A nil resolver selects the no-op
// default, leaving classification purely syntactic.
func NewExtractor(resolver SemanticResolver) *Extractor {
	if resolver == nil {
		resolver = NoopResolver()
	}
	p := sitter.NewParser()
	p.SetLanguage(csharp.GetLanguage())
	return &Extractor{parser: p, resolver: resolver}
}

// LanguageForFile maps a file path to its language tag. Only C# sources are
// supported.
func LanguageForFile(path string) (string, bool) {
	if strings.EqualFold(filepath.Ext(path), ".cs") {
		return "csharp", true
	}
	return "", false
}

// Extract parses content and produces the complete fact bundle for one
// file. Later steps depend on earlier ones: declarations are collected
// first, identifier binding and invocations second, per-line statistics
// last. A failure is local to this file.
func (x *Extractor) Extract(ctx context.Context, path string, content []byte, digest string) (*FileFacts, error) {
	tree, err := x.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no syntax tree produced", path)
	}
	defer tree.Close()

	w := &walker{
		src:      content,
		resolver: x.resolver,
		facts: &FileFacts{
			Path:     path,
			Digest:   digest,
			Language: "csharp",
		},
		implNodes: make(map[nodeSpan]int),
		usageSeen: make(map[usageKey]bool),
	}

	root := tree.RootNode()
	w.collect(root, "", "", -1)
	w.classify(root, -1)
	w.buildLines(root)

	return w.facts, nil
}

// nodeSpan identifies a syntax node by position and kind. Node pointers
// from tree-sitter are not stable across traversals, byte spans are.
type nodeSpan struct {
	start, end uint32
	kind       string
}

type usageKey struct {
	line   int
	varKey string
}

// walker carries the traversal state for one file. Implementations are an
// arena: facts.Implementations, implParent and implVars share indices.
type walker struct {
	src      []byte
	facts    *FileFacts
	resolver SemanticResolver

	implParent []int
	implVars   []map[string][]int // name -> indices into facts.Variables, declaration order
	implNodes  map[nodeSpan]int
	usageSeen  map[usageKey]bool
}

func span(n *sitter.Node) nodeSpan {
	return nodeSpan{start: n.StartByte(), end: n.EndByte(), kind: n.Type()}
}

func (w *walker) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(w.src)
}

func line1(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }
func col0(n *sitter.Node) int  { return int(n.StartPoint().Column) }

// joinScope appends a name to a dotted scope prefix.
func joinScope(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

// isImplNode reports whether a node introduces an Implementation.
func isImplNode(kind string) (ImplKind, bool) {
	switch kind {
	case "method_declaration":
		return ImplMethod, true
	case "constructor_declaration":
		return ImplConstructor, true
	case "local_function_statement":
		return ImplLocalFunction, true
	case "lambda_expression":
		return ImplLambda, true
	case "anonymous_method_expression":
		return ImplAnonymousMethod, true
	}
	return "", false
}

func typeKindFor(nodeKind string) (TypeKind, bool) {
	switch nodeKind {
	case "class_declaration":
		return TypeClass, true
	case "struct_declaration":
		return TypeStruct, true
	case "interface_declaration":
		return TypeInterface, true
	case "record_declaration", "record_struct_declaration":
		return TypeRecord, true
	case "enum_declaration":
		return TypeEnum, true
	}
	return "", false
}

// collect is the declaration pass: namespaces, types with inheritance
// edges, the implementation forest, and variable ownership. scope is the
// dotted namespace/type prefix, typeKey the enclosing type's key ("" when
// outside a type), impl the arena index of the nearest enclosing
// implementation (-1 for none).
func (w *walker) collect(n *sitter.Node, scope, typeKey string, impl int) {
	switch n.Type() {
	case "namespace_declaration":
		name := w.text(n.ChildByFieldName("name"))
		inner := joinScope(scope, name)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.collect(n.NamedChild(i), inner, typeKey, impl)
		}
		return

	case "foreach_statement":
		if impl >= 0 {
			if left := n.ChildByFieldName("left"); left != nil && left.Type() == "identifier" {
				w.addVariable(impl, w.text(left), VarForEach, w.text(n.ChildByFieldName("type")), line1(left), col0(left))
			}
		}

	case "catch_declaration":
		if impl >= 0 {
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				w.addVariable(impl, w.text(nameNode), VarCatch, w.text(n.ChildByFieldName("type")), line1(nameNode), col0(nameNode))
			}
		}

	case "variable_declaration":
		// Locals only: a variable_declaration at type level belongs to a
		// field declaration, not to any implementation.
		if impl >= 0 {
			declType := w.text(n.ChildByFieldName("type"))
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() != "variable_declarator" {
					continue
				}
				nameNode := child.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				w.addVariable(impl, w.text(nameNode), VarLocal, declType, line1(nameNode), col0(nameNode))
			}
		}
	}

	if kind, ok := typeKindFor(n.Type()); ok {
		w.collectType(n, kind, scope, impl)
		return
	}
	if kind, ok := isImplNode(n.Type()); ok {
		w.collectImpl(n, kind, scope, typeKey, impl)
		return
	}

	w.collectChildren(n, scope, typeKey, impl)
}

// collectChildren recurses into n's named children. A file-scoped
// namespace has no body node: the declarations it governs are its later
// siblings, so its name widens the scope for the rest of the loop.
func (w *walker) collectChildren(n *sitter.Node, scope, typeKey string, impl int) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "file_scoped_namespace_declaration" {
			nameNode := child.ChildByFieldName("name")
			scope = joinScope(scope, w.text(nameNode))
			for j := 0; j < int(child.NamedChildCount()); j++ {
				inner := child.NamedChild(j)
				if sameSpan(inner, nameNode) {
					continue
				}
				w.collect(inner, scope, typeKey, impl)
			}
			continue
		}
		w.collect(child, scope, typeKey, impl)
	}
}

func (w *walker) collectType(n *sitter.Node, kind TypeKind, scope string, impl int) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}
	name := w.text(nameNode)
	line := line1(n)
	key := fmt.Sprintf("%s:%d", joinScope(scope, name), line)

	mods := modifierTexts(n, w.src)
	w.facts.Types = append(w.facts.Types, TypeFact{
		Key:       key,
		Name:      name,
		Kind:      kind,
		Access:    accessFrom(mods, "internal"),
		Modifiers: mods,
		Namespace: scope,
		FQN:       joinScope(scope, name),
		Line:      line,
		Col:       col0(n),
	})
	w.collectBases(n, kind, key)

	inner := joinScope(scope, name)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.collect(n.NamedChild(i), inner, key, impl)
	}
}

// collectBases derives inheritance edges from the base list. The relation
// kind is a syntactic heuristic: interface declarations tag everything
// base_interface, structs tag everything interface, classes and records
// tag the first entry base_type and the rest interface.
func (w *walker) collectBases(n *sitter.Node, kind TypeKind, typeKey string) {
	var baseList *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "base_list" {
			baseList = child
			break
		}
	}
	if baseList == nil {
		return
	}
	ordinal := 0
	for i := 0; i < int(baseList.NamedChildCount()); i++ {
		base := baseList.NamedChild(i)
		name := strings.TrimSpace(w.text(base))
		// Primary-constructor bases carry an argument list: "Base(x, y)".
		if idx := strings.IndexByte(name, '('); idx > 0 {
			name = name[:idx]
		}
		if name == "" {
			continue
		}
		var rel RelationKind
		switch {
		case kind == TypeInterface:
			rel = RelationBaseInterface
		case kind == TypeStruct:
			rel = RelationInterface
		case ordinal == 0:
			rel = RelationBaseType
		default:
			rel = RelationInterface
		}
		w.facts.Inheritance = append(w.facts.Inheritance, InheritanceFact{
			TypeKey:  typeKey,
			BaseName: name,
			Relation: rel,
		})
		ordinal++
	}
}

func (w *walker) collectImpl(n *sitter.Node, kind ImplKind, scope, typeKey string, parent int) {
	var name string
	switch kind {
	case ImplMethod, ImplConstructor, ImplLocalFunction:
		name = w.text(n.ChildByFieldName("name"))
	}

	returnType := ""
	switch kind {
	case ImplConstructor:
		returnType = CtorReturnMarker
	case ImplMethod, ImplLocalFunction:
		if rt := n.ChildByFieldName("returns"); rt != nil {
			returnType = w.text(rt)
		} else if rt := n.ChildByFieldName("type"); rt != nil {
			returnType = w.text(rt)
		}
	}

	mods := modifierTexts(n, w.src)
	access := ""
	if kind == ImplMethod || kind == ImplConstructor || kind == ImplLocalFunction {
		access = accessFrom(mods, "private")
	}

	// Key encodes the full scope chain so unnamed forms stay unique.
	base := typeKey
	if parent >= 0 {
		base = w.facts.Implementations[parent].Key
	}
	if base == "" {
		base = scope
	}
	key := fmt.Sprintf("%s/%s:%s@%d:%d", base, kind, name, line1(n), col0(n))

	idx := len(w.facts.Implementations)
	parentKey := ""
	if parent >= 0 {
		parentKey = w.facts.Implementations[parent].Key
	}
	w.facts.Implementations = append(w.facts.Implementations, ImplementationFact{
		Key:        key,
		Name:       name,
		Kind:       kind,
		ReturnType: returnType,
		Access:     access,
		Modifiers:  mods,
		ParentKey:  parentKey,
		TypeKey:    typeKey,
		StartLine:  line1(n),
		StartCol:   col0(n),
		EndLine:    int(n.EndPoint().Row) + 1,
		EndCol:     int(n.EndPoint().Column),
	})
	w.implParent = append(w.implParent, parent)
	w.implVars = append(w.implVars, make(map[string][]int))
	w.implNodes[span(n)] = idx

	w.collectParams(n, idx)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.collect(n.NamedChild(i), scope, typeKey, idx)
	}
}

// collectParams records an implementation's own parameters and fills in
// the parameter signature text.
func (w *walker) collectParams(n *sitter.Node, impl int) {
	body := n.ChildByFieldName("body")

	var paramList *sitter.Node
	if p := n.ChildByFieldName("parameters"); p != nil && p.Type() == "parameter_list" {
		paramList = p
	} else {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "parameter_list" {
				paramList = child
				break
			}
		}
	}

	fact := &w.facts.Implementations[impl]
	if paramList != nil {
		fact.Signature = w.text(paramList)
		for i := 0; i < int(paramList.NamedChildCount()); i++ {
			p := paramList.NamedChild(i)
			switch p.Type() {
			case "parameter":
				nameNode := p.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				w.addVariable(impl, w.text(nameNode), VarParameter, w.text(p.ChildByFieldName("type")), line1(nameNode), col0(nameNode))
				fact.ParamCount++
			case "implicit_parameter":
				w.addVariable(impl, w.text(p), VarParameter, "", line1(p), col0(p))
				fact.ParamCount++
			}
		}
		return
	}

	// Listless lambda parameters: "x => ..." surfaces as a bare identifier
	// or an implicit_parameter node ahead of the body.
	if fact.Kind == ImplLambda {
		var names []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if body != nil && span(child) == span(body) {
				break
			}
			switch child.Type() {
			case "identifier", "implicit_parameter":
				names = append(names, w.text(child))
				w.addVariable(impl, w.text(child), VarParameter, "", line1(child), col0(child))
				fact.ParamCount++
			}
		}
		if len(names) > 0 {
			fact.Signature = strings.Join(names, ", ")
		}
	}
}

// addVariable records a variable owned by impl. The key appends name and
// declaration position to the owner's key, which keeps same-named
// declarations distinct even in sibling blocks sharing a line.
func (w *walker) addVariable(impl int, name string, kind VarKind, declType string, line, col int) {
	if name == "" {
		return
	}
	key := fmt.Sprintf("%s/%s@%d:%d", w.facts.Implementations[impl].Key, name, line, col)
	idx := len(w.facts.Variables)
	w.facts.Variables = append(w.facts.Variables, VariableFact{
		Key:          key,
		ImplKey:      w.facts.Implementations[impl].Key,
		Name:         name,
		Kind:         kind,
		DeclaredType: strings.TrimSpace(declType),
		Line:         line,
	})
	w.implVars[impl][name] = append(w.implVars[impl][name], idx)
}

// modifierTexts collects the modifier tokens of a declaration node.
func modifierTexts(n *sitter.Node, src []byte) []string {
	var mods []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if child := n.NamedChild(i); child.Type() == "modifier" {
			mods = append(mods, child.Content(src))
		}
	}
	return mods
}

// accessFrom derives the access level from a modifier set, with C#'s
// default when none is present.
func accessFrom(mods []string, def string) string {
	var parts []string
	for _, m := range mods {
		switch m {
		case "public", "private", "protected", "internal":
			parts = append(parts, m)
		}
	}
	if len(parts) == 0 {
		return def
	}
	return strings.Join(parts, " ")
}
