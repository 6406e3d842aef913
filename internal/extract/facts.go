package extract

// Fact kinds. Stored as plain strings so the read views stay greppable.

// TypeKind classifies a type-like declaration.
type TypeKind string

const (
	TypeClass     TypeKind = "class"
	TypeStruct    TypeKind = "struct"
	TypeInterface TypeKind = "interface"
	TypeRecord    TypeKind = "record"
	TypeEnum      TypeKind = "enum"
)

// RelationKind classifies one entry of a type's base list. The kind is
// inferred textually from the declaring type, not from semantic analysis:
// interfaces tag every edge base_interface, structs tag every edge
// interface, classes and records tag the first entry base_type and the
// rest interface.
type RelationKind string

const (
	RelationBaseType      RelationKind = "base_type"
	RelationInterface     RelationKind = "interface"
	RelationBaseInterface RelationKind = "base_interface"
)

// ImplKind classifies a unit of executable code.
type ImplKind string

const (
	ImplMethod          ImplKind = "method"
	ImplConstructor     ImplKind = "constructor"
	ImplLocalFunction   ImplKind = "local_function"
	ImplLambda          ImplKind = "lambda"
	ImplAnonymousMethod ImplKind = "anonymous_method"
)

// CtorReturnMarker is stored as the return type of constructors, which have
// no declared return type of their own.
const CtorReturnMarker = ".ctor"

// VarKind classifies how a variable was introduced.
type VarKind string

const (
	VarParameter VarKind = "parameter"
	VarLocal     VarKind = "local"
	VarForEach   VarKind = "foreach"
	VarCatch     VarKind = "catch"
)

// RefKind classifies an identifier occurrence.
type RefKind string

const (
	RefVariable   RefKind = "variable"
	RefMethod     RefKind = "method"
	RefProperty   RefKind = "property"
	RefIdentifier RefKind = "identifier"
)

// TypeFact records one type-like declaration. Key is globally unique:
// enclosing scope + name + declaration line.
type TypeFact struct {
	Key       string
	Name      string
	Kind      TypeKind
	Access    string
	Modifiers []string
	Namespace string
	FQN       string
	Line      int
	Col       int
}

// InheritanceFact records one base-list entry, tagged per RelationKind's
// textual heuristic.
type InheritanceFact struct {
	TypeKey  string
	BaseName string
	Relation RelationKind
}

// ImplementationFact records one unit of executable code, named or unnamed.
// ParentKey points at the nearest enclosing implementation ("" for
// top-level), so parent links form a forest. TypeKey is the owning type
// ("" for implementations outside any type).
type ImplementationFact struct {
	Key        string
	Name       string
	Kind       ImplKind
	ReturnType string
	Signature  string
	ParamCount int
	Access     string
	Modifiers  []string
	ParentKey  string
	TypeKey    string
	StartLine  int
	StartCol   int
	EndLine    int
	EndCol     int
}

// VariableFact records a variable owned by the narrowest implementation
// enclosing its declaration. DeclaredType is "" when the source carries no
// usable type text (stored as NULL).
type VariableFact struct {
	Key          string
	ImplKey      string
	Name         string
	Kind         VarKind
	DeclaredType string
	Line         int
}

// LineFact records per-line statistics. ImplKey is "" for lines outside
// any implementation. Depth counts block boundaries inside the owning
// implementation's own body; nested implementations' internal blocks are
// excluded.
type LineFact struct {
	LineNo   int
	ImplKey  string
	Text     string
	Depth    int
	VarCount int
}

// LineUsageFact is an edge recording that a variable is referenced on a line.
type LineUsageFact struct {
	LineNo      int
	VariableKey string
}

// InvocationFact records one call expression. ImplKey is "" when the call
// appears outside any implementation (e.g. a field initializer).
type InvocationFact struct {
	ImplKey  string
	Line     int
	CallText string
	Callee   string
}

// ReferenceFact records one classified identifier occurrence. ImplKey is
// "" outside any implementation. ContainerType and ResolvedType are filled
// by a semantic resolver when one is available, otherwise "".
type ReferenceFact struct {
	ImplKey       string
	Name          string
	Kind          RefKind
	Line          int
	Col           int
	ContainerType string
	ResolvedType  string
}

// FileFacts is the immutable bundle one extraction pass produces for one
// file. All keys are scoped so the bundle can be persisted without
// cross-file coordination.
type FileFacts struct {
	Path      string
	Digest    string
	Language  string
	LineCount int

	Types           []TypeFact
	Inheritance     []InheritanceFact
	Implementations []ImplementationFact
	Variables       []VariableFact
	Lines           []LineFact
	LineUsages      []LineUsageFact
	Invocations     []InvocationFact
	References      []ReferenceFact
}

// EntityCount returns the number of derived facts in the bundle, used for
// scan bookkeeping.
func (f *FileFacts) EntityCount() int {
	return len(f.Types) + len(f.Inheritance) + len(f.Implementations) +
		len(f.Variables) + len(f.Invocations) + len(f.References)
}
