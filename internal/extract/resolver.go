package extract

// Resolution is what a semantic resolver knows about one identifier
// occurrence beyond what syntax shows.
type Resolution struct {
	Kind          RefKind
	ContainerType string
	ResolvedType  string
}

// SemanticResolver is an optional capability the extractor calls through
// when classifying identifiers that do not bind to a visible variable. The
// extractor is fully functional with the no-op default; a real resolver
// (e.g. one backed by compiler symbol data) improves classification
// fidelity and supplies container/resolved type names.
type SemanticResolver interface {
	// ResolveIdentifier reports semantic information for the identifier
	// with the given name at (line, col). ok=false means the resolver has
	// nothing to add and the syntactic classification stands.
	ResolveIdentifier(name string, line, col int) (res Resolution, ok bool)
}

type noopResolver struct{}

func (noopResolver) ResolveIdentifier(string, int, int) (Resolution, bool) {
	return Resolution{}, false
}

// NoopResolver returns the default resolver that never overrides the
// syntactic classification.
func NoopResolver() SemanticResolver { return noopResolver{} }
