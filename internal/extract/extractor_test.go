package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractSource(t *testing.T, src string) *FileFacts {
	t.Helper()
	ex := NewExtractor(nil)
	digest := fmt.Sprintf("%x", sha256.Sum256([]byte(src)))
	facts, err := ex.Extract(context.Background(), "Test.cs", []byte(src), digest)
	require.NoError(t, err)
	return facts
}

func findType(t *testing.T, facts *FileFacts, name string) TypeFact {
	t.Helper()
	for _, tf := range facts.Types {
		if tf.Name == name {
			return tf
		}
	}
	t.Fatalf("type %q not found in %v", name, facts.Types)
	return TypeFact{}
}

func findImpl(t *testing.T, facts *FileFacts, name string) ImplementationFact {
	t.Helper()
	for _, m := range facts.Implementations {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("implementation %q not found", name)
	return ImplementationFact{}
}

func findVar(t *testing.T, facts *FileFacts, implKey, name string) VariableFact {
	t.Helper()
	for _, v := range facts.Variables {
		if v.ImplKey == implKey && v.Name == name {
			return v
		}
	}
	t.Fatalf("variable %q owned by %q not found", name, implKey)
	return VariableFact{}
}

func lineAt(t *testing.T, facts *FileFacts, lineNo int) LineFact {
	t.Helper()
	for _, l := range facts.Lines {
		if l.LineNo == lineNo {
			return l
		}
	}
	t.Fatalf("line %d not found", lineNo)
	return LineFact{}
}

func TestExtract_TypesAndNamespaces(t *testing.T) {
	facts := extractSource(t, `namespace Billing.Core
{
    public class Invoice { }
    internal struct Money { }
    public interface IPayable { }
    public record Receipt(string Id);
    enum Status { Open, Closed }
}
`)
	require.Len(t, facts.Types, 5)

	invoice := findType(t, facts, "Invoice")
	assert.Equal(t, TypeClass, invoice.Kind)
	assert.Equal(t, "Billing.Core", invoice.Namespace)
	assert.Equal(t, "Billing.Core.Invoice", invoice.FQN)
	assert.Equal(t, "public", invoice.Access)
	assert.Equal(t, "Billing.Core.Invoice:3", invoice.Key)

	assert.Equal(t, TypeStruct, findType(t, facts, "Money").Kind)
	assert.Equal(t, TypeInterface, findType(t, facts, "IPayable").Kind)
	assert.Equal(t, TypeRecord, findType(t, facts, "Receipt").Kind)

	status := findType(t, facts, "Status")
	assert.Equal(t, TypeEnum, status.Kind)
	// No access modifier: C# defaults apply.
	assert.Equal(t, "internal", status.Access)
}

func TestExtract_FileScopedNamespace(t *testing.T) {
	facts := extractSource(t, `namespace Billing.Core;

public class Invoice { }
`)
	invoice := findType(t, facts, "Invoice")
	assert.Equal(t, "Billing.Core", invoice.Namespace)
	assert.Equal(t, "Billing.Core.Invoice", invoice.FQN)
}

func TestExtract_NestedTypeScope(t *testing.T) {
	facts := extractSource(t, `namespace App
{
    public class Outer
    {
        public class Inner { }
    }
}
`)
	inner := findType(t, facts, "Inner")
	assert.Equal(t, "App.Outer", inner.Namespace)
	assert.Equal(t, "App.Outer.Inner", inner.FQN)
}

func TestExtract_InheritanceHeuristic(t *testing.T) {
	facts := extractSource(t, `class Handler : BaseHandler, IDisposable, IRunnable { }
interface IWorker : IRunnable, IDisposable { }
struct Point : IEquatable { }
`)
	byType := map[string][]InheritanceFact{}
	for _, in := range facts.Inheritance {
		byType[in.TypeKey] = append(byType[in.TypeKey], in)
	}

	handler := byType[findType(t, facts, "Handler").Key]
	require.Len(t, handler, 3)
	assert.Equal(t, "BaseHandler", handler[0].BaseName)
	assert.Equal(t, RelationBaseType, handler[0].Relation)
	assert.Equal(t, RelationInterface, handler[1].Relation)
	assert.Equal(t, RelationInterface, handler[2].Relation)

	worker := byType[findType(t, facts, "IWorker").Key]
	require.Len(t, worker, 2)
	for _, in := range worker {
		assert.Equal(t, RelationBaseInterface, in.Relation)
	}

	point := byType[findType(t, facts, "Point").Key]
	require.Len(t, point, 1)
	assert.Equal(t, RelationInterface, point[0].Relation)
}

func TestExtract_ImplementationForest(t *testing.T) {
	facts := extractSource(t, `class Calc
{
    public Calc() { }

    public int Sum(int[] xs)
    {
        var total = 0;
        foreach (var x in xs)
        {
            total += x;
        }
        return total;
    }
}
`)
	ctor := findImpl(t, facts, "Calc")
	assert.Equal(t, ImplConstructor, ctor.Kind)
	assert.Equal(t, CtorReturnMarker, ctor.ReturnType)
	assert.Equal(t, "", ctor.ParentKey)
	assert.Equal(t, findType(t, facts, "Calc").Key, ctor.TypeKey)

	sum := findImpl(t, facts, "Sum")
	assert.Equal(t, ImplMethod, sum.Kind)
	assert.Equal(t, "int", sum.ReturnType)
	assert.Equal(t, "public", sum.Access)
	assert.Equal(t, "", sum.ParentKey)
	assert.Equal(t, 1, sum.ParamCount)
	assert.Equal(t, 5, sum.StartLine)
	assert.Equal(t, 13, sum.EndLine)
}

func TestExtract_NestedImplementations(t *testing.T) {
	facts := extractSource(t, `class Pipeline
{
    public void Run(int[] data)
    {
        int Helper(int v)
        {
            return v + 1;
        }
        var doubled = data.Select(x => x * 2);
    }
}
`)
	run := findImpl(t, facts, "Run")
	helper := findImpl(t, facts, "Helper")
	assert.Equal(t, ImplLocalFunction, helper.Kind)
	assert.Equal(t, run.Key, helper.ParentKey)

	var lambda *ImplementationFact
	for i := range facts.Implementations {
		if facts.Implementations[i].Kind == ImplLambda {
			lambda = &facts.Implementations[i]
		}
	}
	require.NotNil(t, lambda, "lambda implementation not recorded")
	assert.Equal(t, run.Key, lambda.ParentKey)

	// The lambda parameter is owned by the lambda, not by Run.
	x := findVar(t, facts, lambda.Key, "x")
	assert.Equal(t, VarParameter, x.Kind)
}

func TestExtract_VariableKindsAndOwnership(t *testing.T) {
	facts := extractSource(t, `class Svc
{
    public void Handle(string input)
    {
        var parsed = input.Trim();
        foreach (var part in parsed.Split(','))
        {
            try { }
            catch (Exception ex)
            {
            }
        }
    }
}
`)
	handle := findImpl(t, facts, "Handle")

	assert.Equal(t, VarParameter, findVar(t, facts, handle.Key, "input").Kind)
	assert.Equal(t, "string", findVar(t, facts, handle.Key, "input").DeclaredType)

	parsed := findVar(t, facts, handle.Key, "parsed")
	assert.Equal(t, VarLocal, parsed.Kind)
	assert.Equal(t, 5, parsed.Line)

	assert.Equal(t, VarForEach, findVar(t, facts, handle.Key, "part").Kind)

	ex := findVar(t, facts, handle.Key, "ex")
	assert.Equal(t, VarCatch, ex.Kind)
	assert.Equal(t, "Exception", ex.DeclaredType)
}

func TestExtract_FieldDeclarationsAreNotVariables(t *testing.T) {
	facts := extractSource(t, `class Cfg
{
    private int limit = 10;

    public void Apply()
    {
        var local = limit;
    }
}
`)
	for _, v := range facts.Variables {
		assert.NotEqual(t, "limit", v.Name, "field must not become a variable")
	}
	apply := findImpl(t, facts, "Apply")
	findVar(t, facts, apply.Key, "local")
}

func TestExtract_ShadowingBindsNearestDeclaration(t *testing.T) {
	facts := extractSource(t, `class Shade
{
    public void Work(int value)
    {
        var log = value;
        Action<int> inner = value =>
        {
            var use = value;
        };
        var after = value;
    }
}
`)
	work := findImpl(t, facts, "Work")
	var lambda *ImplementationFact
	for i := range facts.Implementations {
		if facts.Implementations[i].Kind == ImplLambda {
			lambda = &facts.Implementations[i]
		}
	}
	require.NotNil(t, lambda)

	outer := findVar(t, facts, work.Key, "value")
	shadow := findVar(t, facts, lambda.Key, "value")
	require.NotEqual(t, outer.Key, shadow.Key)

	// Usage inside the lambda body binds the lambda's parameter; usages
	// outside bind the method parameter.
	usedAt := func(line int) []string {
		var keys []string
		for _, u := range facts.LineUsages {
			if u.LineNo == line {
				keys = append(keys, u.VariableKey)
			}
		}
		return keys
	}
	assert.Contains(t, usedAt(8), shadow.Key)
	assert.NotContains(t, usedAt(8), outer.Key)
	assert.Contains(t, usedAt(5), outer.Key)
	assert.Contains(t, usedAt(10), outer.Key)
}

func TestExtract_LatestPrecedingDeclarationWins(t *testing.T) {
	facts := extractSource(t, `class Twice
{
    public void Go()
    {
        {
            var x = 1;
            Use(x);
        }
        {
            var x = 2;
            Use(x);
        }
    }
}
`)
	goImpl := findImpl(t, facts, "Go")
	first := findVar(t, facts, goImpl.Key, "x")

	var second VariableFact
	for _, v := range facts.Variables {
		if v.ImplKey == goImpl.Key && v.Name == "x" && v.Key != first.Key {
			second = v
		}
	}
	require.NotEmpty(t, second.Key, "both declarations of x must be recorded")
	if first.Line > second.Line {
		first, second = second, first
	}

	for _, u := range facts.LineUsages {
		switch u.LineNo {
		case 7:
			assert.Equal(t, first.Key, u.VariableKey)
		case 11:
			assert.Equal(t, second.Key, u.VariableKey)
		}
	}
}

func TestExtract_SameLineSiblingDeclarationsStayDistinct(t *testing.T) {
	// Both declarations of x sit on one line, so only the column can keep
	// their keys apart.
	facts := extractSource(t, `class C { void M() { { int x = 1; } { int x = 2; } } }
`)
	m := findImpl(t, facts, "M")

	var keys []string
	for _, v := range facts.Variables {
		if v.ImplKey == m.Key && v.Name == "x" {
			keys = append(keys, v.Key)
		}
	}
	require.Len(t, keys, 2)
	assert.NotEqual(t, keys[0], keys[1])
}

func TestExtract_ImplicitLambdaParameter(t *testing.T) {
	facts := extractSource(t, `class Jobs
{
    public void Each(int[] xs)
    {
        xs.Select(v => v + 1);
        xs.Select((a, b) => a + b);
    }
}
`)
	var lambdas []ImplementationFact
	for _, m := range facts.Implementations {
		if m.Kind == ImplLambda {
			lambdas = append(lambdas, m)
		}
	}
	require.Len(t, lambdas, 2)

	single, pair := lambdas[0], lambdas[1]
	if single.StartLine > pair.StartLine {
		single, pair = pair, single
	}
	assert.Equal(t, 1, single.ParamCount)
	v := findVar(t, facts, single.Key, "v")
	assert.Equal(t, VarParameter, v.Kind)

	assert.Equal(t, 2, pair.ParamCount)
	findVar(t, facts, pair.Key, "a")
	findVar(t, facts, pair.Key, "b")
}

func TestExtract_LineStatistics(t *testing.T) {
	src := `class Depth
{
    public void Run(bool flag)
    {
        var a = 1;
        if (flag)
        {
            var b = a;
        }
    }
}
`
	facts := extractSource(t, src)
	run := findImpl(t, facts, "Run")

	assert.Equal(t, 12, facts.LineCount)

	// Lines inside the method body belong to it; the class braces do not.
	assert.Equal(t, "", lineAt(t, facts, 1).ImplKey)
	assert.Equal(t, run.Key, lineAt(t, facts, 5).ImplKey)
	assert.Equal(t, run.Key, lineAt(t, facts, 8).ImplKey)

	// Body block is depth one, the if block depth two.
	assert.Equal(t, 1, lineAt(t, facts, 5).Depth)
	assert.Equal(t, 2, lineAt(t, facts, 8).Depth)

	// Distinct variables per line: "var b = a;" touches b and a.
	assert.Equal(t, 2, lineAt(t, facts, 8).VarCount)
	assert.Equal(t, 1, lineAt(t, facts, 5).VarCount)
}

func TestExtract_NestedImplDoesNotInflateOuterDepth(t *testing.T) {
	facts := extractSource(t, `class Reset
{
    public void Outer()
    {
        Action f = () =>
        {
            {
                var deep = 1;
            }
        };
        var tail = 0;
    }
}
`)
	outer := findImpl(t, facts, "Outer")
	// The line after the lambda is back in Outer's body at depth one.
	tail := lineAt(t, facts, 11)
	assert.Equal(t, outer.Key, tail.ImplKey)
	assert.Equal(t, 1, tail.Depth)
	// Inside the lambda's nested block the owner is the lambda, depth two.
	deep := lineAt(t, facts, 8)
	assert.NotEqual(t, outer.Key, deep.ImplKey)
	assert.Equal(t, 2, deep.Depth)
}

func TestExtract_Invocations(t *testing.T) {
	facts := extractSource(t, `class Caller
{
    public void Go(string msg)
    {
        Console.WriteLine(msg);
        Helper();
        msg?.Trim();
    }

    void Helper() { }
}
`)
	goImpl := findImpl(t, facts, "Go")
	require.Len(t, facts.Invocations, 3)

	byCallee := map[string]InvocationFact{}
	for _, inv := range facts.Invocations {
		byCallee[inv.Callee] = inv
	}

	wl, ok := byCallee["WriteLine"]
	require.True(t, ok, "member access callee should resolve to the member name")
	assert.Equal(t, goImpl.Key, wl.ImplKey)
	assert.Equal(t, 5, wl.Line)
	assert.Equal(t, "Console.WriteLine(msg)", wl.CallText)

	helper, ok := byCallee["Helper"]
	require.True(t, ok)
	assert.Equal(t, 6, helper.Line)

	_, ok = byCallee["Trim"]
	assert.True(t, ok, "conditional access callee should resolve")
}

func TestExtract_ReferenceClassification(t *testing.T) {
	facts := extractSource(t, `class Refs
{
    public void Go(Widget w)
    {
        var n = w.Length;
        w.Render();
    }
}
`)
	kinds := map[string]RefKind{}
	for _, r := range facts.References {
		kinds[fmt.Sprintf("%s@%d", r.Name, r.Line)] = r.Kind
	}

	assert.Equal(t, RefVariable, kinds["w@5"])
	assert.Equal(t, RefProperty, kinds["Length@5"])
	assert.Equal(t, RefMethod, kinds["Render@6"])
	// Declaration identifiers count as usages of their own variable.
	assert.Equal(t, RefVariable, kinds["n@5"])
}

func TestExtract_ResolverOverridesSyntacticKind(t *testing.T) {
	resolver := stubResolver{
		"Length": {Kind: RefMethod, ContainerType: "Widget", ResolvedType: "int"},
	}
	ex := NewExtractor(resolver)
	src := `class Refs
{
    public void Go(Widget w)
    {
        var n = w.Length;
    }
}
`
	facts, err := ex.Extract(context.Background(), "Test.cs", []byte(src), "d")
	require.NoError(t, err)

	var found bool
	for _, r := range facts.References {
		if r.Name == "Length" {
			found = true
			assert.Equal(t, RefMethod, r.Kind)
			assert.Equal(t, "Widget", r.ContainerType)
			assert.Equal(t, "int", r.ResolvedType)
		}
	}
	require.True(t, found)
}

func TestExtract_EmptyFile(t *testing.T) {
	facts := extractSource(t, "")
	assert.Empty(t, facts.Types)
	assert.Empty(t, facts.Implementations)
	assert.Equal(t, 1, facts.LineCount)
}

func TestLanguageForFile(t *testing.T) {
	for path, want := range map[string]bool{
		"Program.cs": true, "PROGRAM.CS": true, "a/b/Svc.cs": true,
		"main.go": false, "notes.txt": false, "Program.cs.bak": false,
	} {
		_, ok := LanguageForFile(path)
		assert.Equal(t, want, ok, "path: %s", path)
	}
}

// stubResolver maps identifier names to fixed resolutions.
type stubResolver map[string]Resolution

func (s stubResolver) ResolveIdentifier(name string, line, col int) (Resolution, bool) {
	res, ok := s[name]
	return res, ok
}
