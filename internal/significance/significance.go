// Package significance computes the 5-level importance estimate attached
// to every classified node: a base value by kind group plus a handful of
// additive, clamped factors, with a structured explanation of each
// contribution for auditing.
package significance

import (
	"strings"

	"github.com/astdb-dev/astdb/internal/ast"
)

// Input is everything the calculator needs about a node; it deliberately
// avoids depending on internal/classify or internal/metaextract types so
// it can be unit tested with plain literals.
type Input struct {
	Kind                 ast.Kind
	Name                 string
	FilePath             string
	ChildCount           int
	SourceLength         int
	ParamCount           int
	MemberCount          int
	CyclomaticComplexity int
	ScopeDepth           int
	Modifiers            []string
	Docstring            string
	Exported             bool
}

// Config tunes the calculator; it is carried from internal/config so
// operators can bound the result range and turn the complexity factor
// off. The other factors are always applied.
type Config struct {
	MinimumSignificance ast.Significance
	MaximumSignificance ast.Significance
	ComplexityEnabled   bool
}

// DefaultConfig returns the standard tuning: every factor enabled,
// full Minimal..Critical range.
func DefaultConfig() Config {
	return Config{
		MinimumSignificance: ast.SignificanceMinimal,
		MaximumSignificance: ast.SignificanceCritical,
		ComplexityEnabled:   true,
	}
}

// FactorContribution is one named factor's signed offset, recorded for
// the structured explanation.
type FactorContribution struct {
	Name   string
	Offset int
}

// Explanation is the full audit trail behind a Result.
type Explanation struct {
	Base     ast.Significance
	Factors  []FactorContribution
	RawTotal int
	Clamped  bool
	Final    ast.Significance
}

// Result is what Calculate returns: the final level plus its explanation.
type Result struct {
	Significance ast.Significance
	Explanation  Explanation
}

var baseByKind = map[ast.Kind]ast.Significance{
	ast.KindFile:          ast.SignificanceCritical,
	ast.KindModule:        ast.SignificanceCritical,
	ast.KindClass:         ast.SignificanceCritical,
	ast.KindInterface:     ast.SignificanceCritical,
	ast.KindFunction:      ast.SignificanceHigh,
	ast.KindMethod:        ast.SignificanceHigh,
	ast.KindConstructor:   ast.SignificanceHigh,
	ast.KindEnum:          ast.SignificanceMedium,
	ast.KindTypeAlias:     ast.SignificanceMedium,
	ast.KindImport:        ast.SignificanceMedium,
	ast.KindVariable:      ast.SignificanceLow,
	ast.KindProperty:      ast.SignificanceLow,
	ast.KindIfStatement:   ast.SignificanceLow,
	ast.KindParameter:     ast.SignificanceMinimal,
	ast.KindComment:       ast.SignificanceMinimal,
	ast.KindStringLiteral: ast.SignificanceMinimal,
}

// Calculate computes the final significance level and its explanation
// for in, under cfg.
func Calculate(in Input, cfg Config) Result {
	base, ok := baseByKind[in.Kind]
	if !ok {
		base = ast.SignificanceMinimal
	}

	var factors []FactorContribution
	total := int(base)

	add := func(name string, offset int) {
		if offset == 0 {
			return
		}
		factors = append(factors, FactorContribution{Name: name, Offset: offset})
		total += offset
	}

	if cfg.ComplexityEnabled {
		add("complexity", complexityFactor(in))
	}
	add("scope", scopeFactor(in))
	add("size", sizeFactor(in))
	add("context", contextFactor(in))
	add("usage", usageFactor(in))

	final := ast.Significance(total).Clamp(cfg.MinimumSignificance, cfg.MaximumSignificance)
	clamped := int(final) != total

	return Result{
		Significance: final,
		Explanation: Explanation{
			Base:     base,
			Factors:  factors,
			RawTotal: total,
			Clamped:  clamped,
			Final:    final,
		},
	}
}

// complexityFactor rises with structural size: children, parameters,
// cyclomatic branches, and (for classes) member count.
func complexityFactor(in Input) int {
	offset := 0
	switch {
	case in.ChildCount > 40:
		offset++
	case in.ChildCount > 15:
		// no bonus, but not a penalty either
	}
	if in.ParamCount > 5 {
		offset++
	}
	if in.CyclomaticComplexity > 10 {
		offset++
	}
	if (in.Kind == ast.KindClass || in.Kind == ast.KindInterface) && in.MemberCount > 10 {
		offset++
	}
	if offset > 2 {
		offset = 2
	}
	return offset
}

// scopeFactor decreases with scope depth beyond 3, and gives a small
// bonus to top-level declarations (whose chain is just the module frame
// plus their own name).
func scopeFactor(in Input) int {
	switch {
	case in.ScopeDepth > 3:
		return -1
	case in.ScopeDepth <= 2:
		return 1
	default:
		return 0
	}
}

// sizeFactor rewards very large declarations and penalizes trivially
// small ones.
func sizeFactor(in Input) int {
	switch {
	case in.SourceLength > 1000:
		return 1
	case in.SourceLength < 20:
		return -1
	default:
		return 0
	}
}

// contextFactor penalizes test files and rewards main files, exported
// items, documented items, and items carrying multiple modifiers.
func contextFactor(in Input) int {
	offset := 0
	if isTestFile(in.FilePath) {
		offset--
	}
	if isMainFile(in.FilePath) {
		offset++
	}
	if in.Exported {
		offset++
	}
	if strings.TrimSpace(in.Docstring) != "" {
		offset++
	}
	if len(in.Modifiers) > 1 {
		offset++
	}
	return offset
}

// usageFactor rewards conventional entry-point names; never negative.
func usageFactor(in Input) int {
	name := strings.ToLower(in.Name)
	switch {
	case name == "main",
		strings.HasPrefix(name, "index"),
		strings.HasPrefix(name, "init"),
		strings.HasPrefix(name, "api"),
		strings.HasPrefix(name, "public"):
		return 1
	default:
		return 0
	}
}

func isTestFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, "_test.go") ||
		strings.Contains(lower, ".test.") ||
		strings.Contains(lower, ".spec.") ||
		strings.Contains(lower, "/test_") ||
		strings.HasPrefix(lastSegment(lower), "test_")
}

func isMainFile(path string) bool {
	lower := strings.ToLower(path)
	base := lastSegment(lower)
	return base == "main.go" || base == "main.py" || base == "index.js" || base == "index.ts"
}

func lastSegment(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
