package agents

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Rule scopes: symbol rules see one symbol at a time, file rules see one file.
const (
	ScopeSymbol = "symbol"
	ScopeFile   = "file"
)

// SmellRule is one threshold rule evaluated by the smell agent. Expressions
// are CEL so deployments can tune thresholds without recompiling.
type SmellRule struct {
	Name     string
	Scope    string
	Expr     string // boolean CEL expression that triggers the rule
	Escalate string // optional expression that raises severity to critical
	Severity Severity
	Message  string
}

// DefaultSmellRules returns the built-in threshold rules.
func DefaultSmellRules() []SmellRule {
	return []SmellRule{
		{
			Name:     "long_function",
			Scope:    ScopeSymbol,
			Expr:     `kind == "function" && lines > 30`,
			Escalate: `lines > 300`,
			Severity: SeverityWarning,
			Message:  "function too long",
		},
		{
			Name:     "large_class",
			Scope:    ScopeSymbol,
			Expr:     `kind == "class" && lines > 200`,
			Escalate: `lines > 400`,
			Severity: SeverityWarning,
			Message:  "class too large",
		},
		{
			Name:     "god_file",
			Scope:    ScopeFile,
			Expr:     `functions > 20`,
			Severity: SeverityWarning,
			Message:  "too many functions in one file",
		},
		{
			Name:     "long_file",
			Scope:    ScopeFile,
			Expr:     `lines > 500`,
			Severity: SeverityWarning,
			Message:  "file too long",
		},
		{
			Name:     "duplicate_symbols",
			Scope:    ScopeFile,
			Expr:     `duplicates >= 3`,
			Severity: SeverityWarning,
			Message:  "symbol names duplicated across files",
		},
	}
}

// compiledRule pairs a rule with its evaluable CEL programs.
type compiledRule struct {
	SmellRule
	trigger  cel.Program
	escalate cel.Program
}

// compileRules builds the CEL environments and compiles every rule. A compile
// failure is a configuration error and must fail fast at startup.
func compileRules(rules []SmellRule) ([]compiledRule, error) {
	symbolEnv, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("lines", cel.IntType),
		cel.Variable("file_lines", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("smell rules: symbol env: %w", err)
	}
	fileEnv, err := cel.NewEnv(
		cel.Variable("path", cel.StringType),
		cel.Variable("lines", cel.IntType),
		cel.Variable("functions", cel.IntType),
		cel.Variable("classes", cel.IntType),
		cel.Variable("duplicates", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("smell rules: file env: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		var env *cel.Env
		switch r.Scope {
		case ScopeSymbol:
			env = symbolEnv
		case ScopeFile:
			env = fileEnv
		default:
			return nil, fmt.Errorf("smell rules: %q has unknown scope %q", r.Name, r.Scope)
		}

		cr := compiledRule{SmellRule: r}
		cr.trigger, err = compileBool(env, r.Name, r.Expr)
		if err != nil {
			return nil, err
		}
		if r.Escalate != "" {
			cr.escalate, err = compileBool(env, r.Name, r.Escalate)
			if err != nil {
				return nil, err
			}
		}
		compiled = append(compiled, cr)
	}
	return compiled, nil
}

func compileBool(env *cel.Env, rule, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("smell rules: %q: %w", rule, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("smell rules: %q: expression %q is not boolean", rule, expr)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("smell rules: %q: %w", rule, err)
	}
	return prg, nil
}

// eval runs a compiled boolean program against the activation.
func eval(prg cel.Program, activation map[string]any) (bool, error) {
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule returned %T, want bool", out.Value())
	}
	return b, nil
}
