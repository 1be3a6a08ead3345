package security

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// ErrUnresolvedVariable is the sentinel wrapped by UnresolvedVariableError.
var ErrUnresolvedVariable = errors.New("unresolved variable")

// UnresolvedVariableError is returned when a value references, or a
// configuration requires, a variable that is not set in the calling environment.
type UnresolvedVariableError struct {
	Name    string
	Context string // what needed the variable, e.g. "environment" or a volume path
}

func (e *UnresolvedVariableError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("variable %s is not set", e.Name)
	}
	return fmt.Sprintf("variable %s is not set (required by %s)", e.Name, e.Context)
}

func (e *UnresolvedVariableError) Unwrap() error { return ErrUnresolvedVariable }

// ExpandVars expands $VAR and ${VAR} references in s against environ
// (KEY=VALUE pairs). A reference to an unset variable without a default
// (${VAR:-x}) is an UnresolvedVariableError. Strings without a '$' are
// returned unchanged.
func ExpandVars(s string, environ []string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	word, err := syntax.NewParser().Document(strings.NewReader(s))
	if err != nil {
		return "", fmt.Errorf("invalid variable reference in %q: %w", s, err)
	}

	env := expand.ListEnviron(environ...)

	var missing string
	syntax.Walk(word, func(node syntax.Node) bool {
		pe, ok := node.(*syntax.ParamExp)
		if !ok || missing != "" || pe.Param == nil {
			return missing == ""
		}
		if pe.Exp != nil {
			// ${VAR:-default} and friends resolve on their own
			return true
		}
		if !env.Get(pe.Param.Value).IsSet() {
			missing = pe.Param.Value
		}
		return true
	})
	if missing != "" {
		return "", &UnresolvedVariableError{Name: missing, Context: s}
	}

	out, err := expand.Literal(&expand.Config{Env: env}, word)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", s, err)
	}
	return out, nil
}

// LookupEnv returns the value of name in environ, last assignment winning.
func LookupEnv(environ []string, name string) (string, bool) {
	value, found := "", false
	prefix := name + "="
	for _, kv := range environ {
		if strings.HasPrefix(kv, prefix) {
			value, found = kv[len(prefix):], true
		}
	}
	return value, found
}
