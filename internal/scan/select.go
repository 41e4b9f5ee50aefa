package scan

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
)

// VariableSet names a group of variables in a file.
type VariableSet string

const (
	All         VariableSet = "all"
	Data        VariableSet = "data"
	Coordinates VariableSet = "coordinates"
	// Named selects the single variable given in Scope.Variable.
	Named VariableSet = "variable"
)

// ParseVariableSet accepts the lower-case names of the sets.
func ParseVariableSet(s string) (VariableSet, error) {
	switch v := VariableSet(strings.ToLower(strings.TrimSpace(s))); v {
	case All, Data, Coordinates, Named:
		return v, nil
	}
	return "", fmt.Errorf("unknown variable set %q (want all, data, coordinates or variable)", s)
}

// Scope decides which variables of a file are extracted.
type Scope struct {
	Set      VariableSet
	Variable string
}

// AllVariables is the scope holding every variable.
var AllVariables = Scope{Set: All}

// Variable returns the scope holding only name.
func Variable(name string) Scope {
	return Scope{Set: Named, Variable: name}
}

func (s Scope) String() string {
	if s.Set == Named {
		return fmt.Sprintf("variable %q", s.Variable)
	}
	return string(s.Set)
}

// Select returns the names of the variables of h in scope, in definition
// order. The empty set and all are the same.
func Select(scope Scope, h Handle) ([]string, error) {
	names := h.Variables()
	switch scope.Set {
	case All, "":
		return names, nil
	case Named:
		for _, n := range names {
			if n == scope.Variable {
				return []string{n}, nil
			}
		}
		return nil, fmt.Errorf("%w: %q in %s", chunking.ErrVariableNotFound, scope.Variable, h.Path())
	case Data, Coordinates:
		want := scope.Set == Coordinates
		out := make([]string, 0, len(names))
		for _, n := range names {
			if h.IsCoordinate(n) == want {
				out = append(out, n)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown variable set %q", scope.Set)
}
