// Package resolver expands ${NAME} references inside the envs section of a
// configuration file
package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	// refPattern matches ${NAME} references
	refPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	// maxDepth bounds reference chains
	maxDepth = 10
)

// LookupFunc reads a variable from outside the envs section, usually os.LookupEnv
type LookupFunc func(name string) (string, bool)

// CycleError is returned when envs reference each other in a cycle
type CycleError struct {
	Name string
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s references itself: %s", e.Name, strings.Join(e.Path, " -> "))
}

// UnresolvedError is returned when a reference names neither another env nor
// a variable of the environment
type UnresolvedError struct {
	Name      string
	Reference string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s references ${%s} which is not set", e.Name, e.Reference)
}

// Resolve returns a copy of vars with every ${NAME} replaced. Names defined in
// vars win over lookup. Errors are reported for the first name in sorted order
func Resolve(vars map[string]string, lookup LookupFunc) (map[string]string, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &resolution{vars: vars, lookup: lookup, done: make(map[string]string, len(vars))}
	for _, name := range names {
		if _, err := r.value(name, nil); err != nil {
			return nil, err
		}
	}
	return r.done, nil
}

type resolution struct {
	vars   map[string]string
	lookup LookupFunc
	done   map[string]string
}

func (r *resolution) value(name string, path []string) (string, error) {
	if v, ok := r.done[name]; ok {
		return v, nil
	}
	for _, p := range path {
		if p == name {
			return "", &CycleError{Name: path[0], Path: append(path, name)}
		}
	}
	if len(path) > maxDepth {
		return "", &CycleError{Name: path[0], Path: append(path, name)}
	}

	path = append(path, name)
	var resolveErr error
	out := refPattern.ReplaceAllStringFunc(r.vars[name], func(match string) string {
		if resolveErr != nil {
			return match
		}
		ref := refPattern.FindStringSubmatch(match)[1]
		if _, ok := r.vars[ref]; ok {
			v, err := r.value(ref, path)
			if err != nil {
				resolveErr = err
			}
			return v
		}
		if v, ok := r.lookup(ref); ok {
			return v
		}
		resolveErr = &UnresolvedError{Name: name, Reference: ref}
		return match
	})
	if resolveErr != nil {
		return "", resolveErr
	}

	r.done[name] = out
	return out, nil
}
