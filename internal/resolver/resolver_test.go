package resolver

import (
	"errors"
	"testing"
)

func env(values map[string]string) LookupFunc {
	return func(name string) (string, bool) {
		v, ok := values[name]
		return v, ok
	}
}

func TestResolveNoReferences(t *testing.T) {
	vars := map[string]string{
		"BORG_RELOCATED_REPO_ACCESS_IS_OK": "yes",
		"BORG_CACHE_DIR":                   "/var/cache/borg",
	}

	resolved, err := Resolve(vars, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for key, value := range vars {
		if resolved[key] != value {
			t.Errorf("Resolve()[%s] = %v, want %v", key, resolved[key], value)
		}
	}
}

func TestResolveFromEnvironment(t *testing.T) {
	vars := map[string]string{"BORG_CACHE_DIR": "${HOME}/.cache/borg"}

	resolved, err := Resolve(vars, env(map[string]string{"HOME": "/home/alice"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved["BORG_CACHE_DIR"] != "/home/alice/.cache/borg" {
		t.Errorf("Resolve()[BORG_CACHE_DIR] = %v", resolved["BORG_CACHE_DIR"])
	}
}

func TestResolveChainedReferences(t *testing.T) {
	vars := map[string]string{
		"BASE":           "/srv/borg",
		"BORG_BASE_DIR":  "${BASE}/base",
		"BORG_CACHE_DIR": "${BORG_BASE_DIR}/cache",
	}

	// vars win over the environment
	resolved, err := Resolve(vars, env(map[string]string{"BASE": "/tmp"}))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved["BORG_CACHE_DIR"] != "/srv/borg/base/cache" {
		t.Errorf("Resolve()[BORG_CACHE_DIR] = %v", resolved["BORG_CACHE_DIR"])
	}
}

func TestResolveUnresolved(t *testing.T) {
	vars := map[string]string{"BORG_CACHE_DIR": "${NOPE}/cache"}

	_, err := Resolve(vars, env(nil))
	var unresolved *UnresolvedError
	if !errors.As(err, &unresolved) {
		t.Fatalf("Resolve() error = %v, want UnresolvedError", err)
	}
	if unresolved.Name != "BORG_CACHE_DIR" || unresolved.Reference != "NOPE" {
		t.Errorf("unexpected error fields: %+v", unresolved)
	}
}

func TestResolveCycle(t *testing.T) {
	vars := map[string]string{
		"A": "${B}",
		"B": "${A}",
	}

	_, err := Resolve(vars, nil)
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("Resolve() error = %v, want CycleError", err)
	}
}
