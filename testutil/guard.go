// Package testutil provides test helpers that enforce the package layering:
// the domain model stays free of infrastructure, and storage backends stay
// free of the service layer.
package testutil

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const modulePath = "spherecore"

// InternalImport matches any import of a package under spherecore/internal.
func InternalImport(path string) bool {
	return strings.HasPrefix(path, modulePath+"/internal/")
}

// ServiceImport matches the service package and anything below it.
func ServiceImport(path string) bool {
	return path == modulePath+"/internal/core" || strings.HasPrefix(path, modulePath+"/internal/core/")
}

// DomainImport matches the domain model package.
func DomainImport(path string) bool {
	return path == modulePath+"/pkg/domain"
}

// AnyOf combines predicates.
func AnyOf(preds ...func(string) bool) func(string) bool {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

// ImportViolations walks root and returns every import of a non-test .go file
// that satisfies forbidden, as "path (in file)". Build tags are not evaluated.
func ImportViolations(root string, forbidden func(importPath string) bool) ([]string, error) {
	fset := token.NewFileSet()
	var viols []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			return nil
		}
		file, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, `"`)
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+filepath.ToSlash(rel)+")")
			}
		}
		return nil
	})
	sort.Strings(viols)
	return viols, err
}

// AssertNoImports fails t when any non-test file under root imports a package
// matching forbidden.
func AssertNoImports(t testing.TB, root string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := ImportViolations(root, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", root, err)
	}
	failIfViolations(t, reason, viols)
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
