// Package testutil provides helpers for architecture tests that keep the
// genetics, stats and domain layers free of infrastructure dependencies.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// ImportPredicate reports whether an import path is forbidden.
type ImportPredicate func(path string) bool

// AssertNoTransitiveDependency loads pattern with its full dependency graph
// and fails if any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load packages %s: %v", pattern, err)
	}
	failIfViolations(t, "forbidden transitive dependency", reason, viols)
}

// AssertNoDirectImports scans the non-test .go files in dir and fails if any
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden ImportPredicate, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, "forbidden direct imports", reason, viols)
}

// InternalImport matches crosslab's internal packages and those of other
// modules. Standard library internals are not matched.
func InternalImport(path string) bool {
	if strings.HasPrefix(path, "crosslab/internal/") {
		return true
	}
	host, _, _ := strings.Cut(path, "/")
	return strings.Contains(host, ".") && strings.Contains(path, "/internal/")
}

// DomainImport matches the experiment domain package.
func DomainImport(path string) bool {
	return path == "crosslab/pkg/domain" || strings.HasSuffix(path, "/pkg/domain")
}

// GeneticsImport matches the cross and ratio package.
func GeneticsImport(path string) bool {
	return path == "crosslab/pkg/genetics" || strings.HasSuffix(path, "/pkg/genetics")
}

var infrastructurePrefixes = []string{
	"database/sql",
	"net/http",
	"github.com/jackc/pgx",
	"modernc.org/sqlite",
	"github.com/aws/",
	"github.com/prometheus/",
	"github.com/caarlos0/env",
}

// InfrastructureImport matches storage drivers, transports, cloud SDKs and
// configuration loaders.
func InfrastructureImport(path string) bool {
	for _, prefix := range infrastructurePrefixes {
		if path == prefix || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AnyOf combines predicates; the result matches when any of them does.
func AnyOf(preds ...ImportPredicate) ImportPredicate {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	return packages.Load(cfg, pattern)
}

func transitiveDependencyViolations(pattern string, forbidden ImportPredicate) ([]string, error) {
	roots, err := loadPackages(pattern)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var viols []string
	packages.Visit(roots, func(pkg *packages.Package) bool {
		if seen[pkg.PkgPath] {
			return false
		}
		seen[pkg.PkgPath] = true
		if forbidden(pkg.PkgPath) {
			viols = append(viols, pkg.PkgPath)
		}
		return true
	}, nil)
	sort.Strings(viols)
	return viols, nil
}

func directImportViolations(dir string, forbidden ImportPredicate) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		fileAst, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

// AssertImportGrouping walks the Go files under root and fails if an import
// block mixes standard library and module imports in one group, or lists a
// standard library group after a module group. Directories starting with
// '.' or '_' are skipped.
func AssertImportGrouping(t testing.TB, root string) {
	t.Helper()
	viols, err := importGroupingViolations(root)
	if err != nil {
		t.Fatalf("scan %s: %v", root, err)
	}
	failIfViolations(t, "misgrouped imports", "standard library first, then modules", viols)
}

const modulePath = "crosslab"

func isStdlib(path string) bool {
	if path == modulePath || strings.HasPrefix(path, modulePath+"/") {
		return false
	}
	first, _, _ := strings.Cut(path, "/")
	return !strings.Contains(first, ".")
}

func importGroupingViolations(root string) ([]string, error) {
	fset := token.NewFileSet()
	var viols []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(p, ".go") {
			return nil
		}
		fileAst, err := parser.ParseFile(fset, p, nil, parser.ImportsOnly)
		if err != nil {
			return err
		}
		prevLine, groupStd, sawModule := 0, false, false
		for i, imp := range fileAst.Imports {
			line := fset.Position(imp.Pos()).Line
			std := isStdlib(strings.Trim(imp.Path.Value, "\""))
			newGroup := i == 0 || line > prevLine+1
			switch {
			case newGroup && std && sawModule:
				viols = append(viols, fmt.Sprintf("%s:%d: standard library group after module imports", p, line))
			case !newGroup && std != groupStd:
				viols = append(viols, fmt.Sprintf("%s:%d: standard library and module imports share a group", p, line))
			}
			if newGroup {
				groupStd = std
			}
			if !std {
				sawModule = true
			}
			prevLine = line
		}
		return nil
	})
	return viols, err
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
