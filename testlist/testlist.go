// Package testlist discovers Go test packages and test functions from source, without
// compiling anything.
package testlist

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/mod/modfile"
)

// FindTestFunctions returns the sorted names of the top-level Test functions of a package.
// pkgPath is either relative to workingDir ("./pkg") or a full import path inside the
// module declared by workingDir/go.mod.
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	pkgDir, err := packageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}
			if isTestFunc(funcDecl.Name.Name) {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	slices.Sort(testFunctions)
	return slices.Compact(testFunctions), nil
}

// FindTestPackages walks the directory named by pattern and returns every directory that
// contains a _test.go file, as "./"-relative paths from workingDir. A trailing "/..." on
// pattern is accepted and ignored.
func FindTestPackages(pattern string, workingDir string) ([]string, error) {
	root := strings.TrimSuffix(pattern, "...")
	root = strings.TrimSuffix(root, "/")
	if root == "" || root == "." {
		root = workingDir
	} else if !filepath.IsAbs(root) {
		root = filepath.Join(workingDir, root)
	}

	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("package directory %s does not exist", root)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}

	seen := make(map[string]struct{})
	var packages []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}

		rel, err := filepath.Rel(workingDir, filepath.Dir(path))
		if err != nil {
			return err
		}
		pkg := "./" + filepath.ToSlash(rel)
		if rel == "." {
			pkg = "."
		}
		if _, ok := seen[pkg]; !ok {
			seen[pkg] = struct{}{}
			packages = append(packages, pkg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	slices.Sort(packages)
	return packages, nil
}

// packageDir resolves pkgPath to a directory on disk
func packageDir(pkgPath string, workingDir string) (string, error) {
	if pkgPath == "." || strings.HasPrefix(pkgPath, "./") || strings.HasPrefix(pkgPath, "../") {
		return filepath.Join(workingDir, pkgPath), nil
	}

	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to find go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}

	moduleName := modFile.Module.Mod.Path
	if pkgPath != moduleName && !strings.HasPrefix(pkgPath, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}
	return filepath.Join(workingDir, strings.TrimPrefix(pkgPath, moduleName)), nil
}

// isTestFunc matches the go test naming rule: "Test" followed by nothing or by a
// character that is not a lower-case letter. TestMain is excluded.
func isTestFunc(name string) bool {
	if !strings.HasPrefix(name, "Test") || name == "TestMain" {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}
