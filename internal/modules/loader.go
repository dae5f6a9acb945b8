package modules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pyvm/internal/ast"
	"pyvm/internal/ir"
	"pyvm/internal/parser"
)

const (
	SourceExt = ".py"
	CodeExt   = ".pyvc"
)

// Module is one loaded script: either source text with its parsed tree, or
// a precompiled code file.
type Module struct {
	Name     string       // file name without extension, e.g. "fib"
	FilePath string       // path the module was loaded from
	Source   []byte       // raw file contents
	Prog     *ast.Program // parsed tree; nil for code files
	Code     *ir.CodeObject
}

// Precompiled reports whether the module was loaded from a code file.
func (m *Module) Precompiled() bool {
	return m.Prog == nil && m.Code != nil
}

// Load reads a script. Code files are recognised by their header rather
// than their extension; anything else is parsed as source.
func Load(path string) (*Module, []error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("cannot read file %s: %v", path, err)}
	}

	mod := &Module{
		Name:     ModuleName(path),
		FilePath: path,
		Source:   content,
	}

	if ir.IsCodeFile(content) {
		code, err := ir.ReadCode(bytes.NewReader(content))
		if err != nil {
			return nil, []error{fmt.Errorf("%s: %v", path, err)}
		}
		mod.Code = code
		return mod, nil
	}

	prog, perrs := parser.Parse(bytes.NewReader(content), path)
	if len(perrs) > 0 {
		out := make([]error, len(perrs))
		for i, e := range perrs {
			out[i] = fmt.Errorf("%s: %w", path, e)
		}
		return nil, out
	}
	mod.Prog = prog
	return mod, nil
}

// ModuleName derives a module name from a file path.
func ModuleName(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{SourceExt, CodeExt} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}
	return base
}

// SourceFiles expands path into the scripts it names: a file is returned
// as is, a directory yields its .py files in sorted order.
func SourceFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %v", path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), SourceExt) {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// CodePath returns where the compiled form of a source file is written.
func CodePath(sourcePath string) string {
	return strings.TrimSuffix(sourcePath, SourceExt) + CodeExt
}
