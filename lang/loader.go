package lang

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/hotpatch/errors"
	"github.com/wippyai/hotpatch/toolchain"
)

// FileExt is the source file extension searched for imports.
const FileExt = ".hp"

// ModuleName derives a module name from a file name.
func ModuleName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "main"
	}
	return base
}

type loader struct {
	tc     *Toolchain
	search []string
	loaded map[string]*toolchain.Module
	stack  []string
}

func (tc *Toolchain) loadModule(src toolchain.Source, search []string) (*toolchain.Module, error) {
	if src.Name == "" {
		src.Name = ModuleName(src.Filename)
	}
	l := &loader{tc: tc, search: search, loaded: make(map[string]*toolchain.Module)}
	return l.load(src)
}

func (l *loader) load(src toolchain.Source) (*toolchain.Module, error) {
	for i, name := range l.stack {
		if name == src.Name {
			cycle := append(append([]string(nil), l.stack[i:]...), src.Name)
			return nil, errors.New(errors.PhaseLoad, errors.KindSemantic).
				Path(src.Filename).
				Detail("import cycle: %s", strings.Join(cycle, " -> ")).
				Build()
		}
	}
	if m, ok := l.loaded[src.Name]; ok {
		return m, nil
	}

	parsed, err := l.tc.Parse(src.Text)
	if err != nil {
		return nil, withPath(err, src.Filename)
	}
	tree := parsed.(*Tree)

	l.stack = append(l.stack, src.Name)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	mod := &toolchain.Module{Source: src, Tree: tree}
	imports := make(map[string]*toolchain.Namespace, len(tree.mod.Imports))
	for _, imp := range tree.mod.Imports {
		dep, err := l.resolve(imp.Name, src.Filename)
		if err != nil {
			if e, ok := err.(*errors.Error); ok && e.Line == 0 {
				e.Line = imp.Line
			}
			return nil, err
		}
		m, err := l.load(dep)
		if err != nil {
			return nil, err
		}
		mod.Imports = append(mod.Imports, m)
		imports[imp.Name] = m.Namespace
	}

	ns, err := analyzeModule(src.Name, tree, imports)
	if err != nil {
		return nil, withPath(err, src.Filename)
	}
	mod.Namespace = ns
	l.loaded[src.Name] = mod

	l.tc.logger.Debug("module loaded",
		zap.String("module", src.Name),
		zap.String("file", src.Filename),
		zap.Int("imports", len(mod.Imports)))
	return mod, nil
}

// resolve finds an imported module next to the importing file first, then
// in the search paths in order.
func (l *loader) resolve(name, from string) (toolchain.Source, error) {
	var dirs []string
	if from != "" {
		dirs = append(dirs, filepath.Dir(from))
	}
	dirs = append(dirs, l.search...)

	for _, dir := range dirs {
		path := filepath.Join(dir, name+FileExt)
		text, err := os.ReadFile(path)
		if err == nil {
			return toolchain.Source{Name: name, Filename: path, Text: string(text)}, nil
		}
		if !stderrors.Is(err, os.ErrNotExist) {
			return toolchain.Source{}, errors.Load("read "+path, err)
		}
	}
	return toolchain.Source{}, errors.New(errors.PhaseLoad, errors.KindNotFound).
		Symbol(name).
		Path(from).
		Detail("module not found in %s", strings.Join(dirs, ", ")).
		Build()
}

func withPath(err error, filename string) error {
	if e, ok := err.(*errors.Error); ok && filename != "" && len(e.Path) == 0 {
		e.Path = []string{filename}
	}
	return err
}
