package bentofile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/crackcomm/go-gitignore"
	"github.com/emirpasic/gods/sets/treeset"
	"github.com/spf13/afero"
)

// Compile resolves the include and exclude patterns against the build
// context rooted at ctx and returns the relative paths of the files to
// package, sorted and duplicate free. Patterns follow gitignore rules: a
// leading / anchors a pattern to the context root, anything else matches at
// any depth, and excludes always win. Patterns from a .bentoignore file at
// the context root are extra excludes.
func (c *Config) Compile(ctx afero.Fs) ([]string, error) {
	includeAll := len(c.Include) == 0
	include, _ := ignore.CompileIgnoreLines(c.Include...)

	lines := append([]string(nil), c.Exclude...)
	extra, err := ignoreLines(ctx)
	if err != nil {
		return nil, err
	}
	exclude, _ := ignore.CompileIgnoreLines(append(lines, extra...)...)

	set := treeset.NewWithStringComparator()
	err = afero.Walk(ctx, "/", func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if rel == "" {
			return nil
		}
		if !includeAll && !include.MatchesPath(rel) {
			return nil
		}
		if exclude.MatchesPath(rel) {
			return nil
		}
		set.Add(rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, set.Size())
	set.Each(func(_ int, v interface{}) {
		files = append(files, v.(string))
	})
	return files, nil
}

// LocateModule resolves the module part of the service entrypoint to a file
// in the build context: file references are taken literally, dotted module
// references are tried as a .py file and as a package directory. A reference
// that resolves to nothing fails the build.
func (c *Config) LocateModule(ctx afero.Fs) (string, error) {
	mod, _, ok := splitEntrypoint(c.Service)
	if !ok {
		return "", fmt.Errorf("%w: service entrypoint %q must be of the form module:attribute", ErrBuild, c.Service)
	}
	candidates := []string{mod}
	if !strings.HasSuffix(mod, ".py") && !strings.Contains(mod, "/") {
		p := strings.ReplaceAll(mod, ".", "/")
		candidates = []string{p + ".py", p + "/__init__.py"}
	}
	for _, name := range candidates {
		ok, err := afero.Exists(ctx, "/"+name)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: service module %q not found in the build context", ErrBuild, mod)
}

// ignoreLines reads the .bentoignore file at the context root, skipping
// blank lines and comments. A missing file is not an error.
func ignoreLines(ctx afero.Fs) ([]string, error) {
	f, err := ctx.Open("/" + IgnoreFilename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
