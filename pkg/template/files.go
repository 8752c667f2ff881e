package template

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/opal-lang/weave/core/errors"
)

// ParseFiles creates a family from the named files of fs. Each file's base
// name becomes its template name; the first file's template is returned.
func ParseFiles(fs afero.Fs, filenames ...string) (*Template, error) {
	return parseFiles(nil, fs, filenames...)
}

// ParseFiles parses the named files into t's family. A file whose base name
// equals t's name becomes t's body.
func (t *Template) ParseFiles(fs afero.Fs, filenames ...string) (*Template, error) {
	t.init()
	return parseFiles(t, fs, filenames...)
}

func parseFiles(t *Template, fs afero.Fs, filenames ...string) (*Template, error) {
	if len(filenames) == 0 {
		return nil, errors.Errorf("template: no files named in call to ParseFiles")
	}
	for _, filename := range filenames {
		b, err := afero.ReadFile(fs, filename)
		if err != nil {
			return nil, errors.Wrapf(err, "template: read %s", filename)
		}
		name := filepath.Base(filename)
		if t == nil {
			t = New(name)
		}
		tmpl := t
		if name != t.Name() {
			tmpl = t.New(name)
		}
		if _, err := tmpl.Parse(string(b)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ParseGlob creates a family from the files of fs matching pattern, as
// ParseFiles would.
func ParseGlob(fs afero.Fs, pattern string) (*Template, error) {
	return parseGlob(nil, fs, pattern)
}

// ParseGlob parses the files matching pattern into t's family.
func (t *Template) ParseGlob(fs afero.Fs, pattern string) (*Template, error) {
	t.init()
	return parseGlob(t, fs, pattern)
}

func parseGlob(t *Template, fs afero.Fs, pattern string) (*Template, error) {
	filenames, err := afero.Glob(fs, pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "template: glob %s", pattern)
	}
	if len(filenames) == 0 {
		return nil, errors.Errorf("template: pattern matches no files: %#q", pattern)
	}
	return parseFiles(t, fs, filenames...)
}
