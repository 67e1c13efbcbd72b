package fat

import (
	"strings"

	"github.com/dargueta/disko/errors"
)

// Path is the minimal implementation of the Path collaborator specified at
// its interface only (spec §6): it splits a string on '/' or '\' into an
// ordered sequence of intermediate directory components followed by a
// terminal name. It is intentionally stdlib-only -- see DESIGN.md, this is
// one of the components spec §1 names as an external collaborator, not part
// of the core's own domain logic.
type Path struct {
	components []string
	name       string
}

// NewPath parses s into its directory components and terminal name.
func NewPath(s string) Path {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '\\' })
	if len(parts) == 0 {
		return Path{}
	}
	return Path{components: parts[:len(parts)-1], name: parts[len(parts)-1]}
}

// Components returns the ordered sequence of intermediate directory names.
func (p Path) Components() []string { return p.components }

// Name returns the final path component.
func (p Path) Name() string { return p.name }

// Resolve walks from dir through each intermediate component, returning the
// Dir that should contain Name(), or the error from the first failed
// lookup.
func (p Path) Resolve(fs *Fs, dir *Dir) (*Dir, error) {
	current := dir
	for _, component := range p.components {
		entry, err := current.FindDirEntry(component)
		if err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			return nil, errors.ErrNotADirectory.WithMessage(component)
		}
		current = fs.OpenDir(entry.Short.FirstCluster())
	}
	return current, nil
}
