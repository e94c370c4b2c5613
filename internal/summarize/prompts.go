package summarize

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"text/template"

	errs "venue-rails/pkg/errors"
)

//go:embed templates/*.txt.tmpl
var promptsFS embed.FS

// promptSet holds the compiled prompt templates. Compiled once at startup;
// variants can be added as new files (e.g. summarize_user@v2.txt.tmpl).
type promptSet struct {
	tpls map[string]*template.Template
}

func loadPrompts() (*promptSet, error) {
	ps := &promptSet{tpls: make(map[string]*template.Template)}

	sub, err := fs.Sub(promptsFS, "templates")
	if err != nil {
		return nil, errs.NewBiz("summarize.loadPrompts", "open embedded templates", err)
	}
	err = fs.WalkDir(sub, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".txt.tmpl") {
			return nil
		}
		b, rerr := fs.ReadFile(sub, p)
		if rerr != nil {
			return fmt.Errorf("read template %s: %w", p, rerr)
		}
		name := strings.TrimSuffix(filepath.Base(p), ".txt.tmpl")
		tpl, perr := template.New(name).Parse(string(b))
		if perr != nil {
			return fmt.Errorf("parse template %s: %w", p, perr)
		}
		ps.tpls[name] = tpl
		return nil
	})
	if err != nil {
		return nil, errs.NewBiz("summarize.loadPrompts", "load prompt templates", err)
	}
	return ps, nil
}

func (ps *promptSet) render(name string, data any) (string, error) {
	tpl, ok := ps.tpls[name]
	if !ok {
		return "", errs.NewValidation("summarize.render", fmt.Sprintf("prompt template not found: %s", name), nil)
	}
	var sb strings.Builder
	if err := tpl.Execute(&sb, data); err != nil {
		return "", errs.NewBiz("summarize.render", fmt.Sprintf("execute template %s", name), err)
	}
	return sb.String(), nil
}
