// Package catalog loads the statements procprobe exercises.
//
// Statements come from a directory of .sql files, one statement per file,
// or from a YAML catalog. Catalog entries either carry SQL directly or
// describe a procedure signature, which is rendered to SQL with one typed
// placeholder and one documenting comment per argument. Both forms yield
// ir.Statement values with no parameters inferred yet.
package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/procprobe/internal/ir"
)

// DefaultCategory is used for files at the root of a statement directory
// and for catalog entries without a category.
const DefaultCategory = "general"

// Load reads statements from path, which may be a directory of .sql files,
// a single .sql file, or a YAML catalog.
func Load(path, filter string) ([]ir.Statement, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path, filter)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadCatalog(path, filter)
	case ".sql":
		stmt, err := loadFile(filepath.Dir(path), path)
		if err != nil {
			return nil, err
		}
		ok, err := matches(filter, stmt.Name)
		if err != nil || !ok {
			return nil, err
		}
		return []ir.Statement{stmt}, nil
	default:
		return nil, fmt.Errorf("unsupported statement source %s", path)
	}
}

// LoadDir loads every .sql file under dir whose base name (without
// extension) matches filter. An empty filter matches everything.
// The category is the first directory below dir. Results are sorted by path.
func LoadDir(dir, filter string) ([]ir.Statement, error) {
	var stmts []ir.Statement

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".sql" {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ok, err := matches(filter, name)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		stmt, err := loadFile(dir, path)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load statements from %s: %w", dir, err)
	}

	sort.Slice(stmts, func(i, j int) bool { return stmts[i].Path < stmts[j].Path })
	return stmts, nil
}

func loadFile(root, path string) (ir.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.Statement{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	sql := strings.TrimSpace(string(data))
	if executable(sql) == "" {
		return ir.Statement{}, fmt.Errorf("%s: no executable SQL", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return newStatement(name, categoryFor(root, path), path, sql)
}

func categoryFor(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return DefaultCategory
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0]
}

func matches(filter, name string) (bool, error) {
	if filter == "" {
		return true, nil
	}
	ok, err := filepath.Match(filter, name)
	if err != nil {
		return false, fmt.Errorf("invalid filter pattern: %w", err)
	}
	return ok, nil
}

func newStatement(name, category, path, sql string) (ir.Statement, error) {
	id, err := ir.StatementID(name, sql)
	if err != nil {
		return ir.Statement{}, fmt.Errorf("%s: %w", name, err)
	}
	return ir.Statement{
		ID:       id,
		Name:     name,
		Path:     path,
		Category: category,
		SQL:      sql,
		Kind:     Classify(sql),
	}, nil
}

// Classify reports whether sql is a procedure call or a plain query,
// ignoring leading comments and whitespace.
func Classify(sql string) ir.Kind {
	fields := strings.Fields(executable(sql))
	if len(fields) > 0 && strings.EqualFold(fields[0], "call") {
		return ir.KindCall
	}
	return ir.KindQuery
}

// executable drops full-line comments.
func executable(sql string) string {
	var b strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

// File is a YAML statement catalog.
type File struct {
	Statements []Entry `yaml:"statements"`
}

// Entry is one catalog statement: either SQL, or a signature to render.
type Entry struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category,omitempty"`

	// SQL is used verbatim when set.
	SQL string `yaml:"sql,omitempty"`

	// Schema, Kind and Args describe a signature. Kind is "call" for
	// procedures and "function" for set-returning functions.
	Schema string `yaml:"schema,omitempty"`
	Kind   string `yaml:"kind,omitempty"`
	Args   []Arg  `yaml:"args,omitempty"`
}

// Arg is one signature argument.
type Arg struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
}

const (
	KindCall     = "call"
	KindFunction = "function"
)

// LoadCatalog reads a YAML catalog. Unknown fields are rejected.
func LoadCatalog(path, filter string) ([]ir.Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f File
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	seen := make(map[string]bool, len(f.Statements))
	var stmts []ir.Statement
	for i, e := range f.Statements {
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("statements[%d]: %w", i, err)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("statements[%d]: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true

		ok, err := matches(filter, e.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		sql := strings.TrimSpace(e.SQL)
		if sql == "" {
			sql = Render(e)
		}
		category := e.Category
		if category == "" {
			category = DefaultCategory
		}
		stmt, err := newStatement(e.Name, category, "", sql)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typeRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ .]*(\(\s*\d+(\s*,\s*\d+)?\s*\))?(\[\])?$`)
)

func validateEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(e.SQL) != "" {
		if e.Kind != "" || e.Schema != "" || len(e.Args) > 0 {
			return fmt.Errorf("%s: sql and signature fields are mutually exclusive", e.Name)
		}
		return nil
	}

	if !identRe.MatchString(e.Name) {
		return fmt.Errorf("%s: invalid procedure name", e.Name)
	}
	if e.Schema != "" && !identRe.MatchString(e.Schema) {
		return fmt.Errorf("%s: invalid schema %q", e.Name, e.Schema)
	}
	switch e.Kind {
	case KindCall, KindFunction:
	case "":
		return fmt.Errorf("%s: sql or kind is required", e.Name)
	default:
		return fmt.Errorf("%s: unknown kind %q", e.Name, e.Kind)
	}
	for i, a := range e.Args {
		if a.Name == "" || !identRe.MatchString(a.Name) {
			return fmt.Errorf("%s: args[%d]: invalid name %q", e.Name, i, a.Name)
		}
		if !typeRe.MatchString(strings.TrimSpace(a.Type)) {
			return fmt.Errorf("%s: args[%d]: invalid type %q", e.Name, i, a.Type)
		}
	}
	return nil
}

// Render turns a signature entry into SQL: a comment per argument followed
// by the invocation with one cast placeholder per argument.
//
//	-- $1: p_tenant_id uuid - owning tenant
//	CALL billing.close_invoice($1::uuid)
func Render(e Entry) string {
	var b strings.Builder
	placeholders := make([]string, len(e.Args))
	for i, a := range e.Args {
		typ := strings.ToLower(strings.TrimSpace(a.Type))
		fmt.Fprintf(&b, "-- $%d: %s %s", i+1, a.Name, typ)
		if a.Description != "" {
			fmt.Fprintf(&b, " - %s", strings.ReplaceAll(a.Description, "\n", " "))
		}
		b.WriteByte('\n')
		placeholders[i] = fmt.Sprintf("$%d::%s", i+1, typ)
	}

	target := e.Name
	if e.Schema != "" {
		target = e.Schema + "." + e.Name
	}
	args := strings.Join(placeholders, ", ")
	if e.Kind == KindCall {
		fmt.Fprintf(&b, "CALL %s(%s)", target, args)
	} else {
		fmt.Fprintf(&b, "SELECT * FROM %s(%s)", target, args)
	}
	return b.String()
}
