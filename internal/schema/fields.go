// Package schema manipulates risk output-field trees and checks AI
// extractions against them. Every update returns a new tree; inputs are never
// modified.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"hseb5/internal/domain"
)

var ErrPathNotFound = errors.New("field path not found")

// Path addresses a field by the names from the root down.
type Path []string

func (p Path) String() string { return strings.Join(p, ".") }

// Validate checks names are non-empty and unique per level, types are known
// and only object/array fields have children.
func Validate(fields []domain.OutputField) error {
	return validateLevel(fields, nil)
}

func validateLevel(fields []domain.OutputField, prefix Path) error {
	seen := map[string]bool{}
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("field %d under %q has empty name", i, prefix.String())
		}
		at := append(append(Path{}, prefix...), name)
		if seen[name] {
			return fmt.Errorf("duplicate field %s", at)
		}
		seen[name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("field %s has invalid type %q", at, f.Type)
		}
		if len(f.Children) > 0 && f.Type != domain.FieldObject && f.Type != domain.FieldArray {
			return fmt.Errorf("field %s of type %s cannot have children", at, f.Type)
		}
		if err := validateLevel(f.Children, at); err != nil {
			return err
		}
	}
	return nil
}

// Clone deep-copies a field tree.
func Clone(fields []domain.OutputField) []domain.OutputField {
	if fields == nil {
		return nil
	}
	out := make([]domain.OutputField, len(fields))
	for i, f := range fields {
		out[i] = f
		out[i].Children = Clone(f.Children)
	}
	return out
}

// FieldAt returns the field addressed by path.
func FieldAt(fields []domain.OutputField, path Path) (domain.OutputField, error) {
	if len(path) == 0 {
		return domain.OutputField{}, ErrPathNotFound
	}
	for _, f := range fields {
		if f.Name != path[0] {
			continue
		}
		if len(path) == 1 {
			return f, nil
		}
		return FieldAt(f.Children, path[1:])
	}
	return domain.OutputField{}, fmt.Errorf("%w: %s", ErrPathNotFound, path)
}

// AddField appends field under parent (nil parent = root level).
func AddField(fields []domain.OutputField, parent Path, field domain.OutputField) ([]domain.OutputField, error) {
	if len(parent) == 0 {
		for _, f := range fields {
			if f.Name == field.Name {
				return nil, fmt.Errorf("duplicate field %s", field.Name)
			}
		}
		out := Clone(fields)
		return append(out, cloneField(field)), nil
	}
	return update(fields, parent, func(f domain.OutputField) ([]domain.OutputField, error) {
		if f.Type != domain.FieldObject && f.Type != domain.FieldArray {
			return nil, fmt.Errorf("field %s of type %s cannot have children", parent, f.Type)
		}
		children, err := AddField(f.Children, nil, field)
		if err != nil {
			return nil, err
		}
		f.Children = children
		return []domain.OutputField{f}, nil
	})
}

// RemoveField deletes the field addressed by path.
func RemoveField(fields []domain.OutputField, path Path) ([]domain.OutputField, error) {
	return update(fields, path, func(domain.OutputField) ([]domain.OutputField, error) {
		return nil, nil
	})
}

// ReplaceField swaps the field addressed by path for field.
func ReplaceField(fields []domain.OutputField, path Path, field domain.OutputField) ([]domain.OutputField, error) {
	return update(fields, path, func(domain.OutputField) ([]domain.OutputField, error) {
		return []domain.OutputField{cloneField(field)}, nil
	})
}

// update rebuilds the tree with the node at path replaced by fn's result
// (zero or one fields).
func update(fields []domain.OutputField, path Path, fn func(domain.OutputField) ([]domain.OutputField, error)) ([]domain.OutputField, error) {
	if len(path) == 0 {
		return nil, ErrPathNotFound
	}
	out := make([]domain.OutputField, 0, len(fields))
	found := false
	for _, f := range fields {
		if f.Name != path[0] || found {
			out = append(out, cloneField(f))
			continue
		}
		found = true
		if len(path) == 1 {
			repl, err := fn(cloneField(f))
			if err != nil {
				return nil, err
			}
			out = append(out, repl...)
			continue
		}
		children, err := update(f.Children, path[1:], fn)
		if err != nil {
			return nil, err
		}
		f.Children = children
		out = append(out, f)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	return out, nil
}

func cloneField(f domain.OutputField) domain.OutputField {
	f.Children = Clone(f.Children)
	return f
}
