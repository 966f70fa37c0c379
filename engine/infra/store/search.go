package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/search"
	"github.com/docbed/docbed/engine/vfile"
)

// Scroll runs a DocsQuery against the vfiles table. Collection scoping
// joins through vfile_collections; metadata filters compile to JSONB
// containment on the info column.
func (s *Store) Scroll(ctx context.Context, q search.DocsQuery) ([]*vfile.VFile, error) {
	q = q.Normalized()
	columns := make([]string, len(vfileColumns))
	for i, col := range vfileColumns {
		columns[i] = "v." + col
	}
	builder := squirrel.Select(columns...).
		From("vfiles v").
		PlaceholderFormat(squirrel.Dollar)

	if q.CollectionName != "" || !q.CollectionID.IsZero() {
		builder = builder.
			Join("vfile_collections vc ON vc.vfile_id = v.id").
			Join("collections c ON c.id = vc.collection_id")
		if !q.CollectionID.IsZero() {
			builder = builder.Where(squirrel.Eq{"c.id": q.CollectionID})
		} else {
			builder = builder.Where(squirrel.Eq{"c.collection_name": q.CollectionName})
		}
	}
	if q.DateGT != nil {
		builder = builder.Where(squirrel.Gt{"v.source_created_at": *q.DateGT})
	}
	if q.DateLT != nil {
		builder = builder.Where(squirrel.Lt{"v.source_created_at": *q.DateLT})
	}
	if len(q.IDs) > 0 {
		expr, args := subjectTupleIn(q.IDs)
		builder = builder.Where(squirrel.Expr(expr, args...))
	}
	if len(q.Filters) > 0 {
		filter, err := jsonbFilter(q.Filters)
		if err != nil {
			return nil, fmt.Errorf("building docs filter: %w", err)
		}
		builder = builder.Where(filter)
	}
	direction := "ASC"
	if q.Order == search.OrderDesc {
		direction = "DESC"
	}
	builder = builder.
		OrderBy("v.source_created_at " + direction).
		Limit(uint64(q.Limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building docs query: %w", err)
	}
	var files []*vfile.VFile
	if err := pgxscan.Select(ctx, s.db, &files, query, args...); err != nil {
		return nil, fmt.Errorf("scanning docs query: %w", err)
	}
	return files, nil
}

// subjectTupleIn builds a row-value IN clause over (subject_type,
// subject_id) pairs.
func subjectTupleIn(ids []search.SubjectRef) (string, []any) {
	tuples := make([]string, len(ids))
	args := make([]any, 0, len(ids)*2)
	for i, ref := range ids {
		tuples[i] = "(?, ?)"
		args = append(args, ref.SubjectType, ref.SubjectID)
	}
	return "(v.subject_type, v.subject_id) IN (" + strings.Join(tuples, ", ") + ")", args
}

// jsonbFilter compiles a filter tree into SQL over v.info. The reserved
// keys and, or, not, exists and not_exists combine subtrees; everything
// else is a containment match. Key existence uses jsonb_exists so the
// operator does not collide with positional placeholders.
func jsonbFilter(filters map[string]any) (squirrel.Sqlizer, error) {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var clauses squirrel.And
	plain := make(map[string]any)
	for _, key := range keys {
		value := filters[key]
		switch key {
		case "and", "or":
			subtrees, err := filterList(key, value)
			if err != nil {
				return nil, err
			}
			combined := make([]squirrel.Sqlizer, 0, len(subtrees))
			for _, subtree := range subtrees {
				sub, err := jsonbFilter(subtree)
				if err != nil {
					return nil, err
				}
				combined = append(combined, sub)
			}
			if key == "and" {
				clauses = append(clauses, squirrel.And(combined))
			} else {
				clauses = append(clauses, squirrel.Or(combined))
			}
		case "not":
			subtree, ok := value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: filter %q wants an object", core.ErrInvalidConfig, key)
			}
			sub, err := jsonbFilter(subtree)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, notExpr{sub})
		case "exists", "not_exists":
			keys, err := filterKeys(key, value)
			if err != nil {
				return nil, err
			}
			for _, name := range keys {
				expr := squirrel.Expr("jsonb_exists(v.info, ?)", name)
				if key == "exists" {
					clauses = append(clauses, expr)
				} else {
					clauses = append(clauses, notExpr{expr})
				}
			}
		default:
			plain[key] = value
		}
	}
	if len(plain) > 0 {
		raw, err := json.Marshal(plain)
		if err != nil {
			return nil, fmt.Errorf("encoding containment filter: %w", err)
		}
		clauses = append(clauses, squirrel.Expr("v.info @> ?::jsonb", string(raw)))
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("%w: empty filter", core.ErrInvalidConfig)
	}
	return clauses, nil
}

func filterList(key string, value any) ([]map[string]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: filter %q wants a list", core.ErrInvalidConfig, key)
	}
	subtrees := make([]map[string]any, 0, len(items))
	for _, item := range items {
		subtree, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: filter %q wants a list of objects", core.ErrInvalidConfig, key)
		}
		subtrees = append(subtrees, subtree)
	}
	return subtrees, nil
}

func filterKeys(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		keys := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: filter %q wants key names", core.ErrInvalidConfig, key)
			}
			keys = append(keys, name)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("%w: filter %q wants key names", core.ErrInvalidConfig, key)
	}
}

// notExpr negates a wrapped clause.
type notExpr struct {
	inner squirrel.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	sql, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}
