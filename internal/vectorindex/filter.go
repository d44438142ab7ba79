package vectorindex

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"docchat/internal/model"
)

const (
	filterOpAnd = "$and"
	filterOpOr  = "$or"
	filterOpNot = "$not"
	filterOpIn  = "$in"
	filterOpEq  = "$eq"
	filterOpNe  = "$ne"
	filterOpGt  = "$gt"
	filterOpGte = "$gte"
	filterOpLt  = "$lt"
	filterOpLte = "$lte"
)

// Filter is a parsed metadata predicate over chunk attributes.
// A nil *Filter matches everything.
type Filter struct {
	op       string
	field    string
	value    any
	values   []any
	children []*Filter
}

// ParseFilter validates a map-form filter against the attribute schema.
// Bare field values are shorthand for $eq and sibling keys are combined with AND.
func ParseFilter(raw map[string]any, schema []model.Attribute) (*Filter, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	types := make(map[string]string, len(schema))
	for _, a := range schema {
		types[a.Name] = a.Type
	}
	return parseFilterMap(raw, types)
}

func parseFilterMap(raw map[string]any, types map[string]string) (*Filter, error) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []*Filter
	for _, key := range keys {
		value := raw[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}

		if strings.HasPrefix(k, "$") {
			switch strings.ToLower(k) {
			case filterOpAnd, filterOpOr:
				items, err := toObjectSlice(value)
				if err != nil || len(items) == 0 {
					return nil, filterErr(FilterErrorValidation,
						fmt.Sprintf("operator %s expects a non-empty array of objects", k), err)
				}
				node := &Filter{op: strings.ToLower(k)}
				for _, item := range items {
					sub, err := parseFilterMap(item, types)
					if err != nil {
						return nil, err
					}
					if sub != nil {
						node.children = append(node.children, sub)
					}
				}
				if len(node.children) > 0 {
					parts = append(parts, node)
				}
			case filterOpNot:
				item, ok := value.(map[string]any)
				if !ok {
					return nil, filterErr(FilterErrorValidation,
						fmt.Sprintf("operator %s expects an object", filterOpNot), nil)
				}
				sub, err := parseFilterMap(item, types)
				if err != nil {
					return nil, err
				}
				if sub != nil {
					parts = append(parts, &Filter{op: filterOpNot, children: []*Filter{sub}})
				}
			default:
				return nil, filterErr(FilterErrorUnsupported,
					fmt.Sprintf("unsupported top-level filter operator %q", k), nil)
			}
			continue
		}

		typ, ok := types[k]
		if !ok {
			return nil, filterErr(FilterErrorUnknownAttribute,
				fmt.Sprintf("attribute %q is not filterable", k), nil)
		}
		fieldParts, err := parseFieldFilter(k, typ, value)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fieldParts...)
	}

	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	default:
		return &Filter{op: filterOpAnd, children: parts}, nil
	}
}

func parseFieldFilter(field, typ string, value any) ([]*Filter, error) {
	ops, isMap := value.(map[string]any)
	if !isMap {
		scalar, err := coerceScalar(field, typ, value)
		if err != nil {
			return nil, err
		}
		return []*Filter{{op: filterOpEq, field: field, value: scalar}}, nil
	}
	if len(ops) == 0 {
		return nil, filterErr(FilterErrorValidation,
			fmt.Sprintf("field %q has empty operator map", field), nil)
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	out := make([]*Filter, 0, len(names))
	for _, name := range names {
		op := strings.ToLower(strings.TrimSpace(name))
		switch op {
		case filterOpEq, filterOpNe, filterOpGt, filterOpGte, filterOpLt, filterOpLte:
			scalar, err := coerceScalar(field, typ, ops[name])
			if err != nil {
				return nil, err
			}
			out = append(out, &Filter{op: op, field: field, value: scalar})
		case filterOpIn:
			items, ok := ops[name].([]any)
			if !ok || len(items) == 0 {
				return nil, filterErr(FilterErrorValidation,
					fmt.Sprintf("operator %s for field %q expects a non-empty array", filterOpIn, field), nil)
			}
			values := make([]any, 0, len(items))
			for _, item := range items {
				scalar, err := coerceScalar(field, typ, item)
				if err != nil {
					return nil, err
				}
				values = append(values, scalar)
			}
			out = append(out, &Filter{op: filterOpIn, field: field, values: values})
		default:
			return nil, filterErr(FilterErrorUnsupported,
				fmt.Sprintf("unsupported operator %q for field %q", name, field), nil)
		}
	}
	return out, nil
}

// coerceScalar returns a string for string attributes and an int for integer attributes.
func coerceScalar(field, typ string, value any) (any, error) {
	switch typ {
	case model.AttributeInteger:
		n, ok := toInt(value)
		if !ok {
			return nil, filterErr(FilterErrorValidation,
				fmt.Sprintf("field %q expects an integer, got %T", field, value), nil)
		}
		return n, nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, filterErr(FilterErrorValidation,
				fmt.Sprintf("field %q expects a string, got %T", field, value), nil)
		}
		return s, nil
	}
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func toObjectSlice(value any) ([]map[string]any, error) {
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", value)
	}
	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, not an object", i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Match evaluates the filter against chunk attributes.
func (f *Filter) Match(attrs map[string]any) bool {
	if f == nil {
		return true
	}
	switch f.op {
	case filterOpAnd:
		for _, c := range f.children {
			if !c.Match(attrs) {
				return false
			}
		}
		return true
	case filterOpOr:
		for _, c := range f.children {
			if c.Match(attrs) {
				return true
			}
		}
		return false
	case filterOpNot:
		return !f.children[0].Match(attrs)
	}

	actual, present := attrs[f.field]
	switch f.op {
	case filterOpNe:
		return !present || compare(actual, f.value) != 0
	case filterOpIn:
		if !present {
			return false
		}
		for _, v := range f.values {
			if compare(actual, v) == 0 {
				return true
			}
		}
		return false
	}
	if !present {
		return false
	}
	c := compare(actual, f.value)
	switch f.op {
	case filterOpEq:
		return c == 0
	case filterOpGt:
		return c != incomparable && c > 0
	case filterOpGte:
		return c != incomparable && c >= 0
	case filterOpLt:
		return c != incomparable && c < 0
	case filterOpLte:
		return c != incomparable && c <= 0
	}
	return false
}

const incomparable = 2

func compare(a, b any) int {
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		if !ok {
			return incomparable
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			return incomparable
		}
		return strings.Compare(av, bv)
	}
	return incomparable
}

// SQL renders the filter as a WHERE fragment. Column names come from the
// validated schema, values are always bound parameters.
func (f *Filter) SQL() (string, []any) {
	if f == nil {
		return "", nil
	}
	switch f.op {
	case filterOpAnd, filterOpOr:
		joiner := " AND "
		if f.op == filterOpOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(f.children))
		var args []any
		for _, c := range f.children {
			s, a := c.SQL()
			parts = append(parts, s)
			args = append(args, a...)
		}
		return "(" + strings.Join(parts, joiner) + ")", args
	case filterOpNot:
		s, a := f.children[0].SQL()
		return "NOT " + s, a
	case filterOpIn:
		return fmt.Sprintf("(%s IN ?)", f.field), []any{f.values}
	case filterOpNe:
		return fmt.Sprintf("(%s IS NULL OR %s <> ?)", f.field, f.field), []any{f.value}
	}
	sqlOps := map[string]string{
		filterOpEq:  "=",
		filterOpGt:  ">",
		filterOpGte: ">=",
		filterOpLt:  "<",
		filterOpLte: "<=",
	}
	return fmt.Sprintf("(%s %s ?)", f.field, sqlOps[f.op]), []any{f.value}
}

// String is a compact form used in logs.
func (f *Filter) String() string {
	if f == nil {
		return "<none>"
	}
	switch f.op {
	case filterOpAnd, filterOpOr:
		parts := make([]string, 0, len(f.children))
		for _, c := range f.children {
			parts = append(parts, c.String())
		}
		return f.op + "(" + strings.Join(parts, ", ") + ")"
	case filterOpNot:
		return "$not(" + f.children[0].String() + ")"
	case filterOpIn:
		return fmt.Sprintf("%s $in %v", f.field, f.values)
	}
	return fmt.Sprintf("%s %s %v", f.field, f.op, f.value)
}
