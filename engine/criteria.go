package engine

import (
	"fmt"
	"strings"

	"reachly/models"
)

// Group operators
const (
	GroupAnd = "and"
	GroupOr  = "or"
	GroupNot = "not"
)

// Leaf operators
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
	OpIn          = "in"
	OpIsEmpty     = "is_empty"
	OpIsNotEmpty  = "is_not_empty"
	OpIsTrue      = "is_true"
	OpIsFalse     = "is_false"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindBool
	kindTag
)

// filterableFields whitelists the contact columns dynamic criteria may
// reference. "tag" is virtual and resolves through contact_tags.
var filterableFields = map[string]fieldKind{
	"email":             kindString,
	"first_name":        kindString,
	"last_name":         kindString,
	"company":           kindString,
	"position":          kindString,
	"industry":          kindString,
	"country":           kindString,
	"city":              kindString,
	"phone":             kindString,
	"website":           kindString,
	"source":            kindString,
	"is_unsubscribed":   kindBool,
	"is_bounced":        kindBool,
	"is_do_not_contact": kindBool,
	"tag":               kindTag,
}

var stringOps = map[string]bool{
	OpEquals: true, OpNotEquals: true, OpContains: true, OpStartsWith: true,
	OpEndsWith: true, OpGreaterThan: true, OpLessThan: true, OpIn: true,
	OpIsEmpty: true, OpIsNotEmpty: true,
}

var boolOps = map[string]bool{OpIsTrue: true, OpIsFalse: true}

var tagOps = map[string]bool{OpEquals: true, OpNotEquals: true, OpContains: true, OpIn: true}

// opNeedsValue reports whether the operator requires a comparison value.
func opNeedsValue(op string) bool {
	switch op {
	case OpIsEmpty, OpIsNotEmpty, OpIsTrue, OpIsFalse:
		return false
	}
	return true
}

// ValidateCriteria walks the tree and collects every problem it finds, so
// the UI can show all of them at once. An empty slice means the tree is
// usable.
func ValidateCriteria(criteria *models.FilterGroup) []string {
	if criteria == nil {
		return []string{"filter_criteria is required"}
	}
	var errs []string
	validateGroup(criteria, "filter_criteria", &errs)
	return errs
}

func validateGroup(g *models.FilterGroup, path string, errs *[]string) {
	switch g.Operator {
	case GroupAnd, GroupOr, GroupNot:
	default:
		*errs = append(*errs, fmt.Sprintf("%s: unknown group operator %q", path, g.Operator))
	}

	if len(g.Conditions) == 0 && len(g.Groups) == 0 {
		*errs = append(*errs, fmt.Sprintf("%s: group has no conditions", path))
	}

	for i, cond := range g.Conditions {
		condPath := fmt.Sprintf("%s.conditions[%d]", path, i)
		kind, ok := filterableFields[cond.Field]
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: unknown field %q", condPath, cond.Field))
			continue
		}

		allowed := stringOps
		switch kind {
		case kindBool:
			allowed = boolOps
		case kindTag:
			allowed = tagOps
		}
		if !allowed[cond.Operator] {
			*errs = append(*errs, fmt.Sprintf("%s: operator %q not valid for field %q", condPath, cond.Operator, cond.Field))
			continue
		}

		if opNeedsValue(cond.Operator) && cond.Value == nil {
			*errs = append(*errs, fmt.Sprintf("%s: operator %q requires a value", condPath, cond.Operator))
			continue
		}
		if cond.Operator == OpIn {
			if vals, ok := cond.Value.([]interface{}); !ok || len(vals) == 0 {
				*errs = append(*errs, fmt.Sprintf("%s: operator \"in\" requires a non-empty list", condPath))
			}
		}
	}

	for i := range g.Groups {
		validateGroup(&g.Groups[i], fmt.Sprintf("%s.groups[%d]", path, i), errs)
	}
}

// compileCriteria turns a validated tree into a SQL fragment plus args,
// ready for a gorm Where on the contacts table.
func compileCriteria(criteria *models.FilterGroup) (string, []interface{}, error) {
	if errs := ValidateCriteria(criteria); len(errs) > 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidCriteria, strings.Join(errs, "; "))
	}
	return compileGroup(criteria)
}

func compileGroup(g *models.FilterGroup) (string, []interface{}, error) {
	var parts []string
	var args []interface{}

	for i := range g.Conditions {
		sql, condArgs, err := compileCondition(&g.Conditions[i])
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, condArgs...)
	}

	for i := range g.Groups {
		sql, subArgs, err := compileGroup(&g.Groups[i])
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		args = append(args, subArgs...)
	}

	joiner := " AND "
	if g.Operator == GroupOr {
		joiner = " OR "
	}
	combined := "(" + strings.Join(parts, joiner) + ")"
	if g.Operator == GroupNot {
		combined = "NOT " + combined
	}
	return combined, args, nil
}

func compileCondition(cond *models.FilterCondition) (string, []interface{}, error) {
	if filterableFields[cond.Field] == kindTag {
		return compileTagCondition(cond)
	}

	col := cond.Field
	switch cond.Operator {
	case OpEquals:
		return col + " = ?", []interface{}{cond.Value}, nil
	case OpNotEquals:
		return col + " <> ?", []interface{}{cond.Value}, nil
	case OpContains:
		return col + " LIKE ?", []interface{}{"%" + fmt.Sprint(cond.Value) + "%"}, nil
	case OpStartsWith:
		return col + " LIKE ?", []interface{}{fmt.Sprint(cond.Value) + "%"}, nil
	case OpEndsWith:
		return col + " LIKE ?", []interface{}{"%" + fmt.Sprint(cond.Value)}, nil
	case OpGreaterThan:
		return col + " > ?", []interface{}{cond.Value}, nil
	case OpLessThan:
		return col + " < ?", []interface{}{cond.Value}, nil
	case OpIn:
		return col + " IN ?", []interface{}{cond.Value}, nil
	case OpIsEmpty:
		return "(" + col + " IS NULL OR " + col + " = '')", nil, nil
	case OpIsNotEmpty:
		return "(" + col + " IS NOT NULL AND " + col + " <> '')", nil, nil
	case OpIsTrue:
		return col + " = ?", []interface{}{true}, nil
	case OpIsFalse:
		return col + " = ?", []interface{}{false}, nil
	}
	return "", nil, fmt.Errorf("%w: operator %q", ErrInvalidCriteria, cond.Operator)
}

func compileTagCondition(cond *models.FilterCondition) (string, []interface{}, error) {
	sub := "id IN (SELECT contact_id FROM contact_tags WHERE deleted_at IS NULL AND "
	switch cond.Operator {
	case OpEquals:
		return sub + "tag = ?)", []interface{}{cond.Value}, nil
	case OpNotEquals:
		return "id NOT IN (SELECT contact_id FROM contact_tags WHERE deleted_at IS NULL AND tag = ?)", []interface{}{cond.Value}, nil
	case OpContains:
		return sub + "tag LIKE ?)", []interface{}{"%" + fmt.Sprint(cond.Value) + "%"}, nil
	case OpIn:
		return sub + "tag IN ?)", []interface{}{cond.Value}, nil
	}
	return "", nil, fmt.Errorf("%w: operator %q not valid for tags", ErrInvalidCriteria, cond.Operator)
}
