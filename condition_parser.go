package accessctl

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseConditionExpr parses the compact condition syntax used by the text
// config format into a native AccessCondition. The supported forms cover the
// condition types the evaluator knows:
//
//	owner                  ownership check
//	custom:<name>          named evaluator
//	hour>9, hour<18        time window bounds
//	ip@10.0.0.1,10.0.0.2   location membership ("!@" negates)
//	dept=engineering       attribute equality ("!=", ">", "<" as expected)
//	region@eu,us           attribute membership
//
// The field picks the condition type: "hour" is a time condition, "ip" a
// location condition, anything else an attribute condition. Values that parse
// as numbers are kept numeric so they compare numerically.
func ParseConditionExpr(s string) (AccessCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AccessCondition{}, fmt.Errorf("empty condition")
	}
	if s == "owner" {
		return AccessCondition{Type: ConditionOwnership}, nil
	}
	if name, ok := strings.CutPrefix(s, "custom:"); ok {
		if name == "" {
			return AccessCondition{}, fmt.Errorf("custom condition needs an evaluator name")
		}
		return AccessCondition{Type: ConditionCustom, Evaluator: name}, nil
	}

	i := strings.IndexFunc(s, func(r rune) bool { return !isFieldRune(r) })
	if i <= 0 {
		return AccessCondition{}, fmt.Errorf("unsupported condition syntax: %s", s)
	}
	field, rest := s[:i], s[i:]

	var op CompareOperator
	var raw string
	switch {
	case strings.HasPrefix(rest, "!@"):
		op, raw = OpNotIn, rest[2:]
	case strings.HasPrefix(rest, "@"):
		op, raw = OpIn, rest[1:]
	case strings.HasPrefix(rest, "!="):
		op, raw = OpNotEquals, rest[2:]
	case strings.HasPrefix(rest, "=="):
		op, raw = OpEquals, rest[2:]
	case strings.HasPrefix(rest, "="):
		op, raw = OpEquals, rest[1:]
	case strings.HasPrefix(rest, ">"):
		op, raw = OpGreaterThan, rest[1:]
	case strings.HasPrefix(rest, "<"):
		op, raw = OpLessThan, rest[1:]
	default:
		return AccessCondition{}, fmt.Errorf("unsupported condition syntax: %s", s)
	}
	if raw == "" {
		return AccessCondition{}, fmt.Errorf("condition %q has no value", s)
	}

	cond := AccessCondition{
		Type:     conditionTypeForField(field),
		Field:    field,
		Operator: op,
	}
	if op == OpIn || op == OpNotIn {
		cond.Value = parseScalarList(raw)
	} else {
		cond.Value = parseScalar(raw)
	}
	return cond, nil
}

// ParseConditionExprs parses a ";"-separated list of condition expressions.
func ParseConditionExprs(s string) ([]AccessCondition, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ";")
	conds := make([]AccessCondition, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		cond, err := ParseConditionExpr(part)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

// FormatConditionExpr renders a condition back into the compact syntax.
// Conditions that have no text form render empty.
func FormatConditionExpr(c AccessCondition) string {
	switch c.Type {
	case ConditionOwnership:
		return "owner"
	case ConditionCustom:
		if c.Evaluator == "" {
			return ""
		}
		return "custom:" + c.Evaluator
	case ConditionTime, ConditionLocation, ConditionAttribute:
		sym, ok := operatorSymbols[c.Operator]
		if !ok || c.Field == "" {
			return ""
		}
		return c.Field + sym + formatScalar(c.Value)
	default:
		return ""
	}
}

// FormatConditionExprs renders a condition list as a ";"-separated string,
// skipping conditions with no text form.
func FormatConditionExprs(conds []AccessCondition) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		if s := FormatConditionExpr(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ";")
}

var operatorSymbols = map[CompareOperator]string{
	OpEquals:      "=",
	OpNotEquals:   "!=",
	OpGreaterThan: ">",
	OpLessThan:    "<",
	OpIn:          "@",
	OpNotIn:       "!@",
}

func conditionTypeForField(field string) ConditionType {
	switch field {
	case "hour":
		return ConditionTime
	case "ip":
		return ConditionLocation
	default:
		return ConditionAttribute
	}
}

func isFieldRune(r rune) bool {
	return r == '_' || r == '.' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func parseScalar(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func parseScalarList(s string) []any {
	parts := strings.Split(s, ",")
	values := make([]any, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		values = append(values, parseScalar(part))
	}
	return values
}

func formatScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, formatScalar(item))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	default:
		if f, ok := toFloat64(v); ok {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return fmt.Sprint(v)
	}
}
