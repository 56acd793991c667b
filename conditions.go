package accessctl

import (
	"reflect"
	"time"
)

// ============================================================================
// CONDITION EVALUATION
// ============================================================================

// EvaluatorFunc is a named custom predicate. Conditions of type "custom"
// reference evaluators by name through AccessCondition.Evaluator.
type EvaluatorFunc func(ac *AccessContext) bool

// RegisterEvaluator installs a named custom predicate. Registering the same
// name again replaces the previous predicate.
func (m *Manager) RegisterEvaluator(name string, fn EvaluatorFunc) {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()
	m.evaluators[name] = fn
}

func (m *Manager) lookupEvaluator(name string) (EvaluatorFunc, bool) {
	m.evalMu.RLock()
	defer m.evalMu.RUnlock()
	fn, ok := m.evaluators[name]
	return fn, ok
}

// evaluateConditions applies every condition as a logical AND. An empty set
// means no restriction.
//
// Unsupported condition types and unsupported time/location fields evaluate
// true (permissive pass-through), while an unrecognized comparison operator
// evaluates false. Both halves of that asymmetry are load-bearing for
// compatibility with existing role and policy data; see compareValue.
func (m *Manager) evaluateConditions(conds []AccessCondition, ac *AccessContext) bool {
	for _, cond := range conds {
		if !m.evaluateCondition(cond, ac) {
			return false
		}
	}
	return true
}

func (m *Manager) evaluateCondition(cond AccessCondition, ac *AccessContext) bool {
	switch cond.Type {
	case ConditionOwnership:
		// an unresolved owner never matches, even for an empty user id
		return ac.ResourceOwner != "" && ac.ResourceOwner == ac.UserID
	case ConditionTime:
		if cond.Field != "hour" {
			return true
		}
		return compareValue(time.Now().Hour(), cond.Operator, cond.Value)
	case ConditionLocation:
		if cond.Field != "ip" {
			return true
		}
		if ac.IPAddress == "" {
			return true
		}
		return compareValue(ac.IPAddress, cond.Operator, cond.Value)
	case ConditionAttribute:
		var actual any
		if ac.Metadata != nil {
			actual = ac.Metadata[cond.Field]
		}
		return compareValue(actual, cond.Operator, cond.Value)
	case ConditionCustom:
		if cond.Evaluator == "" {
			return true
		}
		fn, ok := m.lookupEvaluator(cond.Evaluator)
		if !ok {
			return true
		}
		return fn(ac)
	default:
		return true
	}
}

// compareValue applies an operator between an actual and an expected value.
// Numbers compare numerically across int/uint/float representations, strings
// lexically. An unknown operator returns false: malformed comparisons fail
// closed even though unknown condition types fail open.
func compareValue(actual any, op CompareOperator, expected any) bool {
	switch op {
	case OpEquals:
		return equalValues(actual, expected)
	case OpNotEquals:
		return !equalValues(actual, expected)
	case OpGreaterThan:
		c, ok := orderedCompare(actual, expected)
		return ok && c > 0
	case OpLessThan:
		c, ok := orderedCompare(actual, expected)
		return ok && c < 0
	case OpIn:
		return valueIn(actual, expected)
	case OpNotIn:
		ok, isList := valueInList(actual, expected)
		return isList && !ok
	default:
		return false
	}
}

func equalValues(a, b any) bool {
	if af, aok := toFloat64(a); aok {
		if bf, bok := toFloat64(b); bok {
			return af == bf
		}
		return false
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as == bs
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// orderedCompare returns -1/0/1 for comparable pairs. Mixed or unordered
// types report ok=false, which the calling operator treats as no match.
func orderedCompare(a, b any) (int, bool) {
	if af, aok := toFloat64(a); aok {
		bf, bok := toFloat64(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case as < bs:
		return -1, true
	case as > bs:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func valueIn(actual, expected any) bool {
	ok, isList := valueInList(actual, expected)
	return isList && ok
}

// valueInList reports whether actual is an element of expected and whether
// expected is a list at all. A non-list expected fails closed for both
// membership operators.
func valueInList(actual, expected any) (found, isList bool) {
	rv := reflect.ValueOf(expected)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return false, false
	}
	for i := 0; i < rv.Len(); i++ {
		if equalValues(actual, rv.Index(i).Interface()) {
			return true, true
		}
	}
	return false, true
}
