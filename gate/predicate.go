package gate

import "strings"

// Context is the routing/tag context a gate's `when` predicate evaluates
// against.
type Context struct {
	Tags []string
	Role string
	Team string
}

func (c Context) hasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// evalWhen evaluates a gate's `when` predicate string against ctx. An empty
// predicate is always true (the gate is unconditionally active). Supported
// grammar, matching the small vocabulary spec.md describes
// ("a boolean predicate over task routing/tags"):
//
//	(empty)                      -> true
//	true | false                 -> literal
//	tags.includes('x')           -> ctx has tag x
//	!tags.includes('x')          -> ctx does not have tag x
//	role == 'x'                  -> ctx.Role == x
//	team == 'x'                  -> ctx.Team == x
func evalWhen(expr string, ctx Context) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "true" {
		return true
	}
	if expr == "false" {
		return false
	}

	negate := false
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(strings.TrimPrefix(expr, "!"))
	}

	result := evalAtom(expr, ctx)
	if negate {
		return !result
	}
	return result
}

func evalAtom(expr string, ctx Context) bool {
	switch {
	case strings.HasPrefix(expr, "tags.includes("):
		arg := extractArg(expr, "tags.includes(")
		return ctx.hasTag(arg)
	case strings.HasPrefix(expr, "role =="):
		return ctx.Role == extractQuoted(strings.TrimPrefix(expr, "role =="))
	case strings.HasPrefix(expr, "team =="):
		return ctx.Team == extractQuoted(strings.TrimPrefix(expr, "team =="))
	default:
		// Unrecognized predicates fail closed: a misconfigured `when`
		// clause should not silently activate a gate.
		return false
	}
}

func extractArg(expr, prefix string) string {
	inner := strings.TrimPrefix(expr, prefix)
	inner = strings.TrimSuffix(inner, ")")
	return extractQuoted(inner)
}

func extractQuoted(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `'"`)
	return s
}
