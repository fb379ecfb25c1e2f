package runner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

// assert_condition accepts only the simple-expression grammar
//
//	expr := atom (OP atom)?
//	atom := number | quotedString | bareword
//	OP   := == | != | < | <= | > | >=
//
// References have already been substituted by the time the condition
// reaches this evaluator, so a bareword atom is the resolved form of a
// reference. Anything outside the grammar is a parse error, never a
// silent pass-through. Accepted comparisons are evaluated through
// expr-lang.

var conditionOps = []string{"==", "!=", "<=", ">=", "<", ">"}

type condAtom struct {
	text  string
	num   float64
	isNum bool
}

// evalCondition parses and evaluates one condition string.
func evalCondition(src string) (bool, error) {
	left, op, right, err := splitCondition(src)
	if err != nil {
		return false, err
	}
	if op == "" {
		return truthy(left), nil
	}

	env := map[string]any{}
	if left.isNum && right.isNum {
		env["a"], env["b"] = left.num, right.num
	} else {
		// Mixed or non-numeric operands compare as strings
		// (lexicographically for the ordered operators).
		env["a"], env["b"] = left.text, right.text
	}

	program, err := expr.Compile("a "+op+" b", expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("eval condition %q: %w", src, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not return bool (got %T)", src, out)
	}
	return result, nil
}

// splitCondition tokenizes the grammar: one atom, or atom OP atom.
func splitCondition(src string) (left condAtom, op string, right condAtom, err error) {
	s := strings.TrimSpace(src)
	if s == "" {
		err = fmt.Errorf("empty condition")
		return
	}

	left, rest, err := takeAtom(s)
	if err != nil {
		return
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return left, "", condAtom{}, nil
	}

	for _, candidate := range conditionOps {
		if strings.HasPrefix(rest, candidate) {
			op = candidate
			rest = strings.TrimSpace(rest[len(candidate):])
			break
		}
	}
	if op == "" {
		err = fmt.Errorf("condition %q: expected operator, got %q", src, rest)
		return
	}
	right, rest, err = takeAtom(rest)
	if err != nil {
		return
	}
	if strings.TrimSpace(rest) != "" {
		err = fmt.Errorf("condition %q: trailing input %q (grammar is atom OP atom)", src, rest)
	}
	return
}

// takeAtom consumes one atom from the front of s.
func takeAtom(s string) (condAtom, string, error) {
	if s == "" {
		return condAtom{}, "", fmt.Errorf("missing atom")
	}
	if s[0] == '\'' || s[0] == '"' {
		quote := s[0]
		end := strings.IndexByte(s[1:], quote)
		if end < 0 {
			return condAtom{}, "", fmt.Errorf("unterminated string %q", s)
		}
		// Quoted atoms are always strings, even when numeric-looking.
		return condAtom{text: s[1 : end+1]}, s[end+2:], nil
	}

	end := len(s)
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' || s[i] == '\t' {
			end = i
			break
		}
		if opAt(s[i:]) != "" && i > 0 {
			end = i
			break
		}
	}
	tok := s[:end]
	if tok == "" {
		return condAtom{}, "", fmt.Errorf("expected atom at %q", s)
	}
	if !bareAtomRe.MatchString(tok) {
		return condAtom{}, "", fmt.Errorf("%q is not a number, quoted string or bareword", tok)
	}
	a := condAtom{text: tok}
	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		a.num, a.isNum = n, true
	}
	return a, s[end:], nil
}

// bareAtomRe bounds unquoted atoms: numbers and word-like tokens such as
// resolved references (minecraft:diamond_sword, 17.5, lt_z1).
var bareAtomRe = regexp.MustCompile(`^[A-Za-z0-9_.:+-]+$`)

func opAt(s string) string {
	for _, candidate := range conditionOps {
		if strings.HasPrefix(s, candidate) {
			return candidate
		}
	}
	return ""
}

// truthy defines the value of a bare single-atom condition.
func truthy(a condAtom) bool {
	if a.isNum {
		return a.num != 0
	}
	switch strings.ToLower(a.text) {
	case "", "false", "no":
		return false
	}
	return true
}
