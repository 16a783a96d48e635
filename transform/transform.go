// Package transform evaluates small assignment programs over named axis
// signals, such as
//
//	en2 := en1; ex2 := ex1 > 0 && busy3 == 0
//
// Statements run in order and each assignment is visible to the ones after
// it. Booleans are reported as 1 and 0.
package transform

import (
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
)

type statement struct {
	target  string
	program *vm.Program
}

type Transform struct {
	fault.Holder
	text  string
	stmts []statement
}

func New() *Transform {
	return &Transform{}
}

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SetExpression compiles text, replacing the current program only on
// success.
func (t *Transform) SetExpression(text string) error {
	var stmts []statement
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == ';' || r == '\n' }) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":=", 2)
		if len(parts) != 2 {
			t.SetError(fault.ErrTransformCompile)
			return errors.Errorf("statement %q: missing :=", line)
		}
		target := strings.TrimSpace(parts[0])
		if !nameRE.MatchString(target) {
			t.SetError(fault.ErrTransformCompile)
			return errors.Errorf("statement %q: invalid target %q", line, target)
		}
		body := strings.TrimSpace(parts[1])
		if body == "" {
			t.SetError(fault.ErrTransformCompile)
			return errors.Errorf("statement %q: empty expression", line)
		}
		program, err := expr.Compile(body)
		if err != nil {
			t.SetError(fault.ErrTransformCompile)
			return errors.Wrapf(err, "compiling %q", line)
		}
		stmts = append(stmts, statement{target: target, program: program})
	}
	if len(stmts) == 0 {
		t.SetError(fault.ErrTransformCompile)
		return errors.New("empty expression")
	}
	t.text = text
	t.stmts = stmts
	return nil
}

func (t *Transform) Expression() string {
	return t.text
}

func (t *Transform) Compiled() bool {
	return len(t.stmts) > 0
}

// Targets lists the assigned names in statement order.
func (t *Transform) Targets() []string {
	var out []string
	for _, s := range t.stmts {
		out = append(out, s.target)
	}
	return out
}

// Evaluate runs the program against inputs and returns every assigned value.
func (t *Transform) Evaluate(inputs map[string]float64) (map[string]float64, error) {
	if !t.Compiled() {
		t.SetError(fault.ErrTransformEvaluate)
		return nil, errors.New("no expression compiled")
	}
	env := make(map[string]interface{}, len(inputs)+len(t.stmts))
	for k, v := range inputs {
		env[k] = v
	}
	out := make(map[string]float64, len(t.stmts))
	for _, s := range t.stmts {
		res, err := expr.Run(s.program, env)
		if err != nil {
			t.SetError(fault.ErrTransformEvaluate)
			return nil, errors.Wrapf(err, "evaluating %s", s.target)
		}
		v, err := toFloat(res)
		if err != nil {
			t.SetError(fault.ErrTransformEvaluate)
			return nil, errors.Wrapf(err, "evaluating %s", s.target)
		}
		env[s.target] = v
		out[s.target] = v
	}
	return out, nil
}

func toFloat(v interface{}) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("unsupported result %v (%T)", v, v)
}
