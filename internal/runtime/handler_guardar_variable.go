package runtime

import (
	"context"
	"strings"

	"github.com/aretw0/flujos/pkg/domain"
)

// handleGuardarVariable writes an expression result, a system-derived value or a resolved literal,
// in that order of precedence.
func handleGuardarVariable(_ context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.GuardarVariableData](node)
	if err != nil {
		return outcome{}, err
	}

	var value string
	switch {
	case strings.TrimSpace(d.Expresion) != "":
		value, err = x.engine.exprs.Eval(d.Expresion, x.inst.Variables)
		if err != nil {
			return outcome{}, err
		}
	case d.Origen != "" && d.Origen != "literal":
		value, _ = x.lookup(d.Origen)
	default:
		value = x.resolve(d.Valor)
	}

	x.set(d.Variable, value)
	return outcome{
		next:   x.next(node),
		salida: map[string]any{d.Variable: value},
	}, nil
}
