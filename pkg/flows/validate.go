package flows

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/variables"
	"github.com/expr-lang/expr"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	varNameRe    = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.\-]*$`)
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Writable variable names: identifier-like and never a system variable.
		_ = validate.RegisterValidation("varname", func(fl validator.FieldLevel) bool {
			name := fl.Field().String()
			return varNameRe.MatchString(name) && !variables.IsSystem(name)
		})
	})
	return validate
}

// Validate checks every graph invariant of f and returns a *ValidationError listing all
// violations, or nil. It does not check activation requirements; see ValidateActivation.
func Validate(f *domain.Flow) error {
	v := &validation{flow: f, nodes: make(map[string]*domain.Node, len(f.Nodos))}
	v.checkNodes()
	v.checkEdges()
	v.checkRouting()
	return v.result()
}

// ValidateActivation runs Validate plus the requirements for a flow to go live.
func ValidateActivation(f *domain.Flow) error {
	v := &validation{flow: f, nodes: make(map[string]*domain.Node, len(f.Nodos))}
	v.checkNodes()
	v.checkEdges()
	v.checkRouting()
	v.checkTrigger()
	return v.result()
}

type validation struct {
	flow       *domain.Flow
	nodes      map[string]*domain.Node
	violations []Violation
}

func (v *validation) add(code, nodeID, edgeID, format string, args ...any) {
	v.violations = append(v.violations, Violation{
		Code:    code,
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Message: fmt.Sprintf(format, args...),
	})
}

func (v *validation) result() error {
	if len(v.violations) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.violations}
}

func (v *validation) checkNodes() {
	inicios := 0
	for i := range v.flow.Nodos {
		n := &v.flow.Nodos[i]
		if n.ID == "" {
			v.add(CodeNodoIDVacio, "", "", "node at index %d has no id", i)
			continue
		}
		if _, dup := v.nodes[n.ID]; dup {
			v.add(CodeNodoDuplicado, n.ID, "", "node id %q is used more than once", n.ID)
			continue
		}
		v.nodes[n.ID] = n

		if !n.Tipo.Valid() {
			v.add(CodeTipoDesconocido, n.ID, "", "unknown tipo %q", n.Tipo)
			continue
		}
		if n.Tipo == domain.NodeInicio {
			inicios++
		}
		v.checkData(n)
	}

	switch {
	case inicios == 0:
		v.add(CodeInicioFaltante, "", "", "flow must have exactly one inicio node, found none")
	case inicios > 1:
		v.add(CodeInicioDuplicado, "", "", "flow must have exactly one inicio node, found %d", inicios)
	}
}

func (v *validation) checkData(n *domain.Node) {
	if n.Datos == nil {
		v.add(CodeDatosInvalidos, n.ID, "", "datos missing for %s node", n.Tipo)
		return
	}
	if n.Datos.Kind() != n.Tipo {
		v.add(CodeDatosInvalidos, n.ID, "", "datos of kind %s do not match tipo %s", n.Datos.Kind(), n.Tipo)
		return
	}

	if err := structValidator().Struct(n.Datos); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			v.add(CodeDatosInvalidos, n.ID, "", "%v", err)
			return
		}
		for _, fe := range fieldErrs {
			v.violations = append(v.violations, Violation{
				Code:    CodeDatosInvalidos,
				NodeID:  n.ID,
				Field:   fieldPath(fe),
				Message: describeFieldError(fe),
			})
		}
	}

	switch d := n.Datos.(type) {
	case domain.GuardarVariableData:
		if d.Expresion != "" {
			if _, err := expr.Compile(d.Expresion, expr.AllowUndefinedVariables()); err != nil {
				v.violations = append(v.violations, Violation{
					Code:    CodeExpresionInvalida,
					NodeID:  n.ID,
					Field:   "expresion",
					Message: err.Error(),
				})
			}
		}
	case domain.CondicionData:
		if d.Valor == "" && d.Operador != domain.OpVacio && d.Operador != domain.OpNoVacio {
			v.violations = append(v.violations, Violation{
				Code:    CodeDatosInvalidos,
				NodeID:  n.ID,
				Field:   "valor",
				Message: fmt.Sprintf("operador %s requires a valor", d.Operador),
			})
		}
	case domain.ReconocerRespuestaData:
		if d.SalidaDefault != "" && !contains(d.SalidaIDs(), d.SalidaDefault) {
			v.add(CodeSalidaDefault, n.ID, "", "salida_default %q is not one of the salidas", d.SalidaDefault)
		}
	}
}

// fieldPath strips the struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "varname":
		return fmt.Sprintf("%q is not a writable variable name", fe.Value())
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

func (v *validation) checkEdges() {
	seen := make(map[string]bool, len(v.flow.Edges))
	for _, e := range v.flow.Edges {
		if e.ID == "" {
			v.add(CodeEdgeIDVacio, "", "", "edge %s -> %s has no id", e.Origen, e.Destino)
		} else if seen[e.ID] {
			v.add(CodeEdgeDuplicado, "", e.ID, "edge id %q is used more than once", e.ID)
		}
		seen[e.ID] = true

		if _, ok := v.nodes[e.Origen]; !ok {
			v.add(CodeEdgeOrigen, "", e.ID, "origen %q does not exist", e.Origen)
		}
		if _, ok := v.nodes[e.Destino]; !ok {
			v.add(CodeEdgeDestino, "", e.ID, "destino %q does not exist", e.Destino)
		}
	}
}

// checkRouting verifies the outgoing edges of every node against its kind.
func (v *validation) checkRouting() {
	out := make(map[string][]domain.Edge)
	for _, e := range v.flow.Edges {
		out[e.Origen] = append(out[e.Origen], e)
	}

	ids := make([]string, 0, len(v.nodes))
	for id := range v.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := v.nodes[id]
		edges := out[id]
		sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

		switch n.Tipo {
		case domain.NodeCondicion:
			v.checkCondicion(n, edges)
		case domain.NodeReconocerRespuesta:
			v.checkReconocer(n, edges)
		case domain.NodeMensaje, domain.NodePregunta:
			if len(n.Buttons()) > 0 {
				v.checkButtons(n, edges)
			} else {
				v.checkPlain(n, edges, n.Tipo == domain.NodePregunta)
			}
		case domain.NodeEsperar:
			v.checkPlain(n, edges, true)
		case domain.NodeFin:
			if len(edges) > 0 {
				v.add(CodeFinConSalida, n.ID, edges[0].ID, "fin nodes cannot have outgoing edges")
			}
		case domain.NodeInicio:
			if len(edges) > 1 {
				v.add(CodeInicioSalidas, n.ID, "", "inicio must have a single outgoing edge, found %d", len(edges))
			} else {
				v.checkPlain(n, edges, false)
			}
		default:
			v.checkPlain(n, edges, false)
		}
	}
}

func conditionOf(n *domain.Node, e domain.Edge) domain.Condition {
	if e.Condicion != nil {
		return e.Condicion
	}
	return domain.ParseHandle(n.Tipo, e.SourceHandle)
}

func (v *validation) checkCondicion(n *domain.Node, edges []domain.Edge) {
	var trues, falses int
	for _, e := range edges {
		switch conditionOf(n, e).(type) {
		case domain.ResultadoTrue:
			trues++
		case domain.ResultadoFalse:
			falses++
		default:
			v.add(CodeHandleInvalido, n.ID, e.ID, "condicion edges must use the true or false handle")
		}
	}
	if len(edges) != 2 || trues != 1 || falses != 1 {
		v.add(CodeCondicionEdges, n.ID, "", "condicion needs exactly two outgoing edges, one true and one false (found %d: %d true, %d false)",
			len(edges), trues, falses)
	}
}

func (v *validation) checkReconocer(n *domain.Node, edges []domain.Edge) {
	data, _ := n.Datos.(domain.ReconocerRespuestaData)
	salidas := data.SalidaIDs()
	used := make(map[string]string)
	for _, e := range edges {
		c, ok := conditionOf(n, e).(domain.SalidaIA)
		if !ok || !contains(salidas, c.Valor) {
			v.add(CodeHandleInvalido, n.ID, e.ID, "handle %q is not one of the salidas %v", e.SourceHandle, salidas)
			continue
		}
		if prev, dup := used[c.Valor]; dup {
			v.add(CodeHandleDuplicado, n.ID, e.ID, "salida %q is already routed by edge %s", c.Valor, prev)
			continue
		}
		used[c.Valor] = e.ID
	}
}

func (v *validation) checkButtons(n *domain.Node, edges []domain.Edge) {
	buttons := n.Buttons()
	used := make(map[int]string)
	defaults := 0
	for _, e := range edges {
		switch c := conditionOf(n, e).(type) {
		case domain.Boton:
			if c.Indice >= len(buttons) {
				v.add(CodeHandleInvalido, n.ID, e.ID, "%s has no button (only %d)", domain.ButtonHandle(c.Indice), len(buttons))
				continue
			}
			if prev, dup := used[c.Indice]; dup {
				v.add(CodeHandleDuplicado, n.ID, e.ID, "%s is already routed by edge %s", domain.ButtonHandle(c.Indice), prev)
				continue
			}
			used[c.Indice] = e.ID
		case nil:
			// A pregunta may keep one fallback edge for typed replies.
			if n.Tipo != domain.NodePregunta || e.SourceHandle != "" {
				v.add(CodeHandleInvalido, n.ID, e.ID, "edges of a node with buttons must use a boton_N handle")
				continue
			}
			defaults++
		default:
			v.add(CodeHandleInvalido, n.ID, e.ID, "edges of a node with buttons must use a boton_N handle")
		}
	}
	if defaults > 1 {
		v.add(CodeSalidaAmbigua, n.ID, "", "only one fallback edge is allowed, found %d", defaults)
	}
	for i := range buttons {
		if _, ok := used[i]; !ok {
			v.add(CodeBotonSinEdge, n.ID, "", "button %d (%q) has no outgoing edge", i, buttons[i])
		}
	}
}

// checkPlain allows at most one unconditional edge. Reply conditions are allowed when acceptsReply is set.
func (v *validation) checkPlain(n *domain.Node, edges []domain.Edge, acceptsReply bool) {
	defaults := 0
	for _, e := range edges {
		c := conditionOf(n, e)
		switch c.(type) {
		case nil:
			if e.SourceHandle != "" {
				v.add(CodeHandleInvalido, n.ID, e.ID, "%s nodes have no %q handle", n.Tipo, e.SourceHandle)
				continue
			}
			defaults++
		case domain.RespuestaExacta, domain.RespuestaContiene:
			if !acceptsReply {
				v.add(CodeHandleInvalido, n.ID, e.ID, "%s nodes do not read a reply, %s is not allowed", n.Tipo, c.Kind())
			}
		default:
			v.add(CodeHandleInvalido, n.ID, e.ID, "%s nodes cannot route on %s", n.Tipo, c.Kind())
		}
	}
	if defaults > 1 {
		v.add(CodeSalidaAmbigua, n.ID, "", "%s has %d unconditional outgoing edges", n.Tipo, defaults)
	}
}

func (v *validation) checkTrigger() {
	f := v.flow
	if len(f.Canales) == 0 {
		v.add(CodeCanalesVacios, "", "", "at least one canal must be selected")
	}
	for _, c := range f.Canales {
		if !c.Valid() {
			v.add(CodeCanalInvalido, "", "", "unknown canal %q", c)
		}
	}
	switch f.Tipo {
	case domain.TriggerKeyword:
		if f.Modo != "" && f.Modo != domain.ModoContiene && f.Modo != domain.ModoIgual {
			v.add(CodeTriggerInvalido, "", "", "unknown trigger_modo %q", f.Modo)
		}
		if len(f.Keywords()) == 0 {
			v.add(CodeTriggerValorVacio, "", "", "keyword triggers need a non-empty trigger_valor")
		}
	case domain.TriggerFirstMessage:
	default:
		v.add(CodeTriggerInvalido, "", "", "unknown trigger_tipo %q", f.Tipo)
	}
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
