package runtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/aretw0/flujos/pkg/flows"
	"github.com/aretw0/flujos/pkg/ports"
	"github.com/aretw0/flujos/pkg/variables"
)

// DefaultDuracionCita applies when an agendar_cita node sets no duration.
const DefaultDuracionCita = 30 * time.Minute

// handleAgendarCita books an event at fecha_cita / hora_cita, which must already be bound.
func handleAgendarCita(ctx context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	d, err := datos[domain.AgendarCitaData](node)
	if err != nil {
		return outcome{}, err
	}
	cal := x.engine.adapters.Calendar
	if cal == nil {
		return outcome{}, fmt.Errorf("%w: calendar", ErrNoAdapter)
	}

	fecha := strings.TrimSpace(x.inst.Variables[flows.VarFechaCita])
	hora := strings.TrimSpace(x.inst.Variables[flows.VarHoraCita])
	if fecha == "" || hora == "" {
		return outcome{}, fmt.Errorf("variables %s and %s must be set before booking", flows.VarFechaCita, flows.VarHoraCita)
	}
	loc := x.engine.now().Location()
	inicio, err := time.ParseInLocation(variables.FechaLayout+" "+variables.HoraLayout, fecha+" "+hora, loc)
	if err != nil {
		return outcome{}, fmt.Errorf("invalid appointment time %q %q: %w", fecha, hora, err)
	}

	duracion := DefaultDuracionCita
	if d.DuracionMinutos > 0 {
		duracion = time.Duration(d.DuracionMinutos) * time.Minute
	}
	titulo := x.resolve(d.Titulo)
	if titulo == "" {
		titulo = "Cita"
	}
	ev := ports.Event{
		Titulo:         titulo,
		Inicio:         inicio,
		Duracion:       duracion,
		Descripcion:    x.resolve(d.Descripcion),
		InstanceID:     x.inst.ID,
		IdempotencyKey: x.idempotencyKey(node),
	}

	var id string
	err = x.call(ctx, node, "calendar", func(ctx context.Context) error {
		var err error
		id, err = cal.CreateEvent(ctx, ev)
		return err
	})
	if err != nil {
		return outcome{}, err
	}
	x.set(flows.VarUltimaCitaID, id)
	return outcome{
		next:    x.next(node),
		entrada: map[string]any{"titulo": titulo, "inicio": inicio.Format(time.RFC3339), "duracion_minutos": int(duracion.Minutes())},
		salida:  map[string]any{"id": id},
	}, nil
}
