package runtime

import (
	"context"
	"fmt"

	"github.com/aretw0/flujos/pkg/domain"
)

// handler executes one node. input is non-nil only when the instance was suspended at
// this node and the inbound message is being delivered to it.
type handler func(ctx context.Context, x *execution, node *domain.Node, input *string) (outcome, error)

func defaultHandlers() map[domain.NodeType]handler {
	return map[domain.NodeType]handler{
		domain.NodeInicio:             handleInicio,
		domain.NodeMensaje:            handleMensaje,
		domain.NodePregunta:           handlePregunta,
		domain.NodeCondicion:          handleCondicion,
		domain.NodeGuardarVariable:    handleGuardarVariable,
		domain.NodeGuardarBD:          handleGuardarBD,
		domain.NodeBuscarConocimiento: handleBuscarConocimiento,
		domain.NodeRespuestaIA:        handleRespuestaIA,
		domain.NodeReconocerRespuesta: handleReconocerRespuesta,
		domain.NodeUsarAgente:         handleUsarAgente,
		domain.NodeCrearTarea:         handleCrearTarea,
		domain.NodeTransferirHumano:   handleTransferirHumano,
		domain.NodeAgendarCita:        handleAgendarCita,
		domain.NodeEsperar:            handleEsperar,
		domain.NodeFin:                handleFin,
	}
}

// datos asserts the payload type of a node.
func datos[T domain.NodeData](node *domain.Node) (T, error) {
	d, ok := node.Datos.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected datos %T for node type %s", node.Datos, node.Tipo)
	}
	return d, nil
}

func handleInicio(_ context.Context, x *execution, node *domain.Node, _ *string) (outcome, error) {
	return outcome{next: x.next(node)}, nil
}
