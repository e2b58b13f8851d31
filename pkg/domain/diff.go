package domain

// InstanceDiff represents the changes between two snapshots of an instance.
// It is serialized to JSON for partial updates on monitoring clients.
type InstanceDiff struct {
	// InstanceID is always present to identify the target.
	InstanceID string `json:"instance_id"`

	NodoActual *string         `json:"nodo_actual,omitempty"`
	Estado     *InstanceEstado `json:"estado,omitempty"`
	Esperando  *Espera         `json:"esperando,omitempty"`

	// Variables contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Variables map[string]*string `json:"variables,omitempty"`
}

// Diff calculates the difference between oldInst and newInst.
// If oldInst is nil, it returns a diff representing the entire newInst (initial load).
// It returns nil when nothing observable changed.
func Diff(oldInst, newInst *Instance) *InstanceDiff {
	if newInst == nil {
		return nil
	}

	diff := &InstanceDiff{InstanceID: newInst.ID}

	if oldInst == nil || oldInst.NodoActual != newInst.NodoActual {
		v := newInst.NodoActual
		diff.NodoActual = &v
	}
	if oldInst == nil || oldInst.Estado != newInst.Estado {
		v := newInst.Estado
		diff.Estado = &v
	}
	if oldInst == nil || oldInst.Esperando != newInst.Esperando {
		v := newInst.Esperando
		diff.Esperando = &v
	}
	diff.Variables = diffVariables(oldInst, newInst)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffVariables(old, new *Instance) map[string]*string {
	delta := make(map[string]*string)

	for k, v := range new.Variables {
		if old != nil {
			if prev, ok := old.Variables[k]; ok && prev == v {
				continue
			}
		}
		val := v
		delta[k] = &val
	}

	if old != nil {
		for k := range old.Variables {
			if _, ok := new.Variables[k]; !ok {
				delta[k] = nil
			}
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *InstanceDiff) IsEmpty() bool {
	return d.NodoActual == nil &&
		d.Estado == nil &&
		d.Esperando == nil &&
		len(d.Variables) == 0
}
