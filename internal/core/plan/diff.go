package plan

// =============================================================================
// Apply Diffing
// =============================================================================

// ActionKind is the reconcile decision for a single service.
type ActionKind string

const (
	// ActionCreate creates a container that does not exist yet.
	ActionCreate ActionKind = "create"
	// ActionKeep leaves a matching container untouched (started if stopped).
	ActionKeep ActionKind = "keep"
	// ActionRecreate replaces a container whose config hash diverged.
	ActionRecreate ActionKind = "recreate"
	// ActionRemove removes a container whose service left the document.
	ActionRemove ActionKind = "remove"
)

// Action pairs a decision with the container plan (or observed container)
// it applies to.
type Action struct {
	Kind        ActionKind
	ServiceName string
	Plan        *ContainerPlan // nil for ActionRemove
	ContainerID string         // observed container, empty for ActionCreate
}

// ObservedContainer is the subset of live container state the differ needs.
type ObservedContainer struct {
	ID          string
	ServiceName string
	ConfigHash  string
	Running     bool
}

// Diff compares desired container plans against observed containers and
// returns the actions needed to converge, in the order of the desired
// plans. Observed containers whose service no longer appears in the
// document produce ActionRemove entries at the end.
//
// Re-applying an unchanged document therefore yields only ActionKeep
// entries: no resource is created twice and nothing is torn down.
func Diff(desired []ContainerPlan, observed []ObservedContainer) []Action {
	byService := make(map[string]ObservedContainer, len(observed))
	for _, o := range observed {
		byService[o.ServiceName] = o
	}

	actions := make([]Action, 0, len(desired))
	matched := make(map[string]bool, len(desired))

	for i := range desired {
		p := &desired[i]
		matched[p.ServiceName] = true

		existing, found := byService[p.ServiceName]
		if !found {
			actions = append(actions, Action{
				Kind:        ActionCreate,
				ServiceName: p.ServiceName,
				Plan:        p,
			})
			continue
		}

		if existing.ConfigHash == p.Labels[LabelConfigHash] {
			actions = append(actions, Action{
				Kind:        ActionKeep,
				ServiceName: p.ServiceName,
				Plan:        p,
				ContainerID: existing.ID,
			})
			continue
		}

		actions = append(actions, Action{
			Kind:        ActionRecreate,
			ServiceName: p.ServiceName,
			Plan:        p,
			ContainerID: existing.ID,
		})
	}

	// Orphans: containers labeled for this stack whose service is gone
	for _, o := range observed {
		if !matched[o.ServiceName] {
			actions = append(actions, Action{
				Kind:        ActionRemove,
				ServiceName: o.ServiceName,
				ContainerID: o.ID,
			})
		}
	}

	return actions
}

// Converged reports whether a set of actions represents an already-converged
// apply (nothing to create, recreate, or remove).
func Converged(actions []Action) bool {
	for _, a := range actions {
		if a.Kind != ActionKeep {
			return false
		}
	}
	return true
}
