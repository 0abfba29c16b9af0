// Package graph implements the typed knowledge-graph core: nodes and
// relations organized by multi-parent isa inheritance, with attribute
// propagation along the isa chain and relation types that carry composable
// reflexive/symmetric/transitive behaviors.
//
// A Model owns all entities of one open document. Entities are created
// through the Model's factory methods and live until Delete cascades them
// away. Everything is single-threaded and synchronous; collections are
// snapshotted before notification so observers may remove themselves
// mid-delivery.
package graph

// State is the lifecycle of an entity. Only live entities accept attribute
// and relation mutations; operations on a deleting or deleted entity fail
// fast.
type State int

const (
	StateConstructing State = iota
	StateLive
	StateDeleting
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateConstructing:
		return "constructing"
	case StateLive:
		return "live"
	case StateDeleting:
		return "deleting"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// Op identifies a structural change pushed to observers.
type Op string

const (
	OpAddNode Op = "add-node"
	OpAddRel  Op = "add-rel"
	OpDelNode Op = "del-node"
	OpDelRel  Op = "del-rel"
	OpModAttr Op = "mod-attr"
	// OpDelete is delivered to an entity's own observers when the entity
	// itself is going away. Observers must unsubscribe in response.
	OpDelete Op = "del"
)

// ModelObserver receives structural notifications from a Model.
type ModelObserver interface {
	OnModelChanged(e Entity, op Op)
}

// EntityObserver receives change notifications from a single entity.
// info carries op-specific payload: the incident *Relation for OpAddRel and
// OpDelRel, an AttrChange for OpModAttr, nil for OpDelete.
type EntityObserver interface {
	OnEntityChanged(e Entity, op Op, info any)
}

// AttrChange is the OpModAttr payload.
type AttrChange struct {
	Key   string
	Value any
}
