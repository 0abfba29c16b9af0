package graph

import (
	"fmt"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/sym"
)

// Entity is a node or relation in a model. Entities are created only through
// Model factory methods; the two concrete implementations are *Node and
// *Relation.
type Entity interface {
	attrs.ParentSource
	attrs.Observer

	// ID is the model-local numeric id. Ids below ReservedID are builtins.
	ID() int64
	// IDString is the globally addressable form: "<modelShortID>:<id>".
	IDString() string
	Model() *Model
	Attrs() *attrs.Store
	IsRelation() bool
	// System reports whether this is a builtin entity.
	System() bool
	State() State
	// Label is the resolved "label" attribute, or "" when unset.
	Label() string

	// Relations returns a snapshot of the incident relations.
	Relations() []*Relation
	// Parents returns the direct isa-parents, in edge order.
	Parents() []Entity
	// IsParent reports a direct (one-hop) isa edge to target.
	IsParent(target Entity) bool
	// IsParentAll reports whether every target is a direct isa-parent.
	IsParentAll(targets []Entity) bool
	// Isa reports transitive isa reachability; every entity Isa's itself.
	Isa(target Entity) bool
	// IsaAll reports whether every target is a transitive isa-ancestor.
	IsaAll(targets []Entity) bool
	// Ancestors returns the full transitive isa-ancestor tree rooted here.
	Ancestors() *AncestorTree

	// IsRelatedTo reports whether this entity reaches target through edges
	// of relType (or an isa-subtype), extended by the relation properties
	// carried by each edge's type.
	IsRelatedTo(relType *Relation, target Entity) bool
	// Related returns every entity reachable the same way.
	Related(relType *Relation) []Entity

	Subscribe(o EntityObserver)
	Unsubscribe(o EntityObserver)

	// Delete notifies observers, cascades deletion to incident relations,
	// and deregisters the entity. No-op unless the entity is live.
	Delete()

	addIncident(r *Relation)
	dropIncident(r *Relation)
	base() *entity
	top() Entity
}

// AncestorTree is the isa-ancestor tree of an entity: the entity plus one
// subtree per direct parent.
type AncestorTree struct {
	Entity  Entity
	Parents []*AncestorTree
}

// Flatten returns the tree's entities in pre-order, deduplicated.
func (t *AncestorTree) Flatten() []Entity {
	var out []Entity
	seen := make(map[Entity]bool)
	var walk func(n *AncestorTree)
	walk = func(n *AncestorTree) {
		if n == nil || seen[n.Entity] {
			return
		}
		seen[n.Entity] = true
		out = append(out, n.Entity)
		for _, p := range n.Parents {
			walk(p)
		}
	}
	walk(t)
	return out
}

// entity carries the state and behavior shared by nodes and relations.
// self points at the outer Node or Relation so shared code can hand out the
// concrete entity.
type entity struct {
	id        int64
	model     *Model
	attrStore *attrs.Store
	self      Entity
	state     State
	observers []EntityObserver
	relations []*Relation
}

// init wires the common parts. The caller registers with the model and
// flips the state to live once construction is complete.
func (e *entity) init(m *Model, self Entity, id int64) {
	e.id = id
	e.model = m
	e.self = self
	e.state = StateConstructing
	e.attrStore = attrs.NewStore(self, m.log)
	e.attrStore.SetGate(e.mutationGate)
	e.attrStore.Subscribe(self)
}

func (e *entity) mutationGate() error {
	if e.state == StateDeleting || e.state == StateDeleted {
		return errors.Wrapf(errors.ErrEntityDead, "entity %s", e.IDString())
	}
	return nil
}

func (e *entity) ID() int64     { return e.id }
func (e *entity) Model() *Model { return e.model }
func (e *entity) State() State  { return e.state }

func (e *entity) IDString() string {
	return fmt.Sprintf("%s:%d", e.model.shortID, e.id)
}

func (e *entity) Attrs() *attrs.Store { return e.attrStore }

func (e *entity) System() bool { return e.id < ReservedID }

func (e *entity) Label() string {
	if s, ok := e.attrStore.Get("label").(string); ok {
		return s
	}
	return ""
}

// AttrParents supplies the attribute stores of the direct isa-parents, in
// edge order. An entity with no outgoing isa edges inherits from its root.
func (e *entity) AttrParents() []*attrs.Store {
	t := e.self.top()
	if t == nil || t == e.self {
		return nil
	}
	var out []*attrs.Store
	for _, r := range e.relations {
		if r.IsIsa() && r.From() == e.self {
			out = append(out, r.To().Attrs())
		}
	}
	if len(out) == 0 {
		out = append(out, t.Attrs())
	}
	return out
}

func (e *entity) Relations() []*Relation {
	out := make([]*Relation, len(e.relations))
	copy(out, e.relations)
	return out
}

func (e *entity) base() *entity { return e }

// Subscribe adds an entity observer.
func (e *entity) Subscribe(o EntityObserver) {
	e.observers = append(e.observers, o)
}

// Unsubscribe removes an entity observer. Safe to call during deletion.
func (e *entity) Unsubscribe(o EntityObserver) {
	for i, ob := range e.observers {
		if ob == o {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
	if e.state == StateLive {
		e.model.log.Warnw("Unsubscribe called with an unregistered observer",
			"entity", e.IDString())
	}
}

// notifyEntityObservers delivers to a snapshot of the observer list; a
// panicking observer is logged and skipped.
func (e *entity) notifyEntityObservers(op Op, info any) {
	obs := make([]EntityObserver, len(e.observers))
	copy(obs, e.observers)
	for _, o := range obs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.model.log.Warnw("entity observer panicked",
						"entity", e.IDString(), "op", op, "panic", r)
				}
			}()
			o.OnEntityChanged(e.self, op, info)
		}()
	}
}

// OnAttrChanged handles a change in this entity's own attribute store:
// notify entity and model observers, then ping every isa-child so the
// change propagates down the inheritance chain. Children with a local
// override stop the propagation at their hop.
func (e *entity) OnAttrChanged(_ *attrs.Store, key string, value any) {
	e.notifyEntityObservers(OpModAttr, AttrChange{Key: key, Value: value})
	e.model.notifyObservers(e.self, OpModAttr)
	for _, r := range e.Relations() {
		if r.IsIsa() && r.To() == e.self {
			r.From().Attrs().Ping(key)
		}
	}
}

// addIncident records a new incident relation. A new outgoing isa edge
// re-resolves every attribute so ancestor defaults materialize.
func (e *entity) addIncident(r *Relation) {
	e.relations = append(e.relations, r)
	e.notifyEntityObservers(OpAddRel, r)
	if r.IsIsa() && r.From() == e.self {
		for _, k := range e.attrStore.Keys(true, true) {
			e.attrStore.Get(k)
		}
	}
}

// dropIncident is called by a deleting relation for each endpoint. When the
// last outgoing isa edge of a live non-root entity goes away, a replacement
// edge to the corresponding root is synthesized.
func (e *entity) dropIncident(r *Relation) {
	found := false
	for i, rel := range e.relations {
		if rel == r {
			e.relations = append(e.relations[:i], e.relations[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		e.model.log.Warnw("dropIncident called with an unregistered relation",
			"entity", e.IDString(), "relation", r.IDString())
	}
	e.notifyEntityObservers(OpDelRel, r)

	if r.IsIsa() && r.From() == e.self && e.state == StateLive {
		for _, rel := range e.relations {
			if rel.IsIsa() && rel.From() == e.self {
				return
			}
		}
		root := e.self.top()
		if root == nil || root == e.self {
			return
		}
		if _, err := e.model.newIsa(e.self, root); err != nil {
			e.model.log.Errorw("failed to reconnect entity to root",
				"entity", e.IDString(), "error", err, "symbol", sym.Isa)
		}
	}
}

// Delete tears the entity down: observers are told (and must unsubscribe),
// every incident relation gets a deletion notice and reacts (an isa edge
// whose endpoint vanishes always deletes itself), then the entity
// deregisters from the model. Calls on a non-live entity are no-ops.
func (e *entity) Delete() {
	if e.state != StateLive {
		return
	}
	e.state = StateDeleting

	e.notifyEntityObservers(OpDelete, nil)
	if len(e.observers) > 0 {
		e.model.log.Errorw("observers remain after deletion notice; they should have unsubscribed",
			"entity", e.IDString(), "remaining", len(e.observers))
	}
	e.observers = nil

	rels := e.Relations() // snapshot: relations delete themselves while we iterate
	for _, r := range rels {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					e.model.log.Warnw("unexpected panic in relation deletion notice",
						"entity", e.IDString(), "relation", r.IDString(), "panic", rec)
				}
			}()
			r.notifyEndpointDeleted(e.self)
		}()
	}
	if len(e.relations) > 0 {
		e.model.log.Errorw("incident relations remain after cascade",
			"entity", e.IDString(), "remaining", len(e.relations))
	}
	e.relations = nil

	e.model.unregister(e.self)
	e.state = StateDeleted
}

// Parents returns the direct isa-parents, in edge order.
func (e *entity) Parents() []Entity {
	var out []Entity
	for _, r := range e.relations {
		if r.IsIsa() && r.From() == e.self {
			out = append(out, r.To())
		}
	}
	return out
}

// IsParent reports a direct isa edge from this entity to target.
func (e *entity) IsParent(target Entity) bool {
	for _, r := range e.relations {
		if r.IsIsa() && r.From() == e.self && r.To() == target {
			return true
		}
	}
	return false
}

// IsParentAll reports whether every target is a direct isa-parent.
func (e *entity) IsParentAll(targets []Entity) bool {
	for _, t := range targets {
		if !e.IsParent(t) {
			return false
		}
	}
	return true
}

// Isa reports whether target is reachable through some chain of isa edges.
// Every entity Isa's itself.
func (e *entity) Isa(target Entity) bool {
	if target == e.self {
		return true
	}
	if e.self == e.model.TopNode() || e.self == e.model.TopRelation() {
		return false
	}
	for _, r := range e.relations {
		if r.IsIsa() && r.From() == e.self {
			if r.To().Isa(target) {
				return true
			}
		}
	}
	return false
}

// IsaAll reports whether every target is a transitive isa-ancestor. An
// empty target list is vacuously true.
func (e *entity) IsaAll(targets []Entity) bool {
	for _, t := range targets {
		if !e.Isa(t) {
			return false
		}
	}
	return true
}

// Ancestors returns the full transitive isa-ancestor tree rooted at this
// entity.
func (e *entity) Ancestors() *AncestorTree {
	t := &AncestorTree{Entity: e.self}
	if e.self == e.model.TopNode() || e.self == e.model.TopRelation() {
		return t
	}
	for _, r := range e.relations {
		if r.IsIsa() && r.From() == e.self {
			t.Parents = append(t.Parents, r.To().Ancestors())
		}
	}
	return t
}

// IsRelatedTo reports whether this entity reaches target through edges of
// relType or an isa-subtype of it, extended by the relation properties the
// edge's type carries.
func (e *entity) IsRelatedTo(relType *Relation, target Entity) bool {
	return e.isRelatedTo(relType, target, nil)
}

func (e *entity) isRelatedTo(relType *Relation, target Entity, omit map[Entity]bool) bool {
	for _, r := range e.Relations() {
		if !r.Isa(relType) {
			continue
		}
		if r.From() == e.self && r.To() == target {
			return true
		}
		guarded := withOmitted(omit, target)
		for _, p := range r.properties() {
			if p.related(relType, e.self, r, target, guarded) {
				return true
			}
		}
	}
	return false
}

// Related returns the set of entities reachable from this one through edges
// of relType or an isa-subtype, extended by relation properties. The result
// order is unspecified.
func (e *entity) Related(relType *Relation) []Entity {
	set := e.relatedSet(relType, nil)
	out := make([]Entity, 0, len(set))
	for ent := range set {
		out = append(out, ent)
	}
	return out
}

func (e *entity) relatedSet(relType *Relation, omit map[Entity]bool) map[Entity]bool {
	result := make(map[Entity]bool)
	for _, r := range e.Relations() {
		if !r.Isa(relType) {
			continue
		}
		if r.From() == e.self {
			result[r.To()] = true
		}
		for _, p := range r.properties() {
			for ent := range p.relatedSet(relType, e.self, r, omit) {
				result[ent] = true
			}
		}
	}
	return result
}

// withOmitted extends an omit set without mutating the original.
func withOmitted(omit map[Entity]bool, e Entity) map[Entity]bool {
	out := make(map[Entity]bool, len(omit)+1)
	for k := range omit {
		out[k] = true
	}
	if e != nil {
		out[e] = true
	}
	return out
}
