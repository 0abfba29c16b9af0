package graph

import (
	"fmt"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/sym"
)

// Relation is an edge entity connecting two endpoints of the same variety
// (both nodes, or both relations). Relations are entities themselves: they
// carry attributes, have isa-parents, and can be endpoints of higher-order
// relations.
//
// An isa relation is the subtype edge of the type system. It is flagged
// rather than subtyped; isa edges skip the usual typing (they have no
// relation type of their own) and share one attribute store, parented on the
// root isa edge, so that an isa edge being isa to isa cannot recurse.
type Relation struct {
	entity
	from  Entity
	to    Entity
	isIsa bool
}

func (r *Relation) IsRelation() bool { return true }

// From returns the source endpoint.
func (r *Relation) From() Entity { return r.from }

// To returns the destination endpoint.
func (r *Relation) To() Entity { return r.to }

// IsIsa reports whether this is a subtype edge.
func (r *Relation) IsIsa() bool { return r.isIsa }

// System reports whether this is a builtin. An isa edge attached to a system
// entity counts as system regardless of its own id.
func (r *Relation) System() bool {
	if r.entity.System() {
		return true
	}
	return r.isIsa && r.from != nil && r.from.System()
}

func (r *Relation) top() Entity {
	var t *Relation
	if r.isIsa {
		t = r.model.IsaRelation()
	} else {
		t = r.model.TopRelation()
	}
	if t == nil {
		return nil
	}
	return t
}

// properties resolves the behaviors this edge carries: the names in the
// union-aggregated relationProperties attribute of its type chain, in
// priority order. Unknown names are ignored.
func (r *Relation) properties() []property {
	names, ok := toNames(r.attrStore.Get(PropKey))
	if !ok {
		return nil
	}
	var props []property
	for _, n := range names {
		if p := propertyByName(n); p != nil {
			props = append(props, p)
		} else {
			r.model.log.Warnw("unknown relation property ignored",
				"relation", r.IDString(), "property", n)
		}
	}
	sortProperties(props)
	return props
}

func toNames(v any) ([]string, bool) {
	switch s := v.(type) {
	case attrs.Set:
		return s, true
	case []string:
		return s, true
	}
	return nil, false
}

// notifyEndpointDeleted is the cascade hook: an edge whose endpoint is going
// away always deletes itself.
func (r *Relation) notifyEndpointDeleted(e Entity) {
	if e == r.from || e == r.to {
		r.Delete()
		return
	}
	r.model.log.Warnw("deletion notice from an entity that is not an endpoint",
		"relation", r.IDString(), "entity", e.IDString())
}

// Delete detaches the edge from its endpoints, cascades to any higher-order
// relations attached to this edge, and deregisters it. Detaching the last
// outgoing isa edge of a live endpoint makes that endpoint reconnect itself
// to its root. No-op unless live.
func (r *Relation) Delete() {
	if r.state != StateLive {
		return
	}
	r.state = StateDeleting

	r.notifyEntityObservers(OpDelete, nil)
	if len(r.observers) > 0 {
		r.model.log.Errorw("observers remain after deletion notice; they should have unsubscribed",
			"relation", r.IDString(), "remaining", len(r.observers))
	}
	r.observers = nil

	if r.from != nil {
		r.from.dropIncident(r)
	}
	if r.to != nil && r.to != r.from {
		r.to.dropIncident(r)
	}

	rels := r.Relations()
	for _, meta := range rels {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.model.log.Warnw("unexpected panic in relation deletion notice",
						"relation", r.IDString(), "meta", meta.IDString(), "panic", rec)
				}
			}()
			meta.notifyEndpointDeleted(r)
		}()
	}
	if len(r.relations) > 0 {
		r.model.log.Errorw("incident relations remain after cascade",
			"relation", r.IDString(), "remaining", len(r.relations))
	}
	r.relations = nil
	r.from = nil
	r.to = nil

	r.model.unregister(r)
	r.state = StateDeleted
}

// validateEndpoints re-checks the structural rules for this edge: both
// endpoints present and of the same variety, and for a typed relation,
// endpoint covariance against every direct isa-parent (the endpoints must be
// isa-descendants of the parent type's endpoints).
func (r *Relation) validateEndpoints() error {
	if err := checkVariety(r.from, r.to); err != nil {
		return err
	}
	if r.isIsa {
		return nil
	}
	for _, p := range r.Parents() {
		pr, ok := p.(*Relation)
		if !ok {
			continue
		}
		if err := checkCovariance(r.from, r.to, pr); err != nil {
			return err
		}
	}
	return nil
}

func checkVariety(from, to Entity) error {
	if from == nil || to == nil {
		return errors.New("relation requires both endpoints")
	}
	if from.IsRelation() != to.IsRelation() {
		return errors.Wrapf(errors.ErrSchemaViolation,
			"endpoints must be the same variety: %s is a %s but %s is a %s",
			from.IDString(), variety(from), to.IDString(), variety(to))
	}
	return nil
}

// checkCovariance verifies from/to against one relation type: an edge of
// type t may only connect isa-descendants of t's own endpoints.
func checkCovariance(from, to Entity, t *Relation) error {
	if !from.Isa(t.From()) {
		return errors.Wrapf(errors.ErrCovariance,
			"source %s must be an isa-descendant of %s %s", from.IDString(), t.Label(), t.From().IDString())
	}
	if !to.Isa(t.To()) {
		return errors.Wrapf(errors.ErrCovariance,
			"destination %s must be an isa-descendant of %s %s", to.IDString(), t.Label(), t.To().IDString())
	}
	return nil
}

func variety(e Entity) string {
	if e.IsRelation() {
		return "relation"
	}
	return "node"
}

func (r *Relation) String() string {
	glyph := sym.Rel
	if r.isIsa {
		glyph = sym.Isa
	}
	from, to := "<none>", "<none>"
	if r.from != nil {
		from = r.from.IDString()
	}
	if r.to != nil {
		to = r.to.IDString()
	}
	return fmt.Sprintf("(%s %q %s %s %s)", r.IDString(), r.Label(), from, glyph, to)
}
