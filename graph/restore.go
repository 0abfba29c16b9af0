package graph

import (
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/sym"
)

// Load-path factories. A document loader works in two phases: phase 1
// constructs every saved entity under its saved id (endpoints still
// unbound), phase 2 binds relation endpoints once the referenced entities
// exist, isa edges first so covariance can be re-validated for the rest.

// RestoreNode constructs a node under a saved id. The node carries no isa
// edges yet; the loader binds them in phase 2.
func (m *Model) RestoreNode(id int64) (*Node, error) {
	if err := m.claimID(id); err != nil {
		return nil, err
	}
	n := &Node{}
	n.init(m, n, id)
	m.register(n)
	n.state = StateLive
	return n, nil
}

// RestoreRelation constructs a relation under a saved id with unbound
// endpoints. The relation stays in the constructing state until
// BindEndpoints succeeds.
func (m *Model) RestoreRelation(id int64, isIsa bool) (*Relation, error) {
	if err := m.claimID(id); err != nil {
		return nil, err
	}
	r := &Relation{isIsa: isIsa}
	r.init(m, r, id)
	if isIsa {
		r.attrStore = m.isaAttrs
	}
	m.register(r)
	return r, nil
}

func (m *Model) claimID(id int64) error {
	if id < ReservedID {
		return errors.Wrapf(errors.ErrSchemaViolation,
			"id %d is inside the builtin range", id)
	}
	if _, taken := m.addr[id]; taken {
		return errors.Wrapf(errors.ErrSchemaViolation, "id %d is already in use", id)
	}
	if id >= m.nextID {
		m.nextID = id + 1
	}
	return nil
}

// BindEndpoints attaches a restored relation to its endpoints and makes it
// live. Isa edges are re-validated for acyclicity and redundancy against
// whatever is already bound, the rest for covariance; on failure the relation
// stays (or becomes) detached and the error reports what the loader should
// drop.
func (r *Relation) BindEndpoints(from, to Entity) error {
	if r.state != StateConstructing || r.from != nil || r.to != nil {
		return errors.AssertionFailedf("BindEndpoints on %s in state %s", r.IDString(), r.state)
	}
	if err := checkVariety(from, to); err != nil {
		return err
	}
	if r.isIsa {
		// A crafted document can carry isa edges a live model would have
		// rejected; binding one would corrupt the type hierarchy.
		if to == from || ancestorSet(to)[from] {
			return errors.Wrapf(errors.ErrCyclicIsa,
				"isa %s %s %s would make the type hierarchy cyclic",
				from.IDString(), sym.Isa, to.IDString())
		}
		if ancestorSet(from)[to] {
			return errors.Wrapf(errors.ErrRedundantIsa,
				"%s is already a subtype of %s", from.IDString(), to.IDString())
		}
	}
	r.from = from
	r.to = to
	from.addIncident(r)
	if to != from {
		to.addIncident(r)
	}
	r.state = StateLive
	if err := r.validateEndpoints(); err != nil {
		r.Delete()
		return err
	}
	return nil
}

// Discard removes a restored relation whose endpoints could not be resolved.
// Only valid while still unbound.
func (r *Relation) Discard() {
	if r.state != StateConstructing {
		return
	}
	r.state = StateDeleting
	r.observers = nil
	r.relations = nil
	r.model.unregister(r)
	r.state = StateDeleted
}
