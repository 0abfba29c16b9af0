package graph

import "sort"

// PropKey is the attribute key under which a relation type declares its
// behavior names. The attribute has kind set, so declarations union down the
// isa chain and an edge picks up every behavior any of its ancestor types
// declares.
const PropKey = "relationProperties"

// Property names as stored in the relationProperties attribute.
const (
	PropReflexive  = "ReflexiveProperty"
	PropSymmetric  = "SymmetricProperty"
	PropTransitive = "TransitiveProperty"
)

// property is a stateless relation behavior. Each implementation answers two
// query shapes over one conforming edge: the boolean "does this edge connect
// from to target" and the set "what does this edge connect from to".
//
// relType is the query's type filter, from is the querying entity, rel is a
// conforming edge incident to it. omit carries the entities already visited
// as an origin so transitive chains terminate on cyclic graphs.
type property interface {
	name() string
	// priority orders combination when a type declares several behaviors.
	priority() int
	related(relType *Relation, from Entity, rel *Relation, target Entity, omit map[Entity]bool) bool
	relatedSet(relType *Relation, from Entity, rel *Relation, omit map[Entity]bool) map[Entity]bool
}

type reflexiveProperty struct{}
type symmetricProperty struct{}
type transitiveProperty struct{}

// Stateless singletons shared by every edge.
var (
	reflexive  = reflexiveProperty{}
	symmetric  = symmetricProperty{}
	transitive = transitiveProperty{}
)

func (reflexiveProperty) name() string  { return PropReflexive }
func (reflexiveProperty) priority() int { return 2 }

// A reflexive edge makes its origin related to itself.
func (reflexiveProperty) related(_ *Relation, from Entity, rel *Relation, target Entity, _ map[Entity]bool) bool {
	return target == from && rel.From() == from
}

func (reflexiveProperty) relatedSet(_ *Relation, from Entity, rel *Relation, _ map[Entity]bool) map[Entity]bool {
	if rel.From() == from {
		return map[Entity]bool{from: true}
	}
	return nil
}

func (symmetricProperty) name() string  { return PropSymmetric }
func (symmetricProperty) priority() int { return 3 }

// A symmetric edge (a,b) also relates b to a.
func (symmetricProperty) related(_ *Relation, from Entity, rel *Relation, target Entity, _ map[Entity]bool) bool {
	if from == rel.From() && target == rel.To() {
		return true
	}
	return from == rel.To() && target == rel.From()
}

func (symmetricProperty) relatedSet(_ *Relation, from Entity, rel *Relation, _ map[Entity]bool) map[Entity]bool {
	if from == rel.To() {
		return map[Entity]bool{rel.From(): true}
	}
	return nil
}

func (transitiveProperty) name() string  { return PropTransitive }
func (transitiveProperty) priority() int { return 4 }

// A transitive edge (a,b) chains through b: whatever b reaches under relType,
// a reaches too. When the edge also carries the symmetric behavior the chain
// runs the other way as well, so equivalence-style relations close over
// multi-hop paths in both directions. Origins already in omit are not
// re-expanded.
func (transitiveProperty) related(relType *Relation, from Entity, rel *Relation, target Entity, omit map[Entity]bool) bool {
	if omit[from] {
		return false
	}
	next := withOmitted(omit, from)
	if from == rel.From() && rel.To().base().isRelatedTo(relType, target, next) {
		return true
	}
	if from == rel.To() && hasSymmetric(rel) {
		return rel.From().base().isRelatedTo(relType, target, next)
	}
	return false
}

func (transitiveProperty) relatedSet(relType *Relation, from Entity, rel *Relation, omit map[Entity]bool) map[Entity]bool {
	if omit[from] {
		return nil
	}
	next := withOmitted(omit, from)
	if from == rel.From() {
		return rel.To().base().relatedSet(relType, next)
	}
	if from == rel.To() && hasSymmetric(rel) {
		return rel.From().base().relatedSet(relType, next)
	}
	return nil
}

// hasSymmetric reports whether the edge's type chain also declares the
// symmetric behavior.
func hasSymmetric(rel *Relation) bool {
	for _, p := range rel.properties() {
		if _, ok := p.(symmetricProperty); ok {
			return true
		}
	}
	return false
}

// propertyByName maps a declared behavior name to its singleton. Unknown
// names resolve to nil; callers skip them.
func propertyByName(name string) property {
	switch name {
	case PropReflexive:
		return reflexive
	case PropSymmetric:
		return symmetric
	case PropTransitive:
		return transitive
	}
	return nil
}

// sortProperties orders behaviors for combination. Lower priority runs first.
func sortProperties(props []property) {
	sort.Slice(props, func(i, j int) bool { return props[i].priority() < props[j].priority() })
}
