package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/sym"
)

// ReservedID is the boundary of the builtin id space. Every entity seeded by
// NewModel has an id below it; user entities allocate from it upward. Saved
// documents never contain builtin entities, only references to them.
const ReservedID int64 = 255

// Labels of the builtin entities.
const (
	TopNodeLabel     = "T"
	TopRelationLabel = "REL"
	IsaLabel         = "ISA"
	ReflexiveLabel   = "REFLEXIVE"
	SymmetricLabel   = "SYMMETRIC"
	TransitiveLabel  = "TRANSITIVE"
)

// Shapes are the allowed values of the builtin "shape" display attribute.
// The first entry is the root default.
var Shapes = []string{
	"Rectangle",
	"RightParallelogram",
	"LeftParallelogram",
	"FileFolder",
	"TopPentagon",
	"RightPentagon",
	"LeftPentagon",
	"Hexagon",
	"RoundedShape",
	"Oval",
}

// Model owns all entities of one document: the id allocator, the id→entity
// address table, the builtin type hierarchy, and the observer list. Models
// are single-threaded; see the package comment.
type Model struct {
	guid    uuid.UUID
	shortID string
	nextID  int64

	nodes     []*Node
	relations []*Relation
	addr      map[int64]Entity
	observers []ModelObserver

	topNode       *Node
	topRelation   *Relation
	reflexiveRel  *Relation
	symmetricRel  *Relation
	transitiveRel *Relation
	isaRel        *Relation
	isaAttrs      *attrs.Store

	// bootstrapping suspends isa cycle/redundancy checks while the builtin
	// hierarchy wires itself up (the root isa edge is a self-loop).
	bootstrapping bool

	log *zap.SugaredLogger
}

// NewModel creates a model with a fresh GUID and seeds the builtin entities.
// log may be nil.
func NewModel(log *zap.SugaredLogger) *Model {
	return NewModelWithGUID(uuid.New(), log)
}

// NewModelWithGUID creates a model under a known GUID. Used when loading a
// saved document so entity id strings stay stable across sessions.
func NewModelWithGUID(guid uuid.UUID, log *zap.SugaredLogger) *Model {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	m := &Model{
		guid:    guid,
		shortID: guid.String()[:8],
		addr:    make(map[int64]Entity),
		log:     log,
	}
	m.seedBuiltins()
	return m
}

// seedBuiltins constructs the fixed type hierarchy every model starts with:
// the two roots, the three property-bearing relation types, and the isa
// family. Ids are stable (0..9) so documents can reference builtins.
func (m *Model) seedBuiltins() {
	m.bootstrapping = true

	m.topNode = m.seedNode() // id 0
	t := m.topNode.Attrs()
	seed(t.Set("fillColor", "white"))
	seed(t.Set("borderColor", "black"))
	seed(t.Set("textColor", "black"))
	seed(t.Add("shape", Shapes))
	seed(t.Set("aspectRatio", 0.5))
	seed(t.Set("minSize", 80))
	seed(t.Add("label", TopNodeLabel, attrs.WithDefault("")))
	seed(t.Add("type", true, attrs.WithKind(attrs.KindBool), attrs.WithDefault(false), attrs.Editable(false)))
	seed(t.Add("notes", "All nodes inherit from this one.", attrs.WithKind(attrs.KindMText), attrs.WithDefault("")))

	m.topRelation = m.seedRelation(m.topNode, m.topNode) // id 1
	r := m.topRelation.Attrs()
	seed(r.Set("fillColor", "white"))
	seed(r.Set("borderColor", "black"))
	seed(r.Set("textColor", "black"))
	seed(r.Set("shape", "Oval"))
	seed(r.Set("lineColor", "black"))
	seed(r.Set("aspectRatio", 1.0))
	seed(r.Set("minSize", 30))
	seed(r.Add("label", TopRelationLabel))
	seed(r.Add("type", true, attrs.WithKind(attrs.KindBool), attrs.WithDefault(false), attrs.Editable(false)))
	seed(r.Add("notes", "All relations inherit from this one.", attrs.WithKind(attrs.KindMText), attrs.WithDefault("")))

	m.reflexiveRel = m.seedTypedRelation(PropReflexive, ReflexiveLabel)     // ids 2,3
	m.symmetricRel = m.seedTypedRelation(PropSymmetric, SymmetricLabel)     // ids 4,5
	m.transitiveRel = m.seedTypedRelation(PropTransitive, TransitiveLabel)  // ids 6,7

	// The root isa edge is a self-loop on the root node; it keeps its own
	// attribute store and every later isa edge shares one store parented on
	// it.
	top, err := m.newIsa(m.topNode, m.topNode) // id 8
	seed(err)
	m.isaRel = top
	m.isaAttrs = attrs.NewStore(isaAttrSource{m}, m.log)
	i := top.Attrs()
	seed(i.Set("fillColor", ""))
	seed(i.Set("borderColor", ""))
	seed(i.Set("textColor", "blue"))
	seed(i.Set("lineColor", "blue"))
	seed(i.Add("lineWidth", 2, attrs.WithKind(attrs.KindInt)))
	seed(i.Set("shape", "Oval"))
	seed(i.Add("label", IsaLabel))
	seed(i.Add("type", true, attrs.WithKind(attrs.KindBool), attrs.WithDefault(false), attrs.Editable(false)))

	_, err = m.newIsa(m.isaRel, m.transitiveRel) // id 9
	seed(err)

	m.nextID = ReservedID
	m.bootstrapping = false

	m.log.Debugw("model seeded", "symbol", sym.Graph,
		"guid", m.guid.String(), "shortID", m.shortID)
}

// seed panics on a builtin wiring error; the bootstrap sequence is fixed and
// cannot legitimately fail.
func seed(err error) {
	if err != nil {
		panic(errors.Wrap(err, "builtin bootstrap"))
	}
}

func (m *Model) seedNode() *Node {
	n := &Node{}
	n.init(m, n, m.allocID())
	m.register(n)
	n.state = StateLive
	return n
}

func (m *Model) seedRelation(from, to Entity) *Relation {
	r := &Relation{from: from, to: to}
	r.init(m, r, m.allocID())
	from.addIncident(r)
	if to != from {
		to.addIncident(r)
	}
	m.register(r)
	r.state = StateLive
	return r
}

// seedTypedRelation builds one of the property-bearing builtin relation
// types: a relation over the root node, isa the root relation, declaring a
// single behavior.
func (m *Model) seedTypedRelation(propName, label string) *Relation {
	r := m.seedRelation(m.topNode, m.topNode)
	_, err := m.newIsa(r, m.topRelation)
	seed(err)
	seed(r.Attrs().Add(PropKey, attrs.Set{propName}, attrs.System(true)))
	seed(r.Attrs().Set("label", label))
	seed(r.Attrs().Add("type", true, attrs.WithKind(attrs.KindBool), attrs.WithDefault(false), attrs.Editable(false)))
	return r
}

// isaAttrSource parents the shared isa attribute store on the root isa
// edge's own store. Sharing one store stops the "isa is-a isa" recursion.
type isaAttrSource struct{ m *Model }

func (s isaAttrSource) AttrParents() []*attrs.Store {
	return []*attrs.Store{s.m.isaRel.Attrs()}
}

func (m *Model) allocID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// GUID returns the model's globally unique id.
func (m *Model) GUID() uuid.UUID { return m.guid }

// ShortID is the GUID prefix used in entity id strings.
func (m *Model) ShortID() string { return m.shortID }

func (m *Model) TopNode() *Node                { return m.topNode }
func (m *Model) TopRelation() *Relation        { return m.topRelation }
func (m *Model) IsaRelation() *Relation        { return m.isaRel }
func (m *Model) ReflexiveRelation() *Relation  { return m.reflexiveRel }
func (m *Model) SymmetricRelation() *Relation  { return m.symmetricRel }
func (m *Model) TransitiveRelation() *Relation { return m.transitiveRel }

// Nodes returns a snapshot of all nodes, builtins included.
func (m *Model) Nodes() []*Node {
	out := make([]*Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Relations returns a snapshot of all relations, builtins and isa edges
// included.
func (m *Model) Relations() []*Relation {
	out := make([]*Relation, len(m.relations))
	copy(out, m.relations)
	return out
}

// Lookup resolves a model-local id. Returns nil when unknown.
func (m *Model) Lookup(id int64) Entity { return m.addr[id] }

// LookupIDString resolves a "<shortID>:<id>" reference against this model.
func (m *Model) LookupIDString(ref string) (Entity, error) {
	short, id, err := ParseIDString(ref)
	if err != nil {
		return nil, err
	}
	if short != m.shortID {
		return nil, errors.Wrapf(errors.ErrUnresolvedRef,
			"reference %q belongs to model %s, not %s", ref, short, m.shortID)
	}
	e := m.addr[id]
	if e == nil {
		return nil, errors.Wrapf(errors.ErrUnresolvedRef, "no entity %q", ref)
	}
	return e, nil
}

// ParseIDString splits a "<shortID>:<id>" reference.
func ParseIDString(ref string) (short string, id int64, err error) {
	i := strings.LastIndexByte(ref, ':')
	if i < 0 {
		return "", 0, errors.Wrapf(errors.ErrUnresolvedRef, "malformed entity reference %q", ref)
	}
	id, err = strconv.ParseInt(ref[i+1:], 10, 64)
	if err != nil {
		return "", 0, errors.Wrapf(errors.ErrUnresolvedRef, "malformed entity reference %q", ref)
	}
	return ref[:i], id, nil
}

// FindByLabel returns every live entity whose resolved label matches.
func (m *Model) FindByLabel(label string) []Entity {
	var out []Entity
	for _, n := range m.nodes {
		if n.Label() == label {
			out = append(out, n)
		}
	}
	for _, r := range m.relations {
		if r.Label() == label {
			out = append(out, r)
		}
	}
	return out
}

// Subscribe adds a model observer.
func (m *Model) Subscribe(o ModelObserver) {
	m.observers = append(m.observers, o)
}

// Unsubscribe removes a model observer.
func (m *Model) Unsubscribe(o ModelObserver) {
	for i, ob := range m.observers {
		if ob == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
	m.log.Warnw("Unsubscribe called with an unregistered model observer")
}

// notifyObservers delivers a structural change to a snapshot of the observer
// list, recovering from observer panics.
func (m *Model) notifyObservers(e Entity, op Op) {
	obs := make([]ModelObserver, len(m.observers))
	copy(obs, m.observers)
	for _, o := range obs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.log.Warnw("model observer panicked",
						"entity", e.IDString(), "op", op, "panic", r)
				}
			}()
			o.OnModelChanged(e, op)
		}()
	}
}

func (m *Model) register(e Entity) {
	m.addr[e.ID()] = e
	switch v := e.(type) {
	case *Node:
		m.nodes = append(m.nodes, v)
		m.notifyObservers(e, OpAddNode)
	case *Relation:
		m.relations = append(m.relations, v)
		m.notifyObservers(e, OpAddRel)
	}
}

func (m *Model) unregister(e Entity) {
	delete(m.addr, e.ID())
	switch v := e.(type) {
	case *Node:
		for i, n := range m.nodes {
			if n == v {
				m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
				m.notifyObservers(e, OpDelNode)
				return
			}
		}
		m.log.Warnw("unregister of unknown node", "node", e.IDString())
	case *Relation:
		for i, r := range m.relations {
			if r == v {
				m.relations = append(m.relations[:i], m.relations[i+1:]...)
				m.notifyObservers(e, OpDelRel)
				return
			}
		}
		m.log.Warnw("unregister of unknown relation", "relation", e.IDString())
	}
}

func (m *Model) checkOwned(e Entity) error {
	if e == nil {
		return errors.New("nil entity")
	}
	if e.Model() != m {
		return errors.Wrapf(errors.ErrSchemaViolation,
			"entity %s belongs to another model", e.IDString())
	}
	if s := e.State(); s == StateDeleting || s == StateDeleted {
		return errors.Wrapf(errors.ErrEntityDead, "entity %s is %s", e.IDString(), s)
	}
	return nil
}

// NewNode creates a node of the given types (one isa edge per type). With no
// types the node hangs off the root node type.
func (m *Model) NewNode(types ...*Node) (*Node, error) {
	if len(types) == 0 {
		types = []*Node{m.topNode}
	}
	for _, t := range types {
		if t == nil {
			return nil, errors.New("nil node type")
		}
		if err := m.checkOwned(t); err != nil {
			return nil, err
		}
	}
	n := &Node{}
	n.init(m, n, m.allocID())
	var made []*Relation
	for _, t := range types {
		r, err := m.newIsa(n, t)
		if err != nil {
			for _, prev := range made {
				prev.Delete()
			}
			return nil, errors.Wrapf(err, "cannot type node as %s", t.IDString())
		}
		made = append(made, r)
	}
	m.register(n)
	n.state = StateLive
	m.log.Debugw("node created", "symbol", sym.Node, "node", n.IDString())
	return n, nil
}

// NewRelation creates a relation between from and to, of the given relation
// types (one isa edge per type; the root relation type when none given).
// Endpoints must be the same variety and must satisfy covariance against
// every type. All checks run before any mutation.
func (m *Model) NewRelation(from, to Entity, types ...*Relation) (*Relation, error) {
	if err := checkVariety(from, to); err != nil {
		return nil, err
	}
	if err := m.checkOwned(from); err != nil {
		return nil, err
	}
	if err := m.checkOwned(to); err != nil {
		return nil, err
	}
	if len(types) == 0 {
		types = []*Relation{m.topRelation}
	}
	for _, t := range types {
		if t == nil {
			return nil, errors.New("nil relation type")
		}
		if err := m.checkOwned(t); err != nil {
			return nil, err
		}
		if t.IsIsa() {
			return nil, errors.Wrapf(errors.ErrSchemaViolation,
				"%s is an isa edge; use NewIsa to subtype", t.IDString())
		}
		if err := checkCovariance(from, to, t); err != nil {
			return nil, err
		}
	}
	r := &Relation{from: from, to: to}
	r.init(m, r, m.allocID())
	var made []*Relation
	for _, t := range types {
		e, err := m.newIsa(r, t)
		if err != nil {
			for _, prev := range made {
				prev.Delete()
			}
			return nil, errors.Wrapf(err, "cannot type relation as %s", t.IDString())
		}
		made = append(made, e)
	}
	m.register(r)
	from.addIncident(r)
	if to != from {
		to.addIncident(r)
	}
	r.state = StateLive
	m.log.Debugw("relation created", "symbol", sym.Rel, "relation", r.IDString())
	return r, nil
}

// EnsureRelation returns an existing non-isa relation from → to conforming
// to one of the given types, creating one only when none exists.
func (m *Model) EnsureRelation(from, to Entity, types ...*Relation) (*Relation, error) {
	if len(types) == 0 {
		types = []*Relation{m.topRelation}
	}
	if from != nil {
		for _, t := range types {
			for _, r := range from.Relations() {
				if r.To() == to && r.From() == from && !r.IsIsa() && r.Isa(t) {
					return r, nil
				}
			}
		}
	}
	return m.NewRelation(from, to, types...)
}

// NewIsa adds a subtype edge from → to. Rejected if it would make the isa
// graph cyclic or restate an existing ancestry; on acceptance, edges from the
// same source made redundant by the new one are deleted.
func (m *Model) NewIsa(from, to Entity) (*Relation, error) {
	if err := m.checkOwned(from); err != nil {
		return nil, err
	}
	if err := m.checkOwned(to); err != nil {
		return nil, err
	}
	return m.newIsa(from, to)
}

func (m *Model) newIsa(from, to Entity) (*Relation, error) {
	if err := checkVariety(from, to); err != nil {
		return nil, err
	}
	if !m.bootstrapping {
		if to == from || ancestorSet(to)[from] {
			return nil, errors.Wrapf(errors.ErrCyclicIsa,
				"isa %s %s %s would make the type hierarchy cyclic",
				from.IDString(), sym.Isa, to.IDString())
		}
		if ancestorSet(from)[to] {
			return nil, errors.Wrapf(errors.ErrRedundantIsa,
				"%s is already a subtype of %s", from.IDString(), to.IDString())
		}
	}
	r := &Relation{from: from, to: to, isIsa: true}
	r.init(m, r, m.allocID())
	if m.isaRel != nil {
		// Every isa edge but the root shares one attribute store.
		r.attrStore = m.isaAttrs
	}
	from.addIncident(r)
	if to != from {
		to.addIncident(r)
	}
	m.register(r)
	r.state = StateLive
	m.pruneRedundant(from, to, r)
	return r, nil
}

// ancestorSet is the proper transitive isa-ancestor set (self excluded).
func ancestorSet(e Entity) map[Entity]bool {
	out := make(map[Entity]bool)
	for _, a := range e.Ancestors().Flatten() {
		if a != e {
			out[a] = true
		}
	}
	return out
}

// pruneRedundant deletes isa edges from `from` whose target is now reachable
// through the freshly attached edge to `to`.
func (m *Model) pruneRedundant(from, to Entity, keep *Relation) {
	anc := ancestorSet(to)
	for _, r := range from.Relations() {
		if r == keep || !r.IsIsa() || r.From() != from {
			continue
		}
		if anc[r.To()] {
			m.log.Infow("deleting redundant isa edge", "symbol", sym.Isa,
				"from", fmt.Sprintf("%s (%s)", from.Label(), from.IDString()),
				"to", fmt.Sprintf("%s (%s)", r.To().Label(), r.To().IDString()))
			r.Delete()
		}
	}
}
