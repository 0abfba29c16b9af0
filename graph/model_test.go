package graph

import (
	"testing"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
)

func TestBuiltinSeed(t *testing.T) {
	m := newTestModel(t)

	if m.TopNode() == nil || m.TopNode().ID() != 0 {
		t.Fatal("root node missing or not id 0")
	}
	if m.TopRelation() == nil || m.TopRelation().ID() != 1 {
		t.Fatal("root relation missing or not id 1")
	}
	if got := m.TopNode().Label(); got != TopNodeLabel {
		t.Errorf("root node label = %q, want %q", got, TopNodeLabel)
	}
	if got := m.IsaRelation().Label(); got != IsaLabel {
		t.Errorf("isa label = %q, want %q", got, IsaLabel)
	}
	if !m.TopNode().System() {
		t.Error("root node not marked system")
	}
	for _, r := range []*Relation{m.ReflexiveRelation(), m.SymmetricRelation(), m.TransitiveRelation()} {
		if !r.Isa(m.TopRelation()) {
			t.Errorf("%s not isa the root relation", r.Label())
		}
	}
	// the isa type itself is transitive by construction
	if !m.IsaRelation().Isa(m.TransitiveRelation()) {
		t.Error("isa type not isa TRANSITIVE")
	}
}

func TestUserIDsStartAtReservedBoundary(t *testing.T) {
	m := newTestModel(t)
	n := mustNode(t, m, "first")
	if n.ID() < ReservedID {
		t.Errorf("user node id = %d, want >= %d", n.ID(), ReservedID)
	}
	if n.System() {
		t.Error("user node marked system")
	}
}

func TestIDStringRoundTrip(t *testing.T) {
	m := newTestModel(t)
	n := mustNode(t, m, "n")

	e, err := m.LookupIDString(n.IDString())
	if err != nil {
		t.Fatalf("LookupIDString(%s): %v", n.IDString(), err)
	}
	if e != Entity(n) {
		t.Errorf("LookupIDString returned %v, want %v", e, n)
	}

	if _, err := m.LookupIDString("deadbeef:300"); !errors.Is(err, errors.ErrUnresolvedRef) {
		t.Errorf("foreign-model ref error = %v, want ErrUnresolvedRef", err)
	}
	if _, _, err := ParseIDString("garbage"); !errors.Is(err, errors.ErrUnresolvedRef) {
		t.Errorf("malformed ref error = %v, want ErrUnresolvedRef", err)
	}
}

func TestFindByLabel(t *testing.T) {
	m := newTestModel(t)
	mustNode(t, m, "alice")
	mustNode(t, m, "alice")
	mustNode(t, m, "bob")

	if got := m.FindByLabel("alice"); len(got) != 2 {
		t.Errorf("FindByLabel(alice) = %d entities, want 2", len(got))
	}
	if got := m.FindByLabel("nobody"); len(got) != 0 {
		t.Errorf("FindByLabel(nobody) = %v, want empty", got)
	}
}

// opRecorder captures model notifications.
type opRecorder struct {
	ops []Op
}

func (r *opRecorder) OnModelChanged(_ Entity, op Op) { r.ops = append(r.ops, op) }

func countOps(ops []Op, want Op) int {
	n := 0
	for _, op := range ops {
		if op == want {
			n++
		}
	}
	return n
}

func TestModelNotifications(t *testing.T) {
	m := newTestModel(t)
	rec := &opRecorder{}
	m.Subscribe(rec)

	a := mustNode(t, m, "a")
	b := mustNode(t, m, "b")
	mustRelation(t, m, "r", a, b)

	// each node creation is one add-node plus one add-rel for its isa edge;
	// the relation adds one add-rel for itself and one for its isa edge
	if got := countOps(rec.ops, OpAddNode); got != 2 {
		t.Errorf("add-node count = %d, want 2", got)
	}
	if got := countOps(rec.ops, OpAddRel); got != 4 {
		t.Errorf("add-rel count = %d, want 4", got)
	}

	rec.ops = nil
	a.Delete()
	if got := countOps(rec.ops, OpDelNode); got != 1 {
		t.Errorf("del-node count = %d, want 1", got)
	}
	// a's isa edge and the a→b relation (plus its isa edge) go with it
	if got := countOps(rec.ops, OpDelRel); got != 3 {
		t.Errorf("del-rel count = %d, want 3", got)
	}

	m.Unsubscribe(rec)
	rec.ops = nil
	b.Delete()
	if len(rec.ops) != 0 {
		t.Errorf("got %v after unsubscribe, want nothing", rec.ops)
	}
}

type entityRecorder struct {
	target  Entity
	changes []AttrChange
	ops     []Op
}

func (r *entityRecorder) OnEntityChanged(e Entity, op Op, info any) {
	r.ops = append(r.ops, op)
	if op == OpModAttr {
		r.changes = append(r.changes, info.(AttrChange))
	}
	if op == OpDelete {
		r.target.Unsubscribe(r)
	}
}

func TestAttrChangePropagatesDownIsaChain(t *testing.T) {
	m := newTestModel(t)
	parent := mustNode(t, m, "parent")
	child := mustNode(t, m, "child", parent)
	grandchild := mustNode(t, m, "grandchild", child)

	if err := parent.Attrs().Set("fillColor", "red"); err != nil {
		t.Fatal(err)
	}
	if got := grandchild.Attrs().Get("fillColor"); got != "red" {
		t.Errorf("grandchild fillColor = %v, want red (inherited)", got)
	}

	rec := &entityRecorder{target: grandchild}
	grandchild.Subscribe(rec)
	if err := parent.Attrs().Set("fillColor", "green"); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, c := range rec.changes {
		if c.Key == "fillColor" && c.Value == "green" {
			found = true
		}
	}
	if !found {
		t.Errorf("grandchild changes = %v, want fillColor=green", rec.changes)
	}
}

func TestLocalOverrideAbsorbsPropagation(t *testing.T) {
	m := newTestModel(t)
	parent := mustNode(t, m, "parent")
	child := mustNode(t, m, "child", parent)

	if err := child.Attrs().Set("fillColor", "blue"); err != nil {
		t.Fatal(err)
	}
	rec := &entityRecorder{target: child}
	child.Subscribe(rec)

	if err := parent.Attrs().Set("fillColor", "green"); err != nil {
		t.Fatal(err)
	}
	for _, c := range rec.changes {
		if c.Key == "fillColor" {
			t.Errorf("override did not absorb propagation: %v", c)
		}
	}
	if got := child.Attrs().Get("fillColor"); got != "blue" {
		t.Errorf("child fillColor = %v, want blue", got)
	}
}

func TestFinalAttributeBlocksSubtypes(t *testing.T) {
	m := newTestModel(t)
	base := mustNode(t, m, "base")
	sub := mustNode(t, m, "sub", base)

	if err := base.Attrs().Add("sealed", "yes", attrs.Final(true)); err != nil {
		t.Fatal(err)
	}
	if err := sub.Attrs().Add("sealed", "no"); !errors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("override of final attr: error = %v, want ErrSchemaViolation", err)
	}
	if got := sub.Attrs().Get("sealed"); got != "yes" {
		t.Errorf("sub sealed = %v, want the final ancestor value", got)
	}
}

func TestObserversUnsubscribeOnDelete(t *testing.T) {
	m := newTestModel(t)
	n := mustNode(t, m, "n")
	rec := &entityRecorder{target: n}
	n.Subscribe(rec)

	n.Delete()

	if countOps(rec.ops, OpDelete) != 1 {
		t.Errorf("ops = %v, want one del notice", rec.ops)
	}
}

func TestShapeChoicesValidated(t *testing.T) {
	m := newTestModel(t)
	n := mustNode(t, m, "n")

	if err := n.Attrs().Set("shape", "Hexagon"); err != nil {
		t.Errorf("Set(shape, Hexagon): %v, want ok", err)
	}
	if err := n.Attrs().Set("shape", "Blob"); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Set(shape, Blob): error = %v, want ErrValidation", err)
	}
}

func TestEnsureRelationDeduplicates(t *testing.T) {
	m := newTestModel(t)
	person := mustNode(t, m, "person")
	alice := mustNode(t, m, "alice", person)
	bob := mustNode(t, m, "bob", person)
	knows := mustRelation(t, m, "knows", person, person)

	first, err := m.EnsureRelation(alice, bob, knows)
	if err != nil {
		t.Fatalf("EnsureRelation: %v", err)
	}
	again, err := m.EnsureRelation(alice, bob, knows)
	if err != nil {
		t.Fatalf("EnsureRelation: %v", err)
	}
	if first != again {
		t.Error("EnsureRelation created a duplicate of an existing relation")
	}
	// the reverse direction is a different relation
	back, err := m.EnsureRelation(bob, alice, knows)
	if err != nil {
		t.Fatalf("EnsureRelation: %v", err)
	}
	if back == first {
		t.Error("EnsureRelation conflated directions")
	}
}

func TestRestoreTwoPhase(t *testing.T) {
	m := newTestModel(t)

	// phase 1: entities under their saved ids, endpoints unbound
	alice, err := m.RestoreNode(300)
	if err != nil {
		t.Fatalf("RestoreNode: %v", err)
	}
	person, err := m.RestoreNode(301)
	if err != nil {
		t.Fatalf("RestoreNode: %v", err)
	}
	edge, err := m.RestoreRelation(302, true)
	if err != nil {
		t.Fatalf("RestoreRelation: %v", err)
	}

	// phase 2: bind, isa edges first
	if err := edge.BindEndpoints(alice, person); err != nil {
		t.Fatalf("BindEndpoints: %v", err)
	}
	if !alice.Isa(person) {
		t.Error("alice.Isa(person) = false after restore")
	}
	if m.Lookup(302) != Entity(edge) {
		t.Error("restored edge not resolvable by id")
	}

	// new allocations must not collide with restored ids
	fresh := mustNode(t, m, "fresh")
	if fresh.ID() <= 302 {
		t.Errorf("fresh id = %d, want beyond restored ids", fresh.ID())
	}
}

func TestRestoreRejectsBadIDs(t *testing.T) {
	m := newTestModel(t)
	if _, err := m.RestoreNode(3); !errors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("builtin-range id error = %v, want ErrSchemaViolation", err)
	}
	if _, err := m.RestoreNode(400); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RestoreNode(400); !errors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("duplicate id error = %v, want ErrSchemaViolation", err)
	}
}

func TestRestoreBindFailureDropsRelation(t *testing.T) {
	m := newTestModel(t)
	person := mustNode(t, m, "person")
	alice := mustNode(t, m, "alice", person)
	place := mustNode(t, m, "place")
	paris := mustNode(t, m, "paris", place)
	knows := mustRelation(t, m, "knows", person, person)

	bad, err := m.RestoreRelation(500, false)
	if err != nil {
		t.Fatal(err)
	}
	// type the restored edge first, as a loader would
	typeEdge, err := m.RestoreRelation(501, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := typeEdge.BindEndpoints(bad, knows); err != nil {
		t.Fatalf("typing edge: %v", err)
	}

	if err := bad.BindEndpoints(alice, paris); !errors.Is(err, errors.ErrCovariance) {
		t.Errorf("BindEndpoints error = %v, want ErrCovariance", err)
	}
	if bad.State() != StateDeleted {
		t.Errorf("state = %v, want deleted after failed bind", bad.State())
	}
	if m.Lookup(500) != nil {
		t.Error("dropped relation still resolvable")
	}
}

func TestRestoreRejectsCyclicIsaBind(t *testing.T) {
	m := newTestModel(t)
	animal, err := m.RestoreNode(400)
	if err != nil {
		t.Fatal(err)
	}
	mammal, err := m.RestoreNode(401)
	if err != nil {
		t.Fatal(err)
	}
	up, err := m.RestoreRelation(402, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := up.BindEndpoints(mammal, animal); err != nil {
		t.Fatalf("first isa bind: %v", err)
	}

	// closing the cycle must fail before the edge attaches
	down, err := m.RestoreRelation(403, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := down.BindEndpoints(animal, mammal); !errors.Is(err, errors.ErrCyclicIsa) {
		t.Errorf("cycle-closing bind error = %v, want ErrCyclicIsa", err)
	}
	down.Discard()
	if m.Lookup(403) != nil {
		t.Error("discarded relation still resolvable")
	}
	if !mammal.Isa(animal) {
		t.Error("surviving isa edge lost")
	}

	// restating the surviving ancestry must fail the same way a live add would
	again, err := m.RestoreRelation(404, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := again.BindEndpoints(mammal, animal); !errors.Is(err, errors.ErrRedundantIsa) {
		t.Errorf("restated isa bind error = %v, want ErrRedundantIsa", err)
	}
	again.Discard()
}
