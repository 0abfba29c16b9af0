package attrs

import (
	"testing"

	"github.com/teranos/typegraph/errors"
)

// chain is a test ParentSource with a fixed parent list.
type chain struct {
	parents []*Store
}

func (c *chain) AttrParents() []*Store { return c.parents }

func newChild(parents ...*Store) *Store {
	return NewStore(&chain{parents: parents}, nil)
}

// recorder captures change notifications.
type recorder struct {
	keys   []string
	values []any
}

func (r *recorder) OnAttrChanged(_ *Store, key string, value any) {
	r.keys = append(r.keys, key)
	r.values = append(r.values, value)
}

func TestAddGetConfig(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.Add("k", 5); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := s.Get("k"); got != 5 {
		t.Errorf("Get(k) = %v, want 5", got)
	}
	if err := s.Config("k", Value(7)); err != nil {
		t.Fatalf("Config: %v", err)
	}
	if got := s.Get("k"); got != 7 {
		t.Errorf("Get(k) = %v, want 7", got)
	}
}

func TestGetMissingIsNil(t *testing.T) {
	s := NewStore(nil, nil)
	if got := s.Get("absent"); got != nil {
		t.Errorf("Get(absent) = %v, want nil", got)
	}
}

func TestInheritanceFirstMatch(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "parental"); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)

	if got := c.Get("k"); got != "parental" {
		t.Errorf("child Get(k) = %v, want parental", got)
	}

	// a local add shadows the parent without touching it
	if err := c.Add("k", "local"); err != nil {
		t.Fatalf("child Add: %v", err)
	}
	if got := c.Get("k"); got != "local" {
		t.Errorf("child Get(k) = %v, want local", got)
	}
	if got := p.Get("k"); got != "parental" {
		t.Errorf("parent Get(k) = %v, want parental (unchanged)", got)
	}
}

func TestParentOrderWins(t *testing.T) {
	p1 := NewStore(nil, nil)
	p2 := NewStore(nil, nil)
	if err := p1.Add("k", "first"); err != nil {
		t.Fatal(err)
	}
	if err := p2.Add("k", "second"); err != nil {
		t.Fatal(err)
	}
	c := newChild(p1, p2)
	if got := c.Get("k"); got != "first" {
		t.Errorf("Get(k) = %v, want first (parent order)", got)
	}
}

func TestFinalBlocksOverride(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "locked", Final(true)); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)

	if err := c.Add("k", "nope"); !errors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("Add over final: error = %v, want ErrSchemaViolation", err)
	}
	if got := c.Get("k"); got != "locked" {
		t.Errorf("Get(k) = %v, want the parent's value", got)
	}
}

func TestFinalBlocksDeepOverride(t *testing.T) {
	grand := NewStore(nil, nil)
	if err := grand.Add("k", "locked", Final(true)); err != nil {
		t.Fatal(err)
	}
	mid := newChild(grand)
	leaf := newChild(mid)

	if err := leaf.Add("k", "nope"); !errors.Is(err, errors.ErrSchemaViolation) {
		t.Errorf("Add over grandparent final: error = %v, want ErrSchemaViolation", err)
	}
}

func TestNonEditableRejectsValueChange(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.Add("k", true, Editable(false)); err != nil {
		t.Fatal(err)
	}
	if err := s.Config("k", Value(false)); !errors.Is(err, errors.ErrNotEditable) {
		t.Errorf("Config on non-editable: error = %v, want ErrNotEditable", err)
	}
	// re-asserting the same value is not a change
	if err := s.Config("k", Value(true)); err != nil {
		t.Errorf("Config with same value: %v, want ok", err)
	}
}

func TestEditableDoesNotInherit(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "v", Editable(false)); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)

	// materializing a local item from the inherited one re-enables editing
	if err := c.Config("k", Value("mine")); err != nil {
		t.Errorf("child Config: %v, want ok (editable does not inherit)", err)
	}
	if got := c.Get("k"); got != "mine" {
		t.Errorf("Get(k) = %v, want mine", got)
	}
}

func TestValidatorRejectionLeavesStateUnchanged(t *testing.T) {
	s := NewStore(nil, nil)
	positive := func(v any) (any, error) {
		if n, ok := v.(int); ok && n > 0 {
			return n, nil
		}
		return nil, errors.Wrapf(errors.ErrValidation, "value %v is not positive", v)
	}
	if err := s.Add("k", 1, WithValidator(positive)); err != nil {
		t.Fatal(err)
	}
	if err := s.Config("k", Value(-3)); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Config(-3): error = %v, want ErrValidation", err)
	}
	if got := s.Get("k"); got != 1 {
		t.Errorf("Get(k) = %v, want 1 after rejection", got)
	}
}

func TestDefaultMaterializesOnFirstRead(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "parent-value", WithDefault("fresh")); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)

	if got := c.Get("k"); got != "fresh" {
		t.Errorf("first read = %v, want the declared default", got)
	}
	if !c.HasLocal("k") {
		t.Error("default read did not materialize a local item")
	}

	// the materialized copy is independent of the parent from now on
	if err := p.Config("k", Value("changed")); err != nil {
		t.Fatal(err)
	}
	if got := c.Get("k"); got != "fresh" {
		t.Errorf("after parent change = %v, want fresh (local copy owns the key)", got)
	}
}

func TestSetKindUnionAcrossChain(t *testing.T) {
	grand := NewStore(nil, nil)
	if err := grand.Add("tags", Set{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	mid := newChild(grand)
	if err := mid.Add("tags", Set{"b", "c"}); err != nil {
		t.Fatal(err)
	}
	leaf := newChild(mid)
	if err := leaf.Add("tags", Set{"d"}); err != nil {
		t.Fatal(err)
	}

	got, ok := leaf.Get("tags").(Set)
	if !ok {
		t.Fatalf("Get(tags) = %T, want Set", leaf.Get("tags"))
	}
	want := map[string]bool{"a": true, "b": true, "c": true, "d": true}
	if len(got) != len(want) {
		t.Fatalf("union = %v, want keys %v", got, want)
	}
	for _, v := range got {
		if !want[v] {
			t.Errorf("union contains unexpected %q", v)
		}
	}

	// the ancestors' own items must not have been widened
	if g := grand.Get("tags").(Set); len(g) != 2 {
		t.Errorf("grandparent set = %v, want untouched {a b}", g)
	}
}

func TestSetUnionConvergesWithDefaults(t *testing.T) {
	// a set declared with a default materializes once, then aggregates
	// across the whole materialized chain on every read
	p := NewStore(nil, nil)
	if err := p.Add("tags", Set{"base"}, WithDefault(Set{"seed"})); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)

	first := c.Get("tags").(Set)
	second := c.Get("tags").(Set)
	if len(first) != len(second) {
		t.Errorf("repeated reads diverge: %v then %v", first, second)
	}
	want := map[string]bool{"seed": true, "base": true}
	for _, v := range second {
		if !want[v] {
			t.Errorf("union contains unexpected %q", v)
		}
	}
}

func TestChoicesSynthesizedValidator(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.Add("shape", []string{"Rectangle", "Oval", "Hexagon"}); err != nil {
		t.Fatal(err)
	}
	if got := s.Get("shape"); got != "Rectangle" {
		t.Errorf("initial value = %v, want Rectangle", got)
	}
	if err := s.Set("shape", "Oval"); err != nil {
		t.Errorf("Set(Oval): %v, want ok", err)
	}
	if err := s.Set("shape", "Triangle"); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("Set(Triangle): error = %v, want ErrValidation", err)
	}
	if got := s.Get("shape"); got != "Oval" {
		t.Errorf("value = %v, want Oval after rejection", got)
	}
}

func TestChoicesRepeatMarksMenuPosition(t *testing.T) {
	s := NewStore(nil, nil)
	// the repeated "b" means: current value b, menu order a b c
	if err := s.Add("k", []string{"b", "a", "b", "c"}); err != nil {
		t.Fatal(err)
	}
	if got := s.Get("k"); got != "b" {
		t.Errorf("value = %v, want b", got)
	}
	choices := s.ChoicesOf("k")
	if len(choices) != 3 || choices[0] != "a" || choices[1] != "b" || choices[2] != "c" {
		t.Errorf("choices = %v, want [a b c]", choices)
	}
}

func TestRemoveExposesInherited(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "parental"); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)
	if err := c.Add("k", "local"); err != nil {
		t.Fatal(err)
	}

	c.Remove("k")
	if got := c.Get("k"); got != "parental" {
		t.Errorf("Get(k) = %v, want parental after Remove", got)
	}
	c.Remove("k") // removing an absent local is a no-op
}

func TestNotifyOnValueChange(t *testing.T) {
	s := NewStore(nil, nil)
	rec := &recorder{}
	s.Subscribe(rec)

	if err := s.Add("k", 1); err != nil {
		t.Fatal(err)
	}
	if len(rec.keys) != 0 {
		t.Errorf("Add notified %v, want no notification", rec.keys)
	}

	if err := s.Config("k", Value(2)); err != nil {
		t.Fatal(err)
	}
	if len(rec.keys) != 1 || rec.keys[0] != "k" || rec.values[0] != 2 {
		t.Errorf("notifications = %v %v, want [k] [2]", rec.keys, rec.values)
	}

	// same value again: no change, no notification
	if err := s.Config("k", Value(2)); err != nil {
		t.Fatal(err)
	}
	if len(rec.keys) != 1 {
		t.Errorf("redundant Config notified again: %v", rec.keys)
	}
}

func TestUncomparableValuesCompareByContents(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.Add("meta", map[string]string{"origin": "import"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec := &recorder{}
	s.Subscribe(rec)
	if err := s.Config("meta", Value(map[string]string{"origin": "import"})); err != nil {
		t.Fatalf("Config with equal map: %v", err)
	}
	if len(rec.keys) != 0 {
		t.Errorf("equal map value notified %v, want no notification", rec.keys)
	}

	if err := s.Config("meta", Value(map[string]string{"origin": "manual"})); err != nil {
		t.Fatalf("Config with changed map: %v", err)
	}
	if len(rec.keys) != 1 || rec.keys[0] != "meta" {
		t.Errorf("notifications = %v, want [meta]", rec.keys)
	}
	if got := s.Get("meta").(map[string]string); got["origin"] != "manual" {
		t.Errorf("Get(meta) = %v, want the updated map", got)
	}
}

func TestPingReNotifiesWithoutLocalOverride(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("k", "v1"); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)
	rec := &recorder{}
	c.Subscribe(rec)

	c.Ping("k")
	if len(rec.keys) != 1 || rec.values[0] != "v1" {
		t.Errorf("Ping notified %v %v, want [k] [v1]", rec.keys, rec.values)
	}

	// with a local override the ping is absorbed
	if err := c.Add("k", "mine"); err != nil {
		t.Fatal(err)
	}
	rec.keys, rec.values = nil, nil
	c.Ping("k")
	if len(rec.keys) != 0 {
		t.Errorf("Ping with local override notified %v, want nothing", rec.keys)
	}
}

type unsubscriber struct {
	store *Store
	fired int
}

func (u *unsubscriber) OnAttrChanged(s *Store, _ string, _ any) {
	u.fired++
	u.store.Unsubscribe(u)
}

func TestObserverMayUnsubscribeDuringNotify(t *testing.T) {
	s := NewStore(nil, nil)
	u := &unsubscriber{store: s}
	rec := &recorder{}
	s.Subscribe(u)
	s.Subscribe(rec)

	if err := s.Add("k", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Config("k", Value(2)); err != nil {
		t.Fatal(err)
	}

	if u.fired != 1 {
		t.Errorf("unsubscriber fired %d times, want 1", u.fired)
	}
	if len(rec.keys) != 1 {
		t.Errorf("second observer got %v, want one delivery", rec.keys)
	}
	if n := s.ObserverCount(); n != 1 {
		t.Errorf("ObserverCount = %d, want 1 after self-unsubscribe", n)
	}
}

type panicker struct{}

func (panicker) OnAttrChanged(*Store, string, any) { panic("observer bug") }

func TestObserverPanicDoesNotBlockDelivery(t *testing.T) {
	s := NewStore(nil, nil)
	rec := &recorder{}
	s.Subscribe(panicker{})
	s.Subscribe(rec)

	if err := s.Add("k", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Config("k", Value(2)); err != nil {
		t.Fatal(err)
	}
	if len(rec.keys) != 1 {
		t.Errorf("observer after panicker got %v, want one delivery", rec.keys)
	}
}

func TestKeysOrderAndFilter(t *testing.T) {
	p := NewStore(nil, nil)
	if err := p.Add("inherited", 1); err != nil {
		t.Fatal(err)
	}
	c := newChild(p)
	if err := c.Add("one", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.Add("two", 2); err != nil {
		t.Fatal(err)
	}

	locals := c.Keys(true, false)
	if len(locals) != 2 || locals[0] != "one" || locals[1] != "two" {
		t.Errorf("local keys = %v, want [one two] in insertion order", locals)
	}
	all := c.Keys(true, true)
	found := false
	for _, k := range all {
		if k == "inherited" {
			found = true
		}
	}
	if !found {
		t.Errorf("Keys(true,true) = %v, missing inherited key", all)
	}
}

func TestGateBlocksMutation(t *testing.T) {
	s := NewStore(nil, nil)
	if err := s.Add("k", 1); err != nil {
		t.Fatal(err)
	}
	s.SetGate(func() error { return errors.ErrEntityDead })

	if err := s.Add("j", 2); !errors.Is(err, errors.ErrEntityDead) {
		t.Errorf("gated Add: error = %v, want ErrEntityDead", err)
	}
	if err := s.Config("k", Value(9)); !errors.Is(err, errors.ErrEntityDead) {
		t.Errorf("gated Config: error = %v, want ErrEntityDead", err)
	}
	s.Remove("k")
	if got := s.Get("k"); got != 1 {
		t.Errorf("gated Remove changed state: Get(k) = %v, want 1", got)
	}
}
