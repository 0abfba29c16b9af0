// Package attrs implements inheritable attribute stores for graph entities.
//
// A Store maps string keys to typed items and resolves lookups through a
// dynamic, ordered chain of parent stores supplied by the owning entity.
// Items carry schema properties: final (cannot be overridden by a child
// store), editable, a kind, an optional default (materialized locally on
// first read by a child), an optional validator, and a system flag.
//
// Resolution is first-match in parent order, with one exception: set-kind
// items resolve to the union of the local value and every ancestor value.
package attrs

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/typegraph/errors"
)

// Kind classifies an attribute value for editors and persistence.
type Kind string

const (
	KindText    Kind = "text"
	KindMText   Kind = "mtext" // multi-line text
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindColor   Kind = "color"
	KindSet     Kind = "set"
	KindBool    Kind = "bool"
	KindChoices Kind = "choices"
	KindUnknown Kind = "unknown"
)

var kinds = map[Kind]bool{
	KindText: true, KindMText: true, KindInt: true, KindFloat: true,
	KindColor: true, KindSet: true, KindBool: true, KindChoices: true,
	KindUnknown: true,
}

// Set is a value type that infers to KindSet. Resolution unions set values
// across the whole inheritance chain instead of stopping at the first match.
type Set []string

// Validator checks a proposed value and either returns it (possibly
// normalized) or an error. A validator error leaves the item unchanged.
type Validator func(value any) (any, error)

// Observer is notified when an attribute value changes in a store it
// subscribed to. Callbacks run synchronously; a panic in a callback is
// recovered, logged, and does not block delivery to other observers.
type Observer interface {
	OnAttrChanged(s *Store, key string, value any)
}

// ParentSource supplies the current parent stores for inherited lookups.
// The owner's isa edges back this; the chain is dynamic and ordered.
type ParentSource interface {
	AttrParents() []*Store
}

// Item is a single attribute: a value plus its schema properties.
// Owned exclusively by one Store.
type Item struct {
	Key       string
	Value     any
	Final     bool // cannot be overridden by a child store
	Editable  bool // value may change after being set
	Kind      Kind
	Default   any // child stores materialize a local copy from this on first read
	Validator Validator
	System    bool // hidden from end users
	Choices   []string
}

// InferKind reproduces kind inference from a key and value: string values
// become color when the key names a colo(u)r, mtext when multi-line, text
// otherwise; Set values become set; slices become choices.
func InferKind(key string, value any) Kind {
	switch v := value.(type) {
	case string:
		lk := strings.ToLower(key)
		if strings.Contains(lk, "color") || strings.Contains(lk, "colour") {
			return KindColor
		}
		if strings.Contains(v, "\n") {
			return KindMText
		}
		return KindText
	case int, int64:
		return KindInt
	case float32, float64:
		return KindFloat
	case bool:
		return KindBool
	case Set:
		return KindSet
	case []string, []any:
		return KindChoices
	default:
		return KindUnknown
	}
}

// newItem builds an item, inferring the kind when none is given and
// synthesizing a choices validator from a slice value.
func newItem(key string, value any, kind Kind) (*Item, error) {
	if kind == "" {
		kind = InferKind(key, value)
	}
	if !kinds[kind] {
		return nil, errors.Newf("unknown kind %q for attribute %q", kind, key)
	}
	it := &Item{Key: key, Value: value, Editable: true, Kind: kind}
	if kind == KindChoices && it.Validator == nil {
		list, ok := toStringList(value)
		if !ok || len(list) == 0 {
			return nil, errors.Newf("cannot infer validator for choices attribute %q: value is not a non-empty list", key)
		}
		it.Value, it.Choices = splitChoices(list)
		it.Validator = ChoicesValidator(it.Choices)
	}
	return it, nil
}

// splitChoices interprets a choices list: the first element is the current
// value. If the first element is repeated later, the remainder alone is the
// choice set (the repeat marks where the value sits in the menu order);
// otherwise the whole list is. Duplicates are dropped, order preserved.
func splitChoices(list []string) (value string, choices []string) {
	value = list[0]
	rest := list[1:]
	repeated := false
	for _, c := range rest {
		if c == value {
			repeated = true
			break
		}
	}
	if !repeated {
		rest = list
	}
	seen := make(map[string]bool, len(rest))
	for _, c := range rest {
		if !seen[c] {
			seen[c] = true
			choices = append(choices, c)
		}
	}
	return value, choices
}

// ChoicesValidator returns a membership validator over the given choices.
func ChoicesValidator(choices []string) Validator {
	return func(value any) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, errors.Wrapf(errors.ErrValidation, "value %v is not a string", value)
		}
		for _, c := range choices {
			if s == c {
				return s, nil
			}
		}
		return nil, errors.Wrapf(errors.ErrValidation, "value %q should be one of %v", s, choices)
	}
}

func toStringList(value any) ([]string, bool) {
	switch v := value.(type) {
	case Set:
		return v, true
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// Store holds the local attribute items of one entity plus the machinery for
// inherited resolution and change notification.
type Store struct {
	owner     ParentSource
	items     map[string]*Item
	order     []string // insertion order of local keys
	observers []Observer
	gate      func() error
	log       *zap.SugaredLogger
}

// NewStore creates an empty store. owner may be nil (no inheritance).
// log may be nil.
func NewStore(owner ParentSource, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		owner: owner,
		items: make(map[string]*Item),
		log:   log,
	}
}

// SetOwner rebinds the parent source. Used when an entity swaps its store
// for a shared one.
func (s *Store) SetOwner(owner ParentSource) { s.owner = owner }

// SetGate installs a precondition checked before every mutation. A non-nil
// error from the gate aborts the mutation.
func (s *Store) SetGate(gate func() error) { s.gate = gate }

func (s *Store) checkGate() error {
	if s.gate == nil {
		return nil
	}
	return s.gate()
}

// Parents returns the current parent chain, in order. A broken owner yields
// an empty chain rather than an error.
func (s *Store) Parents() []*Store {
	if s.owner == nil {
		return nil
	}
	return s.owner.AttrParents()
}

// Option is a schema property applied by Add or Config. Unset properties are
// left unchanged.
type Option func(*patch)

type patch struct {
	value          any
	hasValue       bool
	final          *bool
	editable       *bool
	kind           Kind
	def            any
	validator      Validator
	system         *bool
	suppressNotify bool
}

// Value proposes a new value for the item.
func Value(v any) Option { return func(p *patch) { p.value = v; p.hasValue = true } }

// Final marks the item as overridable or not by child stores.
func Final(b bool) Option { return func(p *patch) { v := b; p.final = &v } }

// Editable marks the item's value as mutable or not.
func Editable(b bool) Option { return func(p *patch) { v := b; p.editable = &v } }

// WithKind forces the item kind instead of inferring it.
func WithKind(k Kind) Option { return func(p *patch) { p.kind = k } }

// WithDefault sets the value child stores materialize on first read.
func WithDefault(v any) Option { return func(p *patch) { p.def = v } }

// WithValidator sets the item's validator.
func WithValidator(v Validator) Option { return func(p *patch) { p.validator = v } }

// System marks the item as a system attribute, hidden from end users.
func System(b bool) Option { return func(p *patch) { v := b; p.system = &v } }

// SuppressNotify suppresses the change notification for this mutation.
func SuppressNotify() Option { return func(p *patch) { p.suppressNotify = true } }

// Add creates a new local item. It fails with ErrSchemaViolation if an
// ancestor marks the key final. Add itself does not notify observers; only
// later value changes through Config do.
func (s *Store) Add(key string, value any, opts ...Option) error {
	if err := s.checkGate(); err != nil {
		return err
	}
	if inh := s.resolve(key, false, true); inh != nil && inh.Final {
		return errors.Wrapf(errors.ErrSchemaViolation, "cannot override attribute %q: an ancestor marks it final", key)
	}
	var p patch
	for _, o := range opts {
		o(&p)
	}
	it, err := newItem(key, value, p.kind)
	if err != nil {
		return err
	}
	if _, exists := s.items[key]; !exists {
		s.order = append(s.order, key)
	}
	s.items[key] = it
	opts = append(opts, SuppressNotify())
	return s.Config(key, opts...)
}

// Config mutates the local item for key, materializing a local copy from the
// inherited item first if no local one exists. A value change on a
// non-editable item fails with ErrNotEditable; the validator may reject the
// value with ErrValidation, leaving the item unchanged. An accepted value
// change notifies observers.
func (s *Store) Config(key string, opts ...Option) error {
	if err := s.checkGate(); err != nil {
		return err
	}
	var p patch
	for _, o := range opts {
		o(&p)
	}
	if inh := s.resolve(key, false, true); inh != nil && inh.Final {
		return errors.Wrapf(errors.ErrSchemaViolation, "cannot override attribute %q: an ancestor marks it final", key)
	}
	it, ok := s.items[key]
	if !ok {
		inh := s.resolve(key, false, true)
		if inh == nil {
			return errors.NewNotFoundError("attribute %q", key)
		}
		// The editable property does not inherit.
		it = &Item{
			Key: key, Value: inh.Value, Final: inh.Final, Editable: true,
			Kind: inh.Kind, Default: inh.Default, Validator: inh.Validator,
			System: inh.System, Choices: inh.Choices,
		}
		s.items[key] = it
		s.order = append(s.order, key)
	}
	if p.hasValue && !it.Editable && !equalValues(it.Value, p.value) {
		return errors.Wrapf(errors.ErrNotEditable,
			"cannot change attribute %q from %v to %v", key, it.Value, p.value)
	}
	oldValue := it.Value
	if p.validator != nil {
		it.Validator = p.validator
	}
	if p.hasValue {
		if it.Validator != nil {
			v, err := it.Validator(p.value)
			if err != nil {
				return errors.Wrapf(err, "attribute %q", key)
			}
			it.Value = v
		} else {
			it.Value = p.value
		}
	}
	if p.final != nil {
		it.Final = *p.final
	}
	if p.editable != nil {
		it.Editable = *p.editable
	}
	if p.kind != "" {
		it.Kind = p.kind
	}
	if p.def != nil {
		it.Default = p.def
	}
	if p.system != nil {
		it.System = *p.system
	}
	if p.hasValue && !equalValues(oldValue, it.Value) && !p.suppressNotify {
		s.notify(key, it.Value)
	}
	return nil
}

// Set changes the value of key. Setting a key that resolves anywhere in the
// chain goes through Config, so an inherited key becomes a local override
// that keeps the inherited kind and validator; a key not found anywhere is
// added fresh.
func (s *Store) Set(key string, value any) error {
	if _, ok := s.items[key]; ok {
		return s.Config(key, Value(value))
	}
	if s.resolve(key, false, true) != nil {
		return s.Config(key, Value(value))
	}
	return s.Add(key, value)
}

// Remove deletes only the local item; ancestor values become visible again.
func (s *Store) Remove(key string) {
	if err := s.checkGate(); err != nil {
		s.log.Warnw("attribute remove rejected", "key", key, "error", err)
		return
	}
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Get returns the resolved value for key, or nil if it is not found locally
// or anywhere in the ancestor chain.
func (s *Store) Get(key string) any {
	return s.GetFiltered(key, true, true)
}

// GetFiltered is Get with resolution scope control: disable includeLocals to
// see only the inherited value, disable includeInherited to see only the
// local one.
func (s *Store) GetFiltered(key string, includeLocals, includeInherited bool) any {
	it := s.resolve(key, includeLocals, includeInherited)
	if it == nil {
		return nil
	}
	return it.Value
}

// GetItem returns the resolved item record for key, or nil.
// Set-kind lookups return a copy whose value is the chain-wide union.
func (s *Store) GetItem(key string) *Item {
	return s.resolve(key, true, true)
}

// IsFinal reports whether the resolved item for key is final.
func (s *Store) IsFinal(key string) bool {
	it := s.resolve(key, true, true)
	return it != nil && it.Final
}

// IsEditable reports whether the resolved item for key is editable.
func (s *Store) IsEditable(key string) bool {
	it := s.resolve(key, true, true)
	return it != nil && it.Editable
}

// IsSystem reports whether the resolved item for key is a system attribute.
func (s *Store) IsSystem(key string) bool {
	it := s.resolve(key, true, true)
	return it != nil && it.System
}

// KindOf returns the kind of the resolved item for key, or "" if not found.
func (s *Store) KindOf(key string) Kind {
	it := s.resolve(key, true, true)
	if it == nil {
		return ""
	}
	return it.Kind
}

// DefaultOf returns the default of the resolved item for key, or nil.
func (s *Store) DefaultOf(key string) any {
	it := s.resolve(key, true, true)
	if it == nil {
		return nil
	}
	return it.Default
}

// ChoicesOf returns the allowed choices of the resolved item, or nil.
func (s *Store) ChoicesOf(key string) []string {
	it := s.resolve(key, true, true)
	if it == nil {
		return nil
	}
	return it.Choices
}

// HasLocal reports whether the store holds its own item for key.
func (s *Store) HasLocal(key string) bool {
	_, ok := s.items[key]
	return ok
}

// Keys returns local keys in insertion order followed by inherited keys not
// shadowed locally.
func (s *Store) Keys(includeLocals, includeInherited bool) []string {
	var keys []string
	seen := make(map[string]bool)
	if includeLocals {
		for _, k := range s.order {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	if includeInherited {
		for _, p := range s.Parents() {
			for _, k := range p.Keys(true, true) {
				if !seen[k] {
					keys = append(keys, k)
					seen[k] = true
				}
			}
		}
	}
	return keys
}

// LocalItems returns the store's own items keyed by name. The map is a copy;
// the items are not.
func (s *Store) LocalItems() map[string]*Item {
	out := make(map[string]*Item, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// resolve finds the item record for key. Local first, then ancestors in
// parent order. If an ancestor item carries a default and no local item
// exists, a local item is materialized from that default and resolution
// restarts — the store owns a local copy from then on. Set-kind items
// aggregate instead: the returned record is a copy carrying the union of
// the local value and every ancestor value.
func (s *Store) resolve(key string, includeLocals, includeInherited bool) *Item {
	var cumulative *Item
	var cumulativeValues []any

	if includeLocals {
		if it, ok := s.items[key]; ok {
			if it.Kind != KindSet {
				return it
			}
			cumulative = it
			cumulativeValues = appendFlat(cumulativeValues, it.Value)
		}
	}
	if includeInherited {
		for _, p := range s.Parents() {
			v := p.resolve(key, true, true)
			if v == nil {
				continue
			}
			if v.Default != nil {
				if _, ok := s.items[key]; !ok {
					// Lazy materialization: the default instantiates a local
					// item once, then resolution re-runs over the
					// materialized chain.
					it := &Item{
						Key: key, Value: v.Default, Final: v.Final, Editable: true,
						Kind: v.Kind, Default: v.Default, Validator: v.Validator,
						Choices: v.Choices,
					}
					s.items[key] = it
					s.order = append(s.order, key)
					return s.resolve(key, includeLocals, includeInherited)
				}
			}
			if v.Kind == KindSet && cumulative == nil {
				cumulative = v
			}
			if cumulative != nil {
				cumulativeValues = appendFlat(cumulativeValues, v.Value)
			} else {
				return v
			}
		}
	}
	if cumulative == nil {
		return nil
	}
	union := unionSet(cumulativeValues)
	out := *cumulative
	out.Value = union
	return &out
}

// appendFlat appends the elements of a set-ish value, or the value itself.
func appendFlat(dst []any, value any) []any {
	switch v := value.(type) {
	case Set:
		for _, e := range v {
			dst = append(dst, e)
		}
	case []string:
		for _, e := range v {
			dst = append(dst, e)
		}
	case []any:
		dst = append(dst, v...)
	default:
		dst = append(dst, v)
	}
	return dst
}

// unionSet deduplicates and sorts, for deterministic set values.
func unionSet(values []any) Set {
	seen := make(map[string]bool, len(values))
	var out Set
	for _, v := range values {
		s := fmt.Sprint(v)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func equalValues(a, b any) bool {
	if as, aok := toStringList(a); aok {
		if bs, bok := toStringList(b); bok {
			if len(as) != len(bs) {
				return false
			}
			for i := range as {
				if as[i] != bs[i] {
					return false
				}
			}
			return true
		}
		return false
	}
	// == panics on uncomparable dynamic types (maps, slices of unknown kind).
	return reflect.DeepEqual(a, b)
}

// Subscribe adds an observer.
func (s *Store) Subscribe(o Observer) {
	s.observers = append(s.observers, o)
}

// Unsubscribe removes an observer. Unknown observers log a warning.
func (s *Store) Unsubscribe(o Observer) {
	for i, ob := range s.observers {
		if ob == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
	s.log.Warnw("Unsubscribe called with an unregistered observer")
}

// ObserverCount returns the number of subscribed observers.
func (s *Store) ObserverCount() int { return len(s.observers) }

// Ping signals that an ancestor's value for key may have changed. If this
// store has no local override, observers are re-notified with the current
// (inherited) value. Used to push changes down an inheritance chain without
// recomputation at every hop.
func (s *Store) Ping(key string) {
	if _, ok := s.items[key]; ok {
		return
	}
	s.notify(key, s.Get(key))
}

// notify delivers to a snapshot of the observer list so callbacks may
// unsubscribe themselves mid-delivery.
func (s *Store) notify(key string, value any) {
	obs := make([]Observer, len(s.observers))
	copy(obs, s.observers)
	for _, o := range obs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Warnw("attribute observer panicked",
						"key", key, "panic", r)
				}
			}()
			o.OnAttrChanged(s, key, value)
		}()
	}
}
