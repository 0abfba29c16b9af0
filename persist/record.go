// Package persist saves and loads typegraph models. Two formats share one
// flow: a document is the set of non-builtin entities and their local
// attribute items, and loading is two-phase. Phase 1 reconstructs every
// entity under its saved id; phase 2 binds relation endpoints, isa edges
// before the rest so covariance is checked against restored type hierarchies.
// A relation whose endpoints cannot be resolved, or whose endpoints no longer
// satisfy its types, is dropped and logged rather than failing the load.
package persist

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/teranos/typegraph/attrs"
	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
)

// attrRecord is the format-independent serialization of one local attribute
// item. Value holds the scalar encoding; Elems holds the members of set
// values and the choice list of choices values. Validators do not serialize;
// the choices validator is re-synthesized on load.
type attrRecord struct {
	Key      string
	Kind     string
	Value    string
	Elems    []string
	Final    bool
	ReadOnly bool
	System   bool
	Default  string
	HasDef   bool
}

func recordItem(it *attrs.Item) attrRecord {
	rec := attrRecord{
		Key:      it.Key,
		Kind:     string(it.Kind),
		Final:    it.Final,
		ReadOnly: !it.Editable,
		System:   it.System,
	}
	switch it.Kind {
	case attrs.KindSet:
		rec.Elems = stringList(it.Value)
	case attrs.KindChoices:
		rec.Value = encodeScalar(it.Value)
		rec.Elems = it.Choices
	default:
		rec.Value = encodeScalar(it.Value)
	}
	if it.Default != nil && it.Kind != attrs.KindSet && it.Kind != attrs.KindChoices {
		rec.Default = encodeScalar(it.Default)
		rec.HasDef = true
	}
	return rec
}

// applyRecord recreates a local item on a restored entity's store.
func applyRecord(s *attrs.Store, rec attrRecord) error {
	kind := attrs.Kind(rec.Kind)
	var value any
	switch kind {
	case attrs.KindSet:
		value = attrs.Set(rec.Elems)
	case attrs.KindChoices:
		// The current value leads the list; splitting on load restores the
		// membership validator.
		value = append([]string{rec.Value}, rec.Elems...)
	default:
		v, err := decodeScalar(kind, rec.Value)
		if err != nil {
			return err
		}
		value = v
	}
	opts := []attrs.Option{attrs.WithKind(kind)}
	if rec.Final {
		opts = append(opts, attrs.Final(true))
	}
	if rec.ReadOnly {
		opts = append(opts, attrs.Editable(false))
	}
	if rec.System {
		opts = append(opts, attrs.System(true))
	}
	if rec.HasDef {
		d, err := decodeScalar(kind, rec.Default)
		if err != nil {
			return err
		}
		opts = append(opts, attrs.WithDefault(d))
	}
	return s.Add(rec.Key, value, opts...)
}

func encodeScalar(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

func decodeScalar(kind attrs.Kind, s string) (any, error) {
	switch kind {
	case attrs.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "int attribute value %q", s)
		}
		return n, nil
	case attrs.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "float attribute value %q", s)
		}
		return f, nil
	case attrs.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, errors.Wrapf(err, "bool attribute value %q", s)
		}
		return b, nil
	default:
		return s, nil
	}
}

func stringList(v any) []string {
	switch t := v.(type) {
	case attrs.Set:
		return t
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(v)}
	}
}

// relationShell is a restored relation waiting for phase 2.
type relationShell struct {
	rel  *graph.Relation
	from int64
	to   int64
}

// bindShells resolves endpoint references and makes the restored relations
// live, isa edges first. Failures drop the relation and are reported through
// the log, never through the return path.
func bindShells(m *graph.Model, shells []relationShell, log *zap.SugaredLogger) {
	for _, isaPass := range []bool{true, false} {
		for _, sh := range shells {
			if sh.rel.IsIsa() != isaPass {
				continue
			}
			from := m.Lookup(sh.from)
			to := m.Lookup(sh.to)
			if from == nil || to == nil {
				log.Warnw("dropping relation with unresolved endpoint",
					"relation", sh.rel.IDString(), "from", sh.from, "to", sh.to,
					"error", errors.ErrUnresolvedRef)
				sh.rel.Discard()
				continue
			}
			if err := sh.rel.BindEndpoints(from, to); err != nil {
				log.Warnw("dropping relation that no longer validates",
					"relation", sh.rel.IDString(), "from", from.IDString(),
					"to", to.IDString(), "error", err)
				sh.rel.Discard() // no-op when the failed bind already removed it
			}
		}
	}
}
