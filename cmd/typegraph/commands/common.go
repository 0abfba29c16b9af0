package commands

import (
	"fmt"
	"strings"

	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/logger"
	"github.com/teranos/typegraph/persist"
)

func loadModel(path string) (*graph.Model, error) {
	return persist.LoadFile(path, logger.Logger)
}

// resolveEntity finds an entity by id string ("<shortID>:<n>") or by label.
// Labels must be unambiguous.
func resolveEntity(m *graph.Model, ref string) (graph.Entity, error) {
	if strings.Contains(ref, ":") {
		return m.LookupIDString(ref)
	}
	matches := m.FindByLabel(ref)
	switch len(matches) {
	case 0:
		return nil, errors.Wrapf(errors.ErrNotFound, "no entity labeled %q", ref)
	case 1:
		return matches[0], nil
	default:
		ids := make([]string, 0, len(matches))
		for _, e := range matches {
			ids = append(ids, e.IDString())
		}
		return nil, errors.Newf("label %q is ambiguous, use an id: %s",
			ref, strings.Join(ids, ", "))
	}
}

// resolveRelationType resolves a reference that must name a relation.
func resolveRelationType(m *graph.Model, ref string) (*graph.Relation, error) {
	e, err := resolveEntity(m, ref)
	if err != nil {
		return nil, err
	}
	r, ok := e.(*graph.Relation)
	if !ok {
		return nil, errors.Newf("%s is a node, not a relation type", displayName(e))
	}
	return r, nil
}

func displayName(e graph.Entity) string {
	if l := e.Label(); l != "" {
		return fmt.Sprintf("%s (%s)", l, e.IDString())
	}
	return e.IDString()
}

// graphStats counts the user entities of a model.
type graphStats struct {
	nodes     int
	relations int
	isaEdges  int
}

func collectStats(m *graph.Model) graphStats {
	var s graphStats
	for _, n := range m.Nodes() {
		if n.System() {
			continue
		}
		s.nodes++
	}
	for _, r := range m.Relations() {
		if r.System() {
			continue
		}
		if r.IsIsa() {
			s.isaEdges++
		} else {
			s.relations++
		}
	}
	return s
}
