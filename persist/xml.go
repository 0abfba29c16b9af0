package persist

import (
	"encoding/xml"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/sym"
)

// XMLExtension is the conventional file extension for the XML document
// format.
const XMLExtension = ".tgxml"

type xmlDocument struct {
	XMLName   xml.Name      `xml:"typegraph"`
	GUID      string        `xml:"guid,attr"`
	Nodes     []xmlNode     `xml:"node"`
	Relations []xmlRelation `xml:"relation"`
}

type xmlNode struct {
	ID    int64     `xml:"id,attr"`
	Attrs []xmlAttr `xml:"attr"`
}

type xmlRelation struct {
	ID    int64     `xml:"id,attr"`
	Isa   bool      `xml:"isa,attr,omitempty"`
	From  int64     `xml:"from,attr"`
	To    int64     `xml:"to,attr"`
	Attrs []xmlAttr `xml:"attr"`
}

type xmlAttr struct {
	Key      string   `xml:"key,attr"`
	Kind     string   `xml:"kind,attr"`
	Value    string   `xml:"value,attr,omitempty"`
	Final    bool     `xml:"final,attr,omitempty"`
	ReadOnly bool     `xml:"readonly,attr,omitempty"`
	System   bool     `xml:"system,attr,omitempty"`
	Default  *string  `xml:"default,attr"`
	Elems    []string `xml:"v"`
}

func toXMLAttr(rec attrRecord) xmlAttr {
	a := xmlAttr{
		Key:      rec.Key,
		Kind:     rec.Kind,
		Value:    rec.Value,
		Final:    rec.Final,
		ReadOnly: rec.ReadOnly,
		System:   rec.System,
		Elems:    rec.Elems,
	}
	if rec.HasDef {
		d := rec.Default
		a.Default = &d
	}
	return a
}

func fromXMLAttr(a xmlAttr) attrRecord {
	rec := attrRecord{
		Key:      a.Key,
		Kind:     a.Kind,
		Value:    a.Value,
		Final:    a.Final,
		ReadOnly: a.ReadOnly,
		System:   a.System,
		Elems:    a.Elems,
	}
	if a.Default != nil {
		rec.Default = *a.Default
		rec.HasDef = true
	}
	return rec
}

// entityAttrs collects an entity's local items in key insertion order.
func entityAttrs(e graph.Entity) []xmlAttr {
	store := e.Attrs()
	local := store.LocalItems()
	var out []xmlAttr
	for _, k := range store.Keys(true, false) {
		it, ok := local[k]
		if !ok {
			continue
		}
		out = append(out, toXMLAttr(recordItem(it)))
	}
	return out
}

// SaveXML writes the model's non-builtin entities as an XML document.
// Builtins are never saved; documents reference them by their fixed ids.
func SaveXML(w io.Writer, m *graph.Model) error {
	doc := xmlDocument{GUID: m.GUID().String()}
	for _, n := range m.Nodes() {
		if n.ID() < graph.ReservedID {
			continue
		}
		doc.Nodes = append(doc.Nodes, xmlNode{ID: n.ID(), Attrs: entityAttrs(n)})
	}
	for _, r := range m.Relations() {
		if r.ID() < graph.ReservedID {
			continue
		}
		xr := xmlRelation{
			ID:   r.ID(),
			Isa:  r.IsIsa(),
			From: r.From().ID(),
			To:   r.To().ID(),
		}
		// Isa edges share one attribute store; their items are not per-edge
		// state and are not saved.
		if !r.IsIsa() {
			xr.Attrs = entityAttrs(r)
		}
		doc.Relations = append(doc.Relations, xr)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return errors.Wrap(err, "write document")
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode document")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "encode document")
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// LoadXML reconstructs a model from an XML document. The model keeps the
// saved GUID so entity id strings remain stable across sessions. Relations
// with unresolved or invalid endpoints are dropped and logged, not fatal.
func LoadXML(r io.Reader, log *zap.SugaredLogger) (*graph.Model, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode document")
	}
	guid, err := uuid.Parse(doc.GUID)
	if err != nil {
		return nil, errors.Wrapf(err, "document guid %q", doc.GUID)
	}

	m := graph.NewModelWithGUID(guid, log)

	for _, xn := range doc.Nodes {
		n, err := m.RestoreNode(xn.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d", xn.ID)
		}
		restoreAttrs(n, xn.Attrs, log)
	}

	var shells []relationShell
	for _, xr := range doc.Relations {
		rel, err := m.RestoreRelation(xr.ID, xr.Isa)
		if err != nil {
			return nil, errors.Wrapf(err, "relation %d", xr.ID)
		}
		if !xr.Isa {
			restoreAttrs(rel, xr.Attrs, log)
		}
		shells = append(shells, relationShell{rel: rel, from: xr.From, to: xr.To})
	}

	bindShells(m, shells, log)

	log.Debugw("document loaded", "symbol", sym.Doc,
		"nodes", len(doc.Nodes), "relations", len(doc.Relations))
	return m, nil
}

func restoreAttrs(e graph.Entity, items []xmlAttr, log *zap.SugaredLogger) {
	for _, a := range items {
		if err := applyRecord(e.Attrs(), fromXMLAttr(a)); err != nil {
			log.Warnw("skipping unrestorable attribute",
				"entity", e.IDString(), "key", a.Key, "error", err)
		}
	}
}
