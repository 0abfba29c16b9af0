// Package sym defines canonical symbols for typegraph log lines and CLI
// output. These symbols are stable across CLI and documentation.
package sym

// Glyph string constants — the visual expression of each symbol.
const (
	Graph = "◉" // graph — a whole model/document
	Node  = "●" // node — a node entity
	Rel   = "⟶" // rel — a relation entity
	Isa   = "⊑" // isa — subtype edge
	Attr  = "≔" // attr — attribute operation
	DB    = "⛁" // db — sqlite snapshot store
	Doc   = "⎘" // doc — xml document
	Watch = "◌" // watch — file watcher
)

// Name returns a human-readable name for a glyph, for contexts where the
// glyph itself cannot render.
func Name(glyph string) string {
	switch glyph {
	case Graph:
		return "graph"
	case Node:
		return "node"
	case Rel:
		return "rel"
	case Isa:
		return "isa"
	case Attr:
		return "attr"
	case DB:
		return "db"
	case Doc:
		return "doc"
	case Watch:
		return "watch"
	default:
		return "?"
	}
}
