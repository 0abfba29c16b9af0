package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/sym"
)

// StatsCmd prints counts and the type inventory of a document.
var StatsCmd = &cobra.Command{
	Use:   "stats <file>",
	Short: sym.Graph + " Show graph statistics",
	Long: sym.Graph + ` stats — Show graph statistics

Counts the document's nodes, relations, and isa edges, and lists every
entity used as a type with its direct instance count.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	s := collectStats(m)

	fmt.Printf("%s Graph Statistics\n", sym.Graph)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Document:  %s\n", args[0])
	fmt.Printf("Model:     %s\n", m.GUID())
	fmt.Printf("Nodes:     %d\n", s.nodes)
	fmt.Printf("Relations: %d\n", s.relations)
	fmt.Printf("Isa edges: %d\n", s.isaEdges)
	fmt.Println()

	data := typeInventory(m)
	if len(data) > 1 {
		fmt.Printf("Type inventory:\n")
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
	}
	return nil
}

// typeInventory lists every entity that is the target of an isa edge,
// with its direct instance count.
func typeInventory(m *graph.Model) pterm.TableData {
	counts := make(map[graph.Entity]int)
	for _, r := range m.Relations() {
		if r.IsIsa() && r.From() != r.To() {
			counts[r.To()]++
		}
	}

	data := pterm.TableData{{"Type", "ID", "Variety", "Instances"}}
	appendRow := func(e graph.Entity) {
		n, ok := counts[e]
		if !ok {
			return
		}
		variety := "node"
		if e.IsRelation() {
			variety = "relation"
		}
		data = append(data, []string{e.Label(), e.IDString(), variety, fmt.Sprint(n)})
	}
	for _, n := range m.Nodes() {
		appendRow(n)
	}
	for _, r := range m.Relations() {
		appendRow(r)
	}
	return data
}
