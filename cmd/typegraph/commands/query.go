package commands

import (
	"sort"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/sym"
)

// QueryCmd groups the read-only graph queries.
var QueryCmd = &cobra.Command{
	Use:   "query",
	Short: sym.Node + " Query a graph document",
	Long: sym.Node + ` query — Query a graph document

Examples:
  typegraph query isa world.tgxml alice            # ancestor tree
  typegraph query isa world.tgxml alice person     # reachability test
  typegraph query related world.tgxml friend alice # everything alice reaches
  typegraph query related world.tgxml friend alice bob`,
}

var queryIsaCmd = &cobra.Command{
	Use:   "isa <file> <from> [<to>]",
	Short: sym.Isa + " Show isa ancestry or test isa reachability",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runQueryIsa,
}

var queryRelatedCmd = &cobra.Command{
	Use:   "related <file> <relType> <from> [<to>]",
	Short: sym.Rel + " Query reachability through a relation type",
	Long: sym.Rel + ` related — Query reachability through a relation type

Reachability follows edges of the given type and its subtypes, extended by
the reflexive, symmetric, and transitive behaviors the types carry.`,
	Args: cobra.RangeArgs(3, 4),
	RunE: runQueryRelated,
}

func init() {
	QueryCmd.AddCommand(queryIsaCmd)
	QueryCmd.AddCommand(queryRelatedCmd)
}

func runQueryIsa(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	from, err := resolveEntity(m, args[1])
	if err != nil {
		return err
	}

	if len(args) == 3 {
		to, err := resolveEntity(m, args[2])
		if err != nil {
			return err
		}
		if from.Isa(to) {
			pterm.Printf("%s %s %s %s\n", pterm.Green("✓"),
				displayName(from), sym.Isa, displayName(to))
		} else {
			pterm.Printf("%s %s is not a subtype of %s\n", pterm.Red("✗"),
				displayName(from), displayName(to))
		}
		return nil
	}

	return pterm.DefaultTree.WithRoot(ancestorTreeNode(from.Ancestors())).Render()
}

func ancestorTreeNode(t *graph.AncestorTree) pterm.TreeNode {
	node := pterm.TreeNode{Text: displayName(t.Entity)}
	for _, p := range t.Parents {
		node.Children = append(node.Children, ancestorTreeNode(p))
	}
	return node
}

func runQueryRelated(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	relType, err := resolveRelationType(m, args[1])
	if err != nil {
		return err
	}
	from, err := resolveEntity(m, args[2])
	if err != nil {
		return err
	}

	if len(args) == 4 {
		to, err := resolveEntity(m, args[3])
		if err != nil {
			return err
		}
		if from.IsRelatedTo(relType, to) {
			pterm.Printf("%s %s %s %s %s\n", pterm.Green("✓"),
				displayName(from), sym.Rel, pterm.Yellow(displayName(relType)),
				displayName(to))
		} else {
			pterm.Printf("%s %s does not reach %s through %s\n", pterm.Red("✗"),
				displayName(from), displayName(to), pterm.Yellow(displayName(relType)))
		}
		return nil
	}

	related := from.Related(relType)
	names := make([]string, 0, len(related))
	for _, e := range related {
		names = append(names, displayName(e))
	}
	sort.Strings(names)
	if len(names) == 0 {
		pterm.Printf("%s reaches nothing through %s\n",
			displayName(from), pterm.Yellow(displayName(relType)))
		return nil
	}
	pterm.Printf("%s reaches through %s:\n", displayName(from), pterm.Yellow(displayName(relType)))
	for _, n := range names {
		pterm.Printf("  %s %s\n", pterm.Gray(sym.Rel), n)
	}
	return nil
}
