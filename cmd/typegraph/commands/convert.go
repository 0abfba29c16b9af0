package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/logger"
	"github.com/teranos/typegraph/persist"
	"github.com/teranos/typegraph/sym"
)

// ConvertCmd rewrites a document in another format, chosen by extension.
var ConvertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: sym.Doc + " Convert a graph document between formats",
	Long: sym.Doc + ` convert — Convert a graph document between formats

The formats follow the file extensions: ` + persist.XMLExtension + ` for the XML document,
` + persist.SQLiteExtension + ` for a sqlite snapshot. The model GUID and all entity ids are
preserved, so references into the document stay valid.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	m, err := loadModel(args[0])
	if err != nil {
		return err
	}
	if err := persist.SaveFile(args[1], m, logger.Logger); err != nil {
		return err
	}
	s := collectStats(m)
	pterm.Printf("%s %s %s %s (%d nodes, %d relations, %d isa edges)\n",
		sym.Doc, args[0], pterm.Gray("→"), args[1], s.nodes, s.relations, s.isaEdges)
	return nil
}
