package commands

import (
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/typegraph/errors"
	"github.com/teranos/typegraph/graph"
	"github.com/teranos/typegraph/logger"
	"github.com/teranos/typegraph/persist"
	"github.com/teranos/typegraph/sym"
)

// NewCmd creates an empty graph document.
var NewCmd = &cobra.Command{
	Use:   "new <file>",
	Short: sym.Graph + " Create an empty graph document",
	Long: sym.Graph + ` new — Create an empty graph document

The document holds only the builtin type hierarchy. The format follows the
file extension: ` + persist.XMLExtension + ` for XML, ` + persist.SQLiteExtension + ` for a sqlite snapshot.`,
	Args: cobra.ExactArgs(1),
	RunE: runNew,
}

var newForceFlag bool

func init() {
	NewCmd.Flags().BoolVar(&newForceFlag, "force", false, "Overwrite an existing file")
}

func runNew(cmd *cobra.Command, args []string) error {
	path := args[0]
	if !newForceFlag {
		if _, err := os.Stat(path); err == nil {
			return errors.Newf("%s already exists (use --force to overwrite)", path)
		}
	}
	m := graph.NewModel(logger.Logger)
	if err := persist.SaveFile(path, m, logger.Logger); err != nil {
		return err
	}
	pterm.Printf("%s Created %s %s\n", sym.Graph, path, pterm.Gray(m.GUID().String()))
	return nil
}
