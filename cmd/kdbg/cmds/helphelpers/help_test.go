package helphelpers

import (
	"testing"

	"github.com/spf13/cobra"
)

func newTree() (root, version, repl *cobra.Command) {
	root = &cobra.Command{Use: "kdbg"}
	root.PersistentFlags().Bool("log", false, "")
	root.PersistentFlags().String("config", "", "")
	version = &cobra.Command{Use: "version", Run: func(*cobra.Command, []string) {}}
	version.Flags().Bool("verbose", false, "")
	repl = &cobra.Command{Use: "repl", Run: func(*cobra.Command, []string) {}}
	repl.Flags().String("init", "", "")
	root.AddCommand(version, repl)
	return
}

func TestPrepare(t *testing.T) {
	root, version, _ := newTree()
	Prepare(version)
	if !root.PersistentFlags().Lookup("log").Hidden {
		t.Error("log should be hidden for version")
	}
	if version.Flags().Lookup("verbose").Hidden {
		t.Error("verbose should not be hidden for version")
	}

	root, _, repl := newTree()
	Prepare(repl)
	if root.PersistentFlags().Lookup("config").Hidden || repl.Flags().Lookup("init").Hidden {
		t.Error("no flag should be hidden for repl")
	}
}
