package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List processed documents grouped by matched contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		docs, err := st.ListDocuments(ctx)
		if err != nil {
			return eris.Wrap(err, "list documents")
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}

		toplevel, byContract := store.GroupByContract(docs)
		for _, d := range toplevel {
			printDoc(d, "")
			for _, inv := range byContract[d.ID] {
				printDoc(inv, "    ")
			}
		}
		return nil
	},
}

func printDoc(d model.Document, indent string) {
	line := fmt.Sprintf("%s%-30s %-10s", indent, d.Filename, d.Category)
	if d.ReconciliationNotes != "" {
		line += fmt.Sprintf(" %s", d.ReconciliationNotes)
	}
	if n := len(d.Discrepancies); n > 0 {
		line += fmt.Sprintf(" [%d discrepancies]", n)
	}
	fmt.Println(line)
}

func init() {
	rootCmd.AddCommand(docsCmd)
}
