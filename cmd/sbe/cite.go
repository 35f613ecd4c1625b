package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spacebio/engine/internal/clipboard"
	"github.com/spacebio/engine/internal/export"
	"github.com/spacebio/engine/internal/publication"
)

var (
	citeStyle  string
	citeAppend string
	citeCopy   bool
)

func init() {
	rootCmd.AddCommand(citeCmd)

	citeCmd.Flags().StringVarP(&citeStyle, "style", "s", "academic", "Citation style: academic, structured (BibTeX) or plain")
	citeCmd.Flags().StringVar(&citeAppend, "append", "", "Append BibTeX entries to this .bib file, skipping ones already present")
	citeCmd.Flags().BoolVarP(&citeCopy, "copy", "c", false, "Also copy the citations to the clipboard")
}

// Citation is one formatted citation.
type Citation struct {
	ID       int          `json:"id"`
	Key      string       `json:"key"`
	Style    export.Style `json:"style"`
	Citation string       `json:"citation"`
}

// AppendResponse is the response for cite --append.
type AppendResponse struct {
	Path string `json:"path"`
	*export.AppendResult
}

var citeCmd = &cobra.Command{
	Use:   "cite <paper-id>...",
	Short: "Format citations for papers",
	Long: `Format citations for one or more papers.

Styles:
  academic    Author(s) (Year). Title. NASA Space Biology Archive. URL
  structured  BibTeX @article entry with a deterministic key
  plain       Author(s). "Title". Year.

Missing fields are written as "not specified". With --append, BibTeX entries
are added to a .bib file; papers already in it (by URL or key) are skipped.
With --copy, the formatted text is also placed on the system clipboard.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCite,
}

func runCite(cmd *cobra.Command, args []string) error {
	style, err := export.ParseStyle(citeStyle)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	cfg := mustLoadConfig()
	records := mustReadRecords(cfg)

	selected := make([]publication.Record, 0, len(args))
	for _, arg := range args {
		id := mustParseID(arg)
		if id >= len(records) {
			exitWithError(ExitNotFound, "paper %d not found (corpus has %d papers)", id, len(records))
		}
		selected = append(selected, records[id])
	}

	if citeAppend != "" {
		result, err := export.AppendToBibFile(citeAppend, selected)
		if err != nil {
			exitWithError(ExitError, "appending to %s: %v", citeAppend, err)
		}
		if humanOutput {
			fmt.Printf("Added %d, skipped %d (already in %s)\n", len(result.Added), len(result.Skipped), citeAppend)
		} else {
			outputJSON(AppendResponse{Path: citeAppend, AppendResult: result})
		}
		return nil
	}

	text, err := export.FormatAll(selected, style)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if citeCopy {
		if err := clipboard.Copy(context.Background(), text); err != nil {
			exitWithError(ExitError, "copying to clipboard: %v", err)
		}
	}
	if humanOutput {
		fmt.Println(text)
		return nil
	}

	citations := make([]Citation, 0, len(selected))
	for _, rec := range selected {
		text, err := export.Format(rec, style)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		citations = append(citations, Citation{ID: rec.ID, Key: export.CitationKey(rec), Style: style, Citation: text})
	}
	outputJSON(citations)
	return nil
}
