package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// GlossaryEntry is one defined term.
type GlossaryEntry struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// glossary defines terms that recur across the corpus.
var glossary = []GlossaryEntry{
	{"Microgravity", "Very low gravity condition, nearly zero, like astronauts experience in orbit."},
	{"Transcriptomics", "Study of all genes that are activated in a cell at a given moment."},
	{"ISS", "International Space Station."},
	{"Arabidopsis", "Small plant commonly used in scientific research."},
	{"C. elegans", "Microscopic worm used in biological studies."},
	{"Gene expression", "Process by which genes produce proteins."},
	{"Cosmic radiation", "High-energy particles from space that can damage cells."},
	{"EMCS", "European Modular Cultivation System, a cultivation system on the ISS."},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)
}

var glossaryCmd = &cobra.Command{
	Use:   "glossary [term]",
	Short: "Define common space-biology terms",
	Long:  `Print the glossary, or the entries whose term contains the given text.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGlossary,
}

func runGlossary(cmd *cobra.Command, args []string) error {
	var filter string
	if len(args) == 1 {
		filter = args[0]
	}
	entries := lookupGlossary(filter)

	if len(entries) == 0 {
		exitWithError(ExitNotFound, "no glossary entry matches %q", filter)
	}

	if humanOutput {
		for _, e := range entries {
			fmt.Printf("%s: %s\n", e.Term, e.Definition)
		}
	} else {
		outputJSON(entries)
	}
	return nil
}

// lookupGlossary returns entries whose term contains filter, ignoring case,
// sorted by term. An empty filter returns every entry.
func lookupGlossary(filter string) []GlossaryEntry {
	filter = strings.ToLower(strings.TrimSpace(filter))
	out := []GlossaryEntry{}
	for _, e := range glossary {
		if filter == "" || strings.Contains(strings.ToLower(e.Term), filter) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Term) < strings.ToLower(out[j].Term)
	})
	return out
}
