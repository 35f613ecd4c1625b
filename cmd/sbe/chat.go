package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spacebio/engine/internal/llm"
	"github.com/spacebio/engine/internal/retrieval"
)

var (
	chatMode    string
	chatYears   string
	chatContext bool
	summaryMode string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(entitiesCmd)
	rootCmd.AddCommand(paperCmd)

	chatCmd.Flags().StringVarP(&chatMode, "mode", "m", "academic", "Answer style: academic or outreach")
	chatCmd.Flags().StringVarP(&chatYears, "year", "y", "", "Only use papers from these years")
	chatCmd.Flags().BoolVar(&chatContext, "show-context", false, "Print the paper context sent to the model")

	summarizeCmd.Flags().StringVarP(&summaryMode, "mode", "m", "academic", "Summary style: academic or outreach")
}

var chatCmd = &cobra.Command{
	Use:   "chat <question>",
	Short: "Answer a question from the most relevant papers",
	Long: `Answer a question using the most relevant publications as context.

The top search.chat_top_k papers are assembled into a bounded context and
sent to the completion model. Requires GROQ_API_KEY (or llm.api_key); without
it a placeholder answer is returned with the sources.`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	mode, err := llm.ParseMode(chatMode)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	filter, err := retrieval.ParseYearSpec(chatYears)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	cfg := mustLoadConfig()
	svc := mustNewSearchService(ctx, cfg, newCLILogger())

	resp, err := svc.Chat(ctx, retrieval.ChatRequest{Question: args[0], Mode: mode, Filter: filter})
	if err != nil {
		exitWithCorpusError(err)
	}

	if humanOutput {
		if chatContext && resp.Context != "" {
			fmt.Printf("--- context ---\n%s\n---------------\n\n", resp.Context)
		}
		fmt.Println(wrapText(resp.Answer, TextWrapWidth, ""))
		if len(resp.Sources) > 0 {
			fmt.Printf("\nSources:\n")
			for i, s := range resp.Sources {
				fmt.Printf("  %d. #%d %s\n     %s (%s)\n", i+1, s.ID,
					truncateString(s.Title, SearchTitleMaxLen), truncateString(s.Authors, SearchTitleMaxLen), s.Year)
			}
		}
	} else {
		out := struct {
			*retrieval.ChatResponse
			Context string `json:"context,omitempty"`
		}{ChatResponse: resp}
		if chatContext {
			out.Context = resp.Context
		}
		outputJSON(out)
	}
	return statusExit(resp.Status)
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <paper-id>",
	Short: "Summarize a paper in three points",
	Long: `Summarize a paper's abstract in three points, for researchers (academic)
or for a general audience (outreach). Abstracts under 50 characters are not
summarized.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := mustParseID(args[0])

	mode, err := llm.ParseMode(summaryMode)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	cfg := mustLoadConfig()
	svc := mustNewService(cfg, newCLILogger())

	resp, err := svc.Summarize(ctx, id, mode)
	if err != nil {
		exitWithCorpusError(err)
	}

	if humanOutput {
		fmt.Printf("#%d %s (%s)\n\n", resp.ID, resp.Title, resp.Mode)
		fmt.Println(resp.Summary)
	} else {
		outputJSON(resp)
	}
	return statusExit(resp.Status)
}

var entitiesCmd = &cobra.Command{
	Use:   "entities <paper-id>",
	Short: "Extract organism, condition, finding and method from a paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntities,
}

func runEntities(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := mustParseID(args[0])

	cfg := mustLoadConfig()
	svc := mustNewService(cfg, newCLILogger())

	resp, err := svc.Entities(ctx, id)
	if err != nil {
		exitWithCorpusError(err)
	}

	if humanOutput {
		fmt.Printf("#%d %s\n\n", resp.ID, resp.Title)
		fmt.Printf("  Organism:    %s\n", resp.Entities.Organism)
		fmt.Printf("  Condition:   %s\n", resp.Entities.Condition)
		fmt.Printf("  Key finding: %s\n", wrapText(resp.Entities.KeyFinding, TextWrapWidth-15, "               "))
		fmt.Printf("  Methodology: %s\n", resp.Entities.Methodology)
	} else {
		outputJSON(resp)
	}
	return statusExit(resp.Status)
}

var paperCmd = &cobra.Command{
	Use:   "paper <paper-id>",
	Short: "Show one publication",
	Args:  cobra.ExactArgs(1),
	RunE:  runPaper,
}

func runPaper(cmd *cobra.Command, args []string) error {
	id := mustParseID(args[0])

	cfg := mustLoadConfig()
	svc := mustNewService(cfg, newCLILogger())

	rec, err := svc.Paper(context.Background(), id)
	if err != nil {
		exitWithCorpusError(err)
	}
	if humanOutput {
		printRecordHuman(rec)
	} else {
		outputJSON(rec)
	}
	return nil
}
