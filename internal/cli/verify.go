package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lexcheck/internal/ingest"
	"lexcheck/internal/model"
)

var (
	verifyActID   string
	verifyTimeout time.Duration
	importFile    string
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import extracted citations from a JSONL file",
	Long: `Import loads citations produced by the extraction pipeline into the
workspace. Each line is one citation object.

Example:
  lexcheck import --citations citations.jsonl`,
	RunE: runImport,
}

// verifyCmd represents the verify command
var verifyCmd = &cobra.Command{
	Use:   "verify <citation-id>",
	Short: "Verify a single citation against its Act",
	Long: `Verify resolves the cited section in the Act, compares the quoted text
against the statutory language, and prints the stored result.

The Act is resolved from the citation's act name unless --act pins a
specific act id.

Example:
  lexcheck verify 4f6b... --act 9c2d...`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(verifyCmd)

	importCmd.Flags().StringVar(&importFile, "citations", "", "JSONL file of citations (required)")
	_ = importCmd.MarkFlagRequired("citations")

	verifyCmd.Flags().StringVar(&verifyActID, "act", "", "act id (default: resolve from the citation's act name)")
	verifyCmd.Flags().DurationVar(&verifyTimeout, "timeout", 2*time.Minute, "overall timeout")
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	citations, err := ingest.ReadCitationsFile(importFile)
	if err != nil {
		return err
	}
	n, err := a.ingest.ImportCitations(context.Background(), citations)
	if err != nil {
		return fmt.Errorf("imported %d citations before error: %w", n, err)
	}
	fmt.Printf("Imported %d citations\n", n)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	citationID := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	actID := verifyActID
	if actID == "" {
		c, err := a.repo.GetCitation(ctx, citationID)
		if err != nil {
			return fmt.Errorf("load citation: %w", err)
		}
		act, err := a.repo.FindActByName(ctx, c.ActName)
		if err != nil {
			return fmt.Errorf("resolve act %q: %w", c.ActName, err)
		}
		actID = act.ID
	}

	res, err := a.orch.VerifyOne(ctx, citationID, actID)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res model.VerificationResult) {
	fmt.Printf("Status:      %s\n", res.Status)
	fmt.Printf("Similarity:  %d\n", res.Similarity)
	if res.Explanation != "" {
		fmt.Printf("Explanation: %s\n", res.Explanation)
	}
	if res.Diff != nil {
		fmt.Println("Differences:")
		for _, d := range res.Diff.Differences {
			switch {
			case d.CitationText != "" && d.ActText != "":
				fmt.Printf("  [%s] citation: %q  act: %q\n", d.Kind, d.CitationText, d.ActText)
			case d.CitationText != "":
				fmt.Printf("  [%s] citation: %q\n", d.Kind, d.CitationText)
			default:
				fmt.Printf("  [%s] act: %q\n", d.Kind, d.ActText)
			}
		}
	}
}
