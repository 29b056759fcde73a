package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dev-sujan/prepdesk/pkg/config"
	"github.com/dev-sujan/prepdesk/pkg/corpus"
	"github.com/dev-sujan/prepdesk/pkg/lint"
	"github.com/dev-sujan/prepdesk/pkg/models"
	"github.com/dev-sujan/prepdesk/pkg/questions"
	"github.com/dev-sujan/prepdesk/pkg/render"
	"github.com/dev-sujan/prepdesk/pkg/services"
)

var (
	renderWidth        int
	questionCategory   string
	questionDifficulty string
	questionLimit      int
	practiceSize       int
)

// lintCmd checks the corpus without starting the server.
var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Lint the corpus or specific guides",
	Long: `Runs the lint rules over the whole corpus, or over the given paths
relative to the content directory, and prints every issue found.

The exit status is non-zero when the run fails the site's fail_on
threshold, so lint works as a CI gate:

  prepdesk lint && git push`,
	RunE: runLint,
}

// renderCmd prints a guide styled for the terminal.
var renderCmd = &cobra.Command{
	Use:   "render [path]",
	Short: "Render a guide in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE:  runRender,
}

// exportCmd builds the static site.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the corpus as a static HTML site",
	Long: `Renders every guide to HTML, writes an index grouped by collection and
copies the media folder into the public directory.`,
	RunE: runExport,
}

// questionsCmd groups the question bank subcommands.
var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Work with the interview question bank",
}

var questionsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Rebuild the question bank from the corpus",
	RunE:  runQuestionsImport,
}

var questionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List questions in the bank",
	RunE:  runQuestionsList,
}

var questionsPracticeCmd = &cobra.Command{
	Use:   "practice",
	Short: "Draw a random practice set",
	RunE:  runQuestionsPractice,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the prepdesk version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("prepdesk %s (%s)\n", version, runtime.Version())
	},
}

func init() {
	renderCmd.Flags().IntVar(&renderWidth, "width", 0, "Wrap width in columns (0 = default)")

	questionsListCmd.Flags().StringVar(&questionCategory, "category", "", "Filter by category")
	questionsListCmd.Flags().StringVar(&questionDifficulty, "difficulty", "", "Filter by difficulty (basic, intermediate, advanced, unrated)")
	questionsListCmd.Flags().IntVar(&questionLimit, "limit", 50, "Maximum questions to print")
	questionsPracticeCmd.Flags().StringVar(&questionCategory, "category", "", "Filter by category")
	questionsPracticeCmd.Flags().StringVar(&questionDifficulty, "difficulty", "", "Filter by difficulty")
	questionsPracticeCmd.Flags().IntVarP(&practiceSize, "count", "n", 5, "Questions per set")

	questionsCmd.AddCommand(questionsImportCmd)
	questionsCmd.AddCommand(questionsListCmd)
	questionsCmd.AddCommand(questionsPracticeCmd)

	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	site, err := config.LoadSite()
	if err != nil {
		return fmt.Errorf("load site file: %w", err)
	}
	lib := corpus.NewLibrary(config.RepoPath, config.ContentDir, site)
	runner := lint.NewRunner(lib, site, lint.WithConcurrency(config.LintConcurrency))

	ctx, cancel := context.WithTimeout(cmd.Context(), config.JobTimeout)
	defer cancel()

	var report *models.LintReport
	if len(args) > 0 {
		report, err = runner.Files(ctx, args)
	} else {
		report, err = runner.Corpus(ctx)
	}
	if err != nil {
		return err
	}

	for _, issue := range report.Issues {
		loc := issue.Path
		if issue.Line > 0 {
			loc = fmt.Sprintf("%s:%d", issue.Path, issue.Line)
		}
		fmt.Printf("%s [%s] %s: %s\n", loc, issue.Severity, issue.Rule, issue.Message)
	}
	fmt.Printf("%d files checked, %d errors, %d warnings\n", report.Files, report.Errors(), report.Warnings())

	if report.Failed(site.Lint.FailOn) {
		os.Exit(1)
	}
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	site, err := config.LoadSite()
	if err != nil {
		return fmt.Errorf("load site file: %w", err)
	}
	lib := corpus.NewLibrary(config.RepoPath, config.ContentDir, site)

	guide, err := lib.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out, err := render.NewTerm(renderWidth).Render(guide.Body)
	if err != nil {
		return fmt.Errorf("render %s: %w", guide.Path, err)
	}
	fmt.Print(out)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	site, err := config.LoadSite()
	if err != nil {
		return fmt.Errorf("load site file: %w", err)
	}
	lib := corpus.NewLibrary(config.RepoPath, config.ContentDir, site)
	exporter := services.NewExporter(lib, site,
		render.NewHTML(nil, 0, render.WithGuideLinksAsHTML()),
		config.RepoPath, config.PublicPath, site.Title)

	result, err := exporter.Export(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("exported %d pages and %d assets to %s in %dms\n",
		result.Pages, result.Assets, config.PublicPath, result.DurationMS)
	return nil
}

func runQuestionsImport(cmd *cobra.Command, args []string) error {
	site, err := config.LoadSite()
	if err != nil {
		return fmt.Errorf("load site file: %w", err)
	}
	bank, err := openBank()
	if err != nil {
		return err
	}
	defer bank.Close()

	lib := corpus.NewLibrary(config.RepoPath, config.ContentDir, site)
	count, err := questions.NewImporter(lib, bank).ImportAll(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("imported %d questions\n", count)
	return nil
}

func runQuestionsList(cmd *cobra.Command, args []string) error {
	bank, err := openBank()
	if err != nil {
		return err
	}
	defer bank.Close()

	list, total, err := bank.List(cmd.Context(), questions.Filter{
		Category:   questionCategory,
		Difficulty: questionDifficulty,
		Limit:      questionLimit,
	})
	if err != nil {
		return err
	}
	for _, q := range list {
		fmt.Printf("[%s] %s  %s (%s)\n", q.Difficulty, q.Category, q.Prompt, q.GuidePath)
	}
	fmt.Printf("%d of %d questions\n", len(list), total)
	return nil
}

func runQuestionsPractice(cmd *cobra.Command, args []string) error {
	bank, err := openBank()
	if err != nil {
		return err
	}
	defer bank.Close()

	set, err := bank.Practice(cmd.Context(), practiceSize, questions.Filter{
		Category:   questionCategory,
		Difficulty: questionDifficulty,
	})
	if err != nil {
		return err
	}
	if len(set.Questions) == 0 {
		fmt.Println("question bank is empty, run: prepdesk questions import")
		return nil
	}
	for i, q := range set.Questions {
		fmt.Printf("%2d. [%s] %s\n", i+1, q.Difficulty, q.Prompt)
		ref := q.GuidePath
		if q.Anchor != "" {
			ref += "#" + q.Anchor
		}
		fmt.Printf("    see %s\n", ref)
	}
	return nil
}
