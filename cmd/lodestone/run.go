package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/craftlab/lodestone/pkg/backend"
	"github.com/craftlab/lodestone/pkg/report"
	"github.com/craftlab/lodestone/pkg/runner"
	"github.com/craftlab/lodestone/pkg/story"
)

var (
	runOut        string
	runRconAddr   string
	runRconPass   string
	runBridgeURL  string
	runTimeout    time.Duration
	runStopOnFail bool
)

var runCmd = &cobra.Command{
	Use:          "run [story.yaml|dir]",
	Short:        "Execute stories against a server and write reports",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runRun,
}

func init() {
	runCmd.Flags().StringVar(&runOut, "out", "reports", "directory for report output")
	runCmd.Flags().StringVar(&runRconAddr, "rcon-addr", envOr("RCON_ADDR", "localhost:25575"), "server console address")
	runCmd.Flags().StringVar(&runRconPass, "rcon-pass", os.Getenv("RCON_PASSWORD"), "server console password")
	runCmd.Flags().StringVar(&runBridgeURL, "bridge-url", os.Getenv("BRIDGE_URL"), "player-simulation bridge base URL")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "default per-action timeout (0 = 30s)")
	runCmd.Flags().BoolVar(&runStopOnFail, "stop-on-failure", false, "stop a story at the first failed step")
}

type loadedStory struct {
	path  string
	story *story.Story
}

func runRun(cmd *cobra.Command, args []string) error {
	paths, err := collectStoryFiles(args[0])
	if err != nil {
		return preflight(err)
	}

	// Validate everything before touching the server. A broken story in
	// the middle of a suite should not leave earlier stories half-run.
	var stories []loadedStory
	for _, p := range paths {
		st, errs := story.ValidateFile(p)
		warnings, fatal := splitFindings(errs)
		printFindings(p, warnings, fatal)
		if len(fatal) > 0 {
			return preflight(fmt.Errorf("%s: validation failed", p))
		}
		stories = append(stories, loadedStory{path: p, story: st})
	}

	agg := report.New(suiteName(args[0]))

	// One backend per kind, shared across the suite.
	backends := map[story.BackendKind]backend.Backend{}
	for _, l := range stories {
		kind := backendKind(l.story)
		if _, ok := backends[kind]; ok {
			continue
		}
		b, err := backend.New(backend.Config{
			Kind:         string(kind),
			RconAddr:     runRconAddr,
			RconPassword: runRconPass,
			BridgeURL:    runBridgeURL,
			Logs:         agg,
		})
		if err != nil {
			return preflight(err)
		}
		backends[kind] = b
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := map[story.BackendKind]*runner.Engine{}
	opts := runner.Options{DefaultTimeout: runTimeout, StopOnStepFailure: runStopOnFail}
	for kind, b := range backends {
		eng[kind] = runner.NewEngine(b, agg, agg, opts)
	}

	fmt.Printf("%s %d stories against %s\n\n", titleStyle.Render("lodestone"), len(stories), runRconAddr)

	var results []*story.TestResult
	for _, l := range stories {
		kind := backendKind(l.story)
		if err := backends[kind].Initialize(ctx); err != nil {
			res := &story.TestResult{StoryName: l.story.Name, Error: err.Error()}
			agg.BeginStory(l.story.Name, l.story.Description)
			agg.EndStory(res)
			results = append(results, res)
			printStoryLine(l.story.Name, false, 0)
			continue
		}
		res := eng[kind].Run(ctx, l.story)
		results = append(results, res)
		printStoryLine(l.story.Name, res.Success, time.Duration(res.ExecutionTimeMs)*time.Millisecond)
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, warnStyle.Render("interrupted, skipping remaining stories"))
			break
		}
	}

	// Release sockets and simulated players whatever happened above.
	cleanupCtx := context.WithoutCancel(ctx)
	for _, b := range backends {
		if err := b.Cleanup(cleanupCtx); err != nil {
			fmt.Fprintf(os.Stderr, "backend cleanup: %v\n", err)
		}
	}

	agg.Finish()
	suite := agg.Suite()
	if err := report.WriteAll(suite, runOut); err != nil {
		fmt.Fprintf(os.Stderr, "writing reports: %v\n", err)
	}

	printSummary(suite, results)
	if !suite.Passed {
		return fmt.Errorf("suite failed")
	}
	return nil
}

func backendKind(s *story.Story) story.BackendKind {
	if s.Backend == "" {
		return story.BackendConsole
	}
	return s.Backend
}

// collectStoryFiles expands a file or directory argument into the sorted
// list of story files to run.
func collectStoryFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no story files (*.yaml) in %s", path)
	}
	sort.Strings(files)
	return files, nil
}

// suiteName derives the suite name from the run argument: the directory
// name, or the file name without extension.
func suiteName(path string) string {
	base := filepath.Base(filepath.Clean(path))
	if ext := filepath.Ext(base); ext == ".yaml" || ext == ".yml" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

func printStoryLine(name string, passed bool, d time.Duration) {
	glyph := passedStyle.Render(glyphPassed)
	if !passed {
		glyph = failedStyle.Render(glyphFailed)
	}
	fmt.Printf("  %s %s %s\n", glyph, name, dimStyle.Render(d.Round(time.Millisecond).String()))
}

func printSummary(suite *report.Suite, results []*story.TestResult) {
	passed, failed := 0, 0
	var assertions, assertionsFailed int
	for _, st := range suite.Stories {
		if st.Passed {
			passed++
		} else {
			failed++
		}
	}
	for _, r := range results {
		assertions += r.AssertionsPassed + r.AssertionsFailed
		assertionsFailed += r.AssertionsFailed
	}

	fmt.Println()
	verdict := passedStyle.Render(glyphPassed + " suite passed")
	if !suite.Passed {
		verdict = failedStyle.Render(glyphFailed + " suite failed")
	}
	fmt.Printf("%s  %d passed, %d failed, %d/%d assertions ok\n",
		verdict, passed, failed, assertions-assertionsFailed, assertions)
	fmt.Printf("%s\n", dimStyle.Render("reports in "+runOut))
}
