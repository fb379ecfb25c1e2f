package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/craftlab/lodestone/pkg/story"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		var pf preflightError
		if errors.As(err, &pf) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// preflightError marks failures that happen before any story executed:
// unreadable input, validation errors, backend misconfiguration. They
// exit 2 so CI can tell "tests failed" from "tests never ran".
type preflightError struct{ err error }

func (e preflightError) Error() string { return e.err.Error() }
func (e preflightError) Unwrap() error { return e.err }

func preflight(err error) error { return preflightError{err} }

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
// The .env file is gitignored so secrets never end up in source control.
func loadDotEnv() {
	f, err := os.Open(".env")
	if err != nil {
		return // no .env file — that's fine
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		// Remove surrounding quotes
		val = strings.Trim(val, `"'`)
		// Don't overwrite existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:     "lodestone",
	Short:   "Story-driven integration tests for Minecraft server plugins",
	Long:    "lodestone executes declarative YAML test stories against a running Minecraft server, over the console or a player-simulation bridge, and writes text, JSON, JUnit and HTML reports.",
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.AddCommand(validateCmd, schemaCmd, runCmd)
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:          "validate [story.yaml]",
	Short:        "Validate a story YAML file against the schema",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	st, errs := story.ValidateFile(filePath)
	warnings, fatal := splitFindings(errs)
	printFindings(filePath, warnings, fatal)
	if len(fatal) > 0 {
		return preflight(fmt.Errorf("validation failed with %d error(s)", len(fatal)))
	}
	steps := len(st.Setup) + len(st.Steps) + len(st.Assertions) + len(st.Cleanup)
	fmt.Printf("%s %s is valid (%d actions)\n", passedStyle.Render(glyphPassed), st.Name, steps)
	return nil
}

func splitFindings(errs []*story.ValidationError) (warnings, fatal []*story.ValidationError) {
	for _, e := range errs {
		if e.Severity == "warning" {
			warnings = append(warnings, e)
		} else {
			fatal = append(fatal, e)
		}
	}
	return warnings, fatal
}

func printFindings(filePath string, warnings, fatal []*story.ValidationError) {
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  %s [%s] %s\n", warnStyle.Render("⚠"), w.Phase, w.Message)
		if w.Path != "" {
			fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
		}
	}
	if len(fatal) > 0 {
		fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", filepath.Base(filePath), len(fatal))
		for i, e := range fatal {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
	}
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:          "schema",
	Short:        "Print the JSON Schema for story files",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := story.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}
