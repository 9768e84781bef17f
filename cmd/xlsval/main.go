package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/odk"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/report"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/schema"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/tabular"
	"github.com/madewulf/spreadsheet-xlsform-validator/pkg/validate"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadDotEnv() // load .env file if present (gitignored)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

// loadDotEnv reads a .env file from the working directory and sets
// any variables that aren't already set in the environment.
// Lines are KEY=VALUE (or KEY="VALUE"). Comments (#) and blanks are skipped.
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
		val := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// config supplies defaults for the external validator. Flags win over
// the config file.
type config struct {
	ExternalValidator string `yaml:"external_validator,omitempty"`
	Timeout           string `yaml:"timeout,omitempty"`
}

// loadConfig reads an optional .xlsval.yaml from the working directory.
func loadConfig() (*config, error) {
	f, err := os.Open(".xlsval.yaml")
	if err != nil {
		return &config{}, nil
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var cfg config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode .xlsval.yaml: %w", err)
	}
	return &cfg, nil
}

var rootCmd = &cobra.Command{
	Use:           "xlsval",
	Short:         "Validate spreadsheet data against an XLSForm definition",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	flagForm     string
	flagData     string
	flagDocs     bool
	flagExternal string
	flagTimeout  time.Duration
	flagJSON     bool
	flagReport   string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a data file against a form definition",
	RunE:  runValidate,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for form-definition documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := schema.GenerateJSONSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xlsval %s (%s)\n", version, commit)
	},
}

func init() {
	validateCmd.Flags().StringVar(&flagForm, "form", "", "form definition file (JSON or YAML)")
	validateCmd.Flags().StringVar(&flagData, "data", "", "tabular data file (CSV)")
	validateCmd.Flags().BoolVar(&flagDocs, "docs", false, "generate one interchange document per valid row")
	validateCmd.Flags().StringVar(&flagExternal, "external", "", "path to the external validator tool (delegated path)")
	validateCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "per-row timeout for the external validator")
	validateCmd.Flags().BoolVar(&flagJSON, "json", false, "emit the validation result as JSON")
	validateCmd.Flags().StringVar(&flagReport, "report", "", "write the highlighted-copy report workbook (JSON) to this path")
	validateCmd.MarkFlagRequired("form")
	validateCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(validateCmd, schemaCmd, versionCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	external := flagExternal
	if external == "" {
		external = cfg.ExternalValidator
	}
	timeout := flagTimeout
	if timeout == 0 && cfg.Timeout != "" {
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
	}

	def, model, failure := loadModel(flagForm)
	if failure != nil {
		return emit(failure, nil)
	}

	dataFile, err := os.Open(flagData)
	if err != nil {
		return fmt.Errorf("open data file: %w", err)
	}
	defer dataFile.Close()

	table, err := tabular.ReadCSV(dataFile)
	if err != nil {
		return emit(validate.ParseFailure(fmt.Sprintf("Error parsing spreadsheet: %v", err)), nil)
	}

	var result *validate.Result
	if external != "" {
		bridge := odk.New(model, def, external)
		if timeout > 0 {
			bridge.Timeout = timeout
		}
		result, err = bridge.Validate(context.Background(), table, flagDocs)
		if err != nil {
			return err
		}
	} else {
		result = validate.New(model).Validate(table)
		if result.Valid && flagDocs {
			if err := generateDocuments(model, table, result); err != nil {
				// Generation failure never corrupts the computed validity.
				fmt.Fprintf(os.Stderr, "%s: %v\n", validate.KindDocGeneration, err)
			}
		}
	}

	return emit(result, table)
}

// loadModel parses, checks and extracts the form definition. Any
// failure is the run-fatal parse_error: no partial model is usable.
func loadModel(path string) (*schema.Definition, *schema.Model, *validate.Result) {
	def, err := schema.LoadFile(path)
	if err != nil {
		return nil, nil, validate.ParseFailure(
			"Failed to parse form definition. Make sure it contains the survey children and choices sections.")
	}

	if defErrs := schema.ValidateDefinition(def); len(defErrs) > 0 {
		msgs := make([]string, len(defErrs))
		for i, e := range defErrs {
			msgs[i] = e.Error()
		}
		return nil, nil, validate.ParseFailure("Invalid form definition: " + strings.Join(msgs, "; "))
	}

	model, err := schema.Extract(def)
	if err != nil {
		return nil, nil, validate.ParseFailure(fmt.Sprintf("Failed to extract form definition: %v", err))
	}
	return def, model, nil
}

func generateDocuments(model *schema.Model, table *tabular.Table, result *validate.Result) error {
	tmpl, err := report.NewDocumentTemplate(model)
	if err != nil {
		return err
	}
	return tmpl.Generate(table, func(doc string) error {
		result.Documents = append(result.Documents, doc)
		return nil
	})
}

var (
	validStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	invalidStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// emit writes the report workbook when requested, prints the result,
// and maps validity to the process exit code (0 valid, 1 invalid).
func emit(result *validate.Result, table *tabular.Table) error {
	if flagReport != "" && table != nil && !result.Valid {
		wb := report.BuildHighlighted(table, result.Errors)
		data, err := json.MarshalIndent(wb, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(flagReport, data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	if flagJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
	} else if result.Valid {
		fmt.Println(validStyle.Render("✓ valid"))
		if len(result.Documents) > 0 {
			fmt.Println(dimStyle.Render(fmt.Sprintf("  %d document(s) generated", len(result.Documents))))
		}
	} else {
		fmt.Println(invalidStyle.Render(fmt.Sprintf("✗ invalid — %d error(s)", len(result.Errors))))
		for _, e := range result.Errors {
			loc := fmt.Sprintf("line %d, column %d", e.Line, e.Column)
			fmt.Printf("  %s  %s  %s\n", dimStyle.Render(loc), e.Kind, e.Explanation)
			if e.ConstraintMessage != "" {
				fmt.Printf("  %s  %s\n", dimStyle.Render("message:"), e.ConstraintMessage)
			}
		}
	}

	if !result.Valid {
		os.Exit(1)
	}
	return nil
}
