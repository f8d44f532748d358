package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rc"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage rc configuration.

Running bare 'rc config' is the same as 'rc config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# rc configuration
# See: rc config show (for effective values and sources)

# State/data directory (default: ~/.config/rc)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/rc/rc.db)
# db_path: {{ .DBPath }}

# Reviewer roster file (default: ~/.config/rc/reviewers.yaml)
# roster_path: {{ .RosterPath }}

# Anthropic API
anthropic:
  # API key for LLM reviewers (or set RC_ANTHROPIC_API_KEY)
  api_key: ""

  # Default model for roster entries that do not name one
  model: "{{ .Model }}"

# Reviewer invocation
reviewer:
  # Per-reviewer budget in milliseconds (default: 300000)
  timeout_ms: {{ .TimeoutMs }}

orchestrator:
  # Fraction of reviewers that must succeed before consolidation (default: 0.667)
  min_coverage: {{ printf "%.3f" .MinCoverage }}

  # Cancel remaining reviewers once a critical issue is reported (default: false)
  cancel_on_p0: {{ .CancelOnP0 }}

dedup:
  # Similarity score at or above which two findings merge (default: 0.80)
  similarity_threshold: {{ printf "%.2f" .SimilarityThreshold }}

report:
  # Issues below this confidence go to the appendix (default: 0.60)
  confidence_floor: {{ printf "%.2f" .ConfidenceFloor }}

cycle:
  # Fix iterations before escalation (default: 2)
  max_iterations: {{ .MaxIterations }}

  # Minimum fraction of prior issues fixed per iteration (default: 0.5)
  min_improvement_rate: {{ printf "%.2f" .MinImprovementRate }}
`

type configTemplateData struct {
	StateDir            string
	DBPath              string
	RosterPath          string
	Model               string
	TimeoutMs           int
	MinCoverage         float64
	CancelOnP0          bool
	SimilarityThreshold float64
	ConfidenceFloor     float64
	MaxIterations       int
	MinImprovementRate  float64
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:            viper.GetString("state_dir"),
		DBPath:              viper.GetString("db_path"),
		RosterPath:          viper.GetString("roster_path"),
		Model:               viper.GetString("anthropic.model"),
		TimeoutMs:           viper.GetInt("reviewer.timeout_ms"),
		MinCoverage:         viper.GetFloat64("orchestrator.min_coverage"),
		CancelOnP0:          viper.GetBool("orchestrator.cancel_on_p0"),
		SimilarityThreshold: viper.GetFloat64("dedup.similarity_threshold"),
		ConfidenceFloor:     viper.GetFloat64("report.confidence_floor"),
		MaxIterations:       viper.GetInt("cycle.max_iterations"),
		MinImprovementRate:  viper.GetFloat64("cycle.min_improvement_rate"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "RC_STATE_DIR"},
	{Key: "db_path", EnvVar: "RC_DB_PATH"},
	{Key: "roster_path", EnvVar: "RC_ROSTER_PATH"},
	{Key: "anthropic.model", EnvVar: "RC_ANTHROPIC_MODEL"},
	{Key: "reviewer.timeout_ms", EnvVar: "RC_REVIEWER_TIMEOUT_MS"},
	{Key: "orchestrator.min_coverage", EnvVar: "RC_ORCHESTRATOR_MIN_COVERAGE"},
	{Key: "orchestrator.cancel_on_p0", EnvVar: "RC_ORCHESTRATOR_CANCEL_ON_P0"},
	{Key: "dedup.similarity_threshold", EnvVar: "RC_DEDUP_SIMILARITY_THRESHOLD"},
	{Key: "report.confidence_floor", EnvVar: "RC_REPORT_CONFIDENCE_FLOOR"},
	{Key: "cycle.max_iterations", EnvVar: "RC_CYCLE_MAX_ITERATIONS"},
	{Key: "cycle.min_improvement_rate", EnvVar: "RC_CYCLE_MIN_IMPROVEMENT_RATE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set, set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'rc config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
