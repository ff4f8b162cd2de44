package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bryanwahyu/safeguard/internal/application/pipeline"
	"github.com/bryanwahyu/safeguard/internal/bootstrap"
	"github.com/bryanwahyu/safeguard/internal/config"
	"github.com/bryanwahyu/safeguard/internal/domain/safeguarding"
)

// cliDeps lets tests swap the provider and logger.
type cliDeps struct {
	bootstrap.Deps
	logger *zap.Logger
}

type cli struct {
	out        io.Writer
	deps       cliDeps
	configPath string
	verbose    bool
	offline    bool
	logger     *zap.Logger
}

func newRootCmd(out io.Writer, deps cliDeps) *cobra.Command {
	c := &cli{out: out, deps: deps}

	root := &cobra.Command{
		Use:           "safeguard",
		Short:         "Privacy-preserving safeguarding analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.deps.logger != nil {
				c.logger = c.deps.logger
				return nil
			}
			zc := zap.NewProductionConfig()
			zc.OutputPaths = []string{"stderr"}
			if c.verbose {
				zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			} else {
				zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			}
			var err error
			c.logger, err = zc.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (defaults plus env when empty)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "use the built-in rule-based analyzer instead of the provider API")

	root.AddCommand(c.analyzeCmd(), c.summaryCmd(), c.complianceCmd(), c.versionCmd())
	return root
}

func (c *cli) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath == "" {
		cfg, err = config.Parse(nil)
	} else {
		cfg, err = config.Load(c.configPath)
	}
	if err != nil {
		return nil, err
	}
	if c.offline {
		cfg.Provider.Offline = true
	}
	return cfg, nil
}

func (c *cli) open(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.Open(cmd.Context(), cfg, c.logger, c.deps.Deps)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// analysisInput mirrors the body of POST /v1/{tenant}/analyses.
type analysisInput struct {
	StudentID string                      `json:"student_id"`
	Profile   safeguarding.StudentProfile `json:"profile"`
	Record    safeguarding.RawRecord      `json:"record"`
}

func readInput(path string) (analysisInput, error) {
	var in analysisInput
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return in, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("decode %s: %w", path, err)
	}
	return in, nil
}

func (c *cli) analyzeCmd() *cobra.Command {
	var (
		recordPath string
		studentID  string
		tenant     string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one student record and print the report",
		Long: `Reads {"student_id", "profile", "record"} JSON from --record (or stdin)
and runs it through the full pipeline. --student-id overrides the id in the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(recordPath)
			if err != nil {
				return err
			}
			if studentID != "" {
				in.StudentID = studentID
			}
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			rep, err := app.Orchestrator.Run(cmd.Context(), pipeline.Job{
				Tenant:    tenant,
				StudentID: in.StudentID,
				Record:    in.Record,
				Profile:   in.Profile,
			})
			if err != nil {
				return err
			}
			return c.printJSON(rep)
		},
	}
	cmd.Flags().StringVarP(&recordPath, "record", "r", "-", "analysis input JSON file")
	cmd.Flags().StringVar(&studentID, "student-id", "", "student id")
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant scope for history")
	return cmd
}

func (c *cli) summaryCmd() *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "summary [student-id]",
		Short: "Show the stored analysis history for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sum, err := app.Orchestrator.GetTenantAnalysisSummary(cmd.Context(), tenant, args[0])
			if err != nil {
				return err
			}
			return c.printJSON(sum)
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "tenant scope")
	return cmd
}

func (c *cli) complianceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compliance",
		Short: "Print the privacy compliance report over stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			return c.printJSON(app.Orchestrator.PrivacyComplianceReport())
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(c.out, "safeguard %s\n", version)
			return err
		},
	}
}
