package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"talentscan/internal/adapter/github"
	"talentscan/internal/domain"
	"talentscan/internal/usecase/analysis"
)

func newGenerateCmd(flags *globalFlags) *cobra.Command {
	var (
		taskName string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "generate [prompt|-]",
		Short: "Route one prompt and print the generated text",
		Long: `Sends the prompt to the preferred provider for --task, falling back through
the remaining providers on failure. With no argument or "-", the prompt is
read from stdin. Provenance is printed to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := domain.ParseTaskCategory(taskName)
			if err != nil {
				return err
			}
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			rt, err := setup(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.router.Generate(cmd.Context(), prompt, task)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, res.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "-- provider=%s model=%s attempts=%d latency=%dms request=%s\n",
				res.Provider, res.Model, res.Attempts, res.LatencyMs(), res.RequestID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&taskName, "task", "t", string(domain.TaskGeneral), "task category: "+taskList())
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full invocation result as JSON")
	return cmd
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", domain.NewDomainError("generate", domain.ErrInvalidInput, "empty prompt")
	}
	return prompt, nil
}

func taskList() string {
	names := make([]string, 0, len(domain.TaskCategories()))
	for _, t := range domain.TaskCategories() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

func newAnalyzeCmd(flags *globalFlags) *cobra.Command {
	var (
		profilePath string
		useDefaults bool
	)
	cmd := &cobra.Command{
		Use:   "analyze <github-user>",
		Short: "Analyze a developer profile and print a JSON report",
		Long: `Fetches the user's public GitHub profile (or reads --profile) and runs the
code analysis, profile scan, skill extraction and summary stages.

With --defaults, a stage whose providers all fail is filled with a neutral
default payload and listed under "degraded" instead of aborting the run.`,
		Args: cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && profilePath == "" {
				return fmt.Errorf("a GitHub username or --profile is required")
			}

			rt, err := setup(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			var profile domain.CandidateProfile
			if profilePath != "" {
				profile, err = github.LoadProfileFile(profilePath)
			} else {
				profile, err = github.NewClient(rt.cfg.GitHub, rt.logger).FetchProfile(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			opts := analysis.Options{
				UseDefaults: rt.cfg.Analysis.UseDefaults || useDefaults,
				Timeout:     rt.cfg.Analysis.Timeout,
			}
			report, err := analysis.NewPipeline(rt.router, opts, rt.logger).Analyze(cmd.Context(), profile)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&profilePath, "profile", "", "read the profile from a JSON file instead of GitHub")
	cmd.Flags().BoolVar(&useDefaults, "defaults", false, "substitute default payloads for stages where every provider failed")
	return cmd
}

func newProvidersCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and the fallback chain for each task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd.Context(), flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tMODEL\tAVAILABLE\tPRIORITY\tDAILY LIMIT\tCOST\tBREAKER")
			for _, d := range rt.router.Descriptors() {
				limit := "-"
				if d.DailyRequestLimit > 0 {
					limit = fmt.Sprint(d.DailyRequestLimit)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%d\t%s\t%s\t%s\n",
					d.Name, d.Type, d.Model, d.Available, d.Priority, limit, d.CostClass,
					rt.registry.BreakerState(d.Name))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TASK\tPREFERRED\tCHAIN")
			for _, task := range domain.TaskCategories() {
				chain := rt.router.Candidates(task)
				shown := strings.Join(chain, " > ")
				if shown == "" {
					shown = "(no providers available)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", task, rt.router.ResolvePreferred(task), shown)
			}
			return tw.Flush()
		},
	}
}
