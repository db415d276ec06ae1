package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"talentscan/internal/domain"
	"talentscan/internal/infra/config"
	"talentscan/internal/usecase/airouter"
)

// CheckStatus is the verdict of one doctor check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult is what a check reports. Fix is optional.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// needsConfig fails fn's check up front when the config did not load.
func needsConfig(fn func(*config.Config) CheckResult) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
		}
		return fn(cfg)
	}
}

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	var ping bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and routing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cfgErr := config.Load(flags.configPath)

			checks := []Check{
				{Name: "Config file", Fn: checkConfigFile(flags.configPath, cfgErr)},
				{Name: "Provider credentials", Fn: needsConfig(checkCredentials)},
				{Name: "Task routes", Fn: needsConfig(checkRoutes)},
				{Name: "GitHub token", Fn: needsConfig(checkGitHubToken)},
			}
			if ping && cfgErr == nil {
				rt, err := setup(cmd.Context(), flags, io.Discard)
				if err != nil {
					return err
				}
				defer rt.Close()
				checks = append(checks, Check{Name: "Provider ping", Fn: checkPing(cmd.Context(), rt)})
			}

			return runDoctor(cmd.OutOrStdout(), cfg, checks)
		},
	}
	cmd.Flags().BoolVar(&ping, "ping", false, "send a tiny prompt to every available provider")
	return cmd
}

// runDoctor prints one line per check and a tally. It fails when any check
// failed.
func runDoctor(w io.Writer, cfg *config.Config, checks []Check) error {
	rule := strings.Repeat("=", 50)
	fmt.Fprintf(w, "talentscan doctor\n%s\n\n", rule)

	tally := make(map[CheckStatus]int, 3)
	for _, check := range checks {
		res := check.Fn(cfg)
		res.Name = check.Name
		tally[res.Status]++

		fmt.Fprintf(w, "  [%s] %s: %s\n", res.Status, res.Name, res.Message)
		if res.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", res.Fix)
		}
	}

	fmt.Fprintf(w, "\n%s\nResults: %d passed, %d warnings, %d failed\n",
		strings.Repeat("-", len(rule)), tally[StatusPass], tally[StatusWarn], tally[StatusFail])
	if n := tally[StatusFail]; n > 0 {
		return fmt.Errorf("%d check(s) failed", n)
	}
	return nil
}

// checkConfigFile reports whether the config file parsed. A missing file is
// only a warning since the built-in defaults still work.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check the YAML syntax and field values in " + cfgPath,
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config at %s, using built-in defaults", cfgPath),
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

// checkCredentials verifies at least one provider can be called.
func checkCredentials(cfg *config.Config) CheckResult {

	var with, without []string
	for _, p := range cfg.LLM.Providers {
		if p.HasCredential() {
			with = append(with, p.Name)
		} else {
			without = append(without, p.Name)
		}
	}

	switch {
	case len(with) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("no credentials for any provider (%s)", strings.Join(without, ", ")),
			Fix:     "Export at least one key, e.g. GROQ_API_KEY or GEMINI_API_KEY",
		}
	case len(without) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("available: %s; unavailable: %s", strings.Join(with, ", "), strings.Join(without, ", ")),
		}
	default:
		return CheckResult{Status: StatusPass, Message: "available: " + strings.Join(with, ", ")}
	}
}

// checkRoutes warns for tasks whose preferred provider is unavailable, since
// they will always start on a fallback.
func checkRoutes(cfg *config.Config) CheckResult {
	table, err := routeTable(cfg.Routing)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}

	available := make(map[string]bool)
	for _, p := range cfg.LLM.Providers {
		if p.HasCredential() {
			available[p.Name] = true
		}
	}

	var degraded []string
	for _, task := range domain.TaskCategories() {
		if name := table.Preferred(task); !available[name] {
			degraded = append(degraded, fmt.Sprintf("%s (%s)", task, name))
		}
	}
	if len(degraded) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "preferred provider unavailable for: " + strings.Join(degraded, ", "),
			Fix:     "Set the missing credentials or override routing.tasks in the config",
		}
	}
	return CheckResult{Status: StatusPass, Message: "every task starts on its preferred provider"}
}

func checkGitHubToken(cfg *config.Config) CheckResult {
	if cfg.GitHub.Token == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no token, anonymous GitHub access is limited to 60 requests per hour",
			Fix:     "Export GITHUB_TOKEN",
		}
	}
	return CheckResult{Status: StatusPass, Message: "token configured"}
}

// checkPing calls every registered provider directly, bypassing fallback.
func checkPing(ctx context.Context, rt *runtime) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		names := rt.registry.List()
		if len(names) == 0 {
			return CheckResult{Status: StatusFail, Message: "no providers to ping"}
		}

		models := make(map[string]string)
		for _, d := range rt.router.Descriptors() {
			models[d.Name] = d.Model
		}

		var ok, failed []string
		for _, name := range names {
			p, err := rt.registry.Get(name)
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s (%v)", name, err))
				continue
			}
			pingCtx, cancel := context.WithTimeout(ctx, airouter.DefaultAttemptTimeout)
			start := time.Now()
			_, err = p.Chat(pingCtx, domain.ChatRequest{
				Model:     models[name],
				Messages:  domain.UserPrompt("Reply with OK."),
				MaxTokens: 8,
			})
			cancel()
			if err != nil {
				failed = append(failed, fmt.Sprintf("%s (%s)", name, domain.ErrorCodeOf(err)))
				continue
			}
			ok = append(ok, fmt.Sprintf("%s %dms", name, time.Since(start).Milliseconds()))
		}

		switch {
		case len(ok) == 0:
			return CheckResult{Status: StatusFail, Message: "all pings failed: " + strings.Join(failed, ", ")}
		case len(failed) > 0:
			return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("ok: %s; failed: %s", strings.Join(ok, ", "), strings.Join(failed, ", "))}
		default:
			return CheckResult{Status: StatusPass, Message: "ok: " + strings.Join(ok, ", ")}
		}
	}
}
