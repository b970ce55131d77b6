package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/osvaldoandrade/autodeploy/pkg/domain"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// briefFile is the on-disk form accepted by `deploy --file`.
type briefFile struct {
	Task        string   `yaml:"task"`
	RepoName    string   `yaml:"repoName"`
	CallbackURL string   `yaml:"callbackUrl"`
	Checks      []string `yaml:"checks"`
	Round       int      `yaml:"round"`
	Nonce       string   `yaml:"nonce"`
	Email       string   `yaml:"email"`
}

func readBriefFile(path string) (domain.TaskRequest, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.TaskRequest{}, err
	}
	var bf briefFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return domain.TaskRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return domain.TaskRequest{
		Task:        bf.Task,
		RepoName:    bf.RepoName,
		CallbackURL: bf.CallbackURL,
		Checks:      bf.Checks,
		Round:       bf.Round,
		Nonce:       bf.Nonce,
		Email:       bf.Email,
	}, nil
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	s.Suffix = " " + suffix
	return s
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or update a CLI profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			name := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[name]

			reader := bufio.NewReader(os.Stdin)
			fmt.Println(ui.title("autodeploy init"))
			prof.BaseURL = prompt(reader, "Service URL", firstNonEmpty(prof.BaseURL, "http://localhost:8080"))
			secret, err := promptSecret(fmt.Sprintf("Shared secret [%s]", maskSecret(prof.Secret)))
			if err != nil {
				return err
			}
			if secret != "" {
				prof.Secret = secret
			}

			cfg.Profiles[name] = prof
			cfg.CurrentProfile = name
			if err := saveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Printf("%s profile %q saved to %s\n", ui.ok("[OK]"), name, path)
			return nil
		},
	}
}

func configCmd(profileName *string, ui *ui) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit CLI profiles",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			name := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[name]
			fmt.Printf("%s %s\n", ui.dim("config:"), path)
			fmt.Printf("%s %s\n", ui.dim("profile:"), name)
			fmt.Printf("%s %s\n", ui.dim("baseUrl:"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s %s\n", ui.dim("secret:"), maskSecret(prof.Secret))
			return nil
		},
	}

	var baseURL string
	var askSecret bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Update fields of the active profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			name := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[name]
			if baseURL != "" {
				prof.BaseURL = baseURL
			}
			if askSecret {
				secret, err := promptSecret("Shared secret")
				if err != nil {
					return err
				}
				prof.Secret = secret
			}
			cfg.Profiles[name] = prof
			if cfg.CurrentProfile == "" {
				cfg.CurrentProfile = name
			}
			if err := saveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Printf("%s profile %q updated\n", ui.ok("[OK]"), name)
			return nil
		},
	}
	set.Flags().StringVar(&baseURL, "base-url", "", "Service URL")
	set.Flags().BoolVar(&askSecret, "secret", false, "Prompt for the shared secret")

	use := &cobra.Command{
		Use:   "use <profile>",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			if _, ok := cfg.Profiles[args[0]]; !ok {
				return fmt.Errorf("unknown profile %q", args[0])
			}
			cfg.CurrentProfile = args[0]
			if err := saveConfig(cfg, path); err != nil {
				return err
			}
			fmt.Printf("%s current profile is %q\n", ui.ok("[OK]"), args[0])
			return nil
		},
	}

	cmd.AddCommand(show, set, use)
	return cmd
}

func deployCmd(newAPI func() *client, secret *string, ui *ui) *cobra.Command {
	var req domain.TaskRequest
	var file string
	var raw bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Generate a site and publish it",
		RunE: func(cmd *cobra.Command, args []string) error {
			body := req
			if file != "" {
				fromFile, err := readBriefFile(file)
				if err != nil {
					return err
				}
				body = mergeRequest(fromFile, req)
			}
			if strings.TrimSpace(body.Task) == "" {
				return errors.New("task is required (--task or --file)")
			}
			body.Secret = *secret
			if body.Secret == "" {
				return errors.New("secret is required (--secret, AUTODEPLOY_SECRET or autodeploy init)")
			}

			api := newAPI()
			sp := newSpinner("generating and publishing...")
			sp.Start()
			code, out, err := api.request(http.MethodPost, "/api/generate-and-deploy-task", body)
			sp.Stop()
			if err != nil {
				return err
			}
			if code != http.StatusOK {
				return apiError(code, out)
			}
			if raw {
				fmt.Println(string(out))
				return nil
			}
			var res domain.DeploymentResult
			if err := json.Unmarshal(out, &res); err != nil {
				return fmt.Errorf("decode result: %w", err)
			}
			renderResult(os.Stdout, ui, res)
			if res.Status != domain.StatusSuccess {
				return fmt.Errorf("deployment %s", res.Status)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Task, "task", "", "Task description")
	f.StringVar(&req.RepoName, "repo", "", "Repository name (derived from the task when empty)")
	f.StringVar(&req.CallbackURL, "callback", "", "Callback URL notified when the deployment finishes")
	f.StringArrayVar(&req.Checks, "check", nil, "Acceptance check (repeatable)")
	f.IntVar(&req.Round, "round", 0, "Round number")
	f.StringVar(&req.Nonce, "nonce", "", "Caller nonce echoed in the callback")
	f.StringVar(&req.Email, "email", "", "Requester email")
	f.StringVar(&file, "file", "", "Read the brief from a YAML file ('-' for stdin)")
	f.BoolVar(&raw, "json", false, "Print the raw JSON result")
	return cmd
}

// mergeRequest overlays non-empty flag values onto a brief read from file.
func mergeRequest(base, flags domain.TaskRequest) domain.TaskRequest {
	base.Task = firstNonEmpty(flags.Task, base.Task)
	base.RepoName = firstNonEmpty(flags.RepoName, base.RepoName)
	base.CallbackURL = firstNonEmpty(flags.CallbackURL, base.CallbackURL)
	base.Nonce = firstNonEmpty(flags.Nonce, base.Nonce)
	base.Email = firstNonEmpty(flags.Email, base.Email)
	if len(flags.Checks) > 0 {
		base.Checks = flags.Checks
	}
	if flags.Round > 0 {
		base.Round = flags.Round
	}
	return base
}

func renderResult(w io.Writer, ui *ui, res domain.DeploymentResult) {
	bar := progressbar.NewOptions(len(domain.PipelineSteps),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("pipeline"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
	)
	done := 0
	for _, s := range res.Steps {
		if s.Success {
			done++
		}
	}
	_ = bar.Set(done)
	fmt.Fprintln(w)
	for _, line := range renderSteps(ui, res.Steps) {
		fmt.Fprintln(w, line)
	}

	status := string(res.Status)
	switch res.Status {
	case domain.StatusSuccess:
		status = ui.ok(status)
	case domain.StatusPartial:
		status = ui.warn(status)
	default:
		status = ui.err(status)
	}
	fmt.Fprintf(w, "%s %s\n", ui.dim("status:"), status)
	fmt.Fprintf(w, "%s %s\n", ui.dim("id:"), res.ID)
	if res.Repository != "" {
		fmt.Fprintf(w, "%s %s\n", ui.dim("repository:"), res.Repository)
	}
	if res.HTMLURL != "" {
		fmt.Fprintf(w, "%s %s\n", ui.dim("repo url:"), res.HTMLURL)
	}
	if res.RepoURL != "" {
		fmt.Fprintf(w, "%s %s\n", ui.dim("site:"), ui.info(res.RepoURL))
	}
	if res.CommitSHA != "" {
		fmt.Fprintf(w, "%s %s\n", ui.dim("commit:"), res.CommitSHA)
	}
}

func renderSteps(ui *ui, steps []domain.StepRecord) []string {
	lines := make([]string, 0, len(steps))
	for _, s := range steps {
		if s.Success {
			lines = append(lines, fmt.Sprintf("%s %s", ui.ok("[OK]  "), s.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", ui.err("[FAIL]"), s.Name, s.Error))
	}
	return lines
}

func statusCmd(newAPI func() *client, ui *ui) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "status [repo]",
		Short: "Show service status, or the hosting state of a repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api := newAPI()
			path := "/api/status"
			if len(args) == 1 {
				path += "/" + args[0]
			}
			code, out, err := api.request(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if code != http.StatusOK {
				return apiError(code, out)
			}
			if raw {
				fmt.Println(string(out))
				return nil
			}
			if len(args) == 1 {
				var rep domain.DeploymentReport
				if err := json.Unmarshal(out, &rep); err != nil {
					return err
				}
				fmt.Printf("%s %s\n", ui.dim("repository:"), rep.Repository)
				fmt.Printf("%s %s\n", ui.dim("pages:"), ui.info(rep.PagesURL))
				fmt.Printf("%s %s\n", ui.dim("pages status:"), rep.PagesStatus)
				for _, r := range rep.WorkflowRuns {
					fmt.Printf("  #%d %s %s %s\n", r.ID, r.Status, emptyOr(r.Conclusion, "-"), ui.dim(r.CreatedAt.Format(time.RFC3339)))
				}
				return nil
			}
			var st map[string]any
			if err := json.Unmarshal(out, &st); err != nil {
				return err
			}
			for _, k := range []string{"aiConfigured", "hostingConfigured", "secretConfigured"} {
				mark := ui.err("[NO]")
				if v, _ := st[k].(bool); v {
					mark = ui.ok("[OK]")
				}
				fmt.Printf("%s %s\n", mark, k)
			}
			fmt.Printf("%s %v\n", ui.dim("provider:"), st["provider"])
			fmt.Printf("%s %v\n", ui.dim("model:"), st["model"])
			fmt.Printf("%s %v\n", ui.dim("uptime (s):"), st["uptimeSeconds"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "json", false, "Print the raw JSON response")
	return cmd
}

func healthCmd(newAPI func() *client, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is up",
		RunE: func(cmd *cobra.Command, args []string) error {
			code, out, err := newAPI().request(http.MethodGet, "/api/health", nil)
			if err != nil {
				return err
			}
			if code != http.StatusOK {
				return apiError(code, out)
			}
			fmt.Printf("%s %s\n", ui.ok("[OK]"), strings.TrimSpace(string(out)))
			return nil
		},
	}
}

func apiError(code int, body []byte) error {
	var e struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		if e.Field != "" {
			return fmt.Errorf("http %d: %s (%s)", code, e.Error, e.Field)
		}
		return fmt.Errorf("http %d: %s", code, e.Error)
	}
	return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
