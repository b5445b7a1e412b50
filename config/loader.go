package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	ProjectManifestFile = "project.yaml"
	OrgChartFile         = "org/org-chart.yaml"
)

var structValidator = validator.New()

// Loader reads a project's project.yaml and org/org-chart.yaml with layered
// defaults and environment overrides, grounded on the same precedence shape
// the teacher's config.Loader uses for semspec.yaml / ~/.config.
type Loader struct {
	root   string
	logger *slog.Logger
}

// NewLoader creates a loader rooted at a data directory (the directory
// containing project.yaml and org/).
func NewLoader(root string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{root: root, logger: logger}
}

// Loaded bundles the validated manifest and org chart a poll/dispatch cycle
// needs.
type Loaded struct {
	Project  *Project
	OrgChart *OrgChart
}

// Load reads project.yaml and org/org-chart.yaml, applies AOF_* environment
// overrides, struct-validates, then lint-validates. A non-empty lint result
// containing any "error" severity issue is returned as an error; warnings are
// logged and returned alongside Loaded for the caller to display.
func (l *Loader) Load() (*Loaded, []Issue, error) {
	project, err := l.loadProject()
	if err != nil {
		return nil, nil, fmt.Errorf("load project manifest: %w", err)
	}
	l.applyEnvOverrides(project)

	org, err := l.loadOrgChart()
	if err != nil {
		return nil, nil, fmt.Errorf("load org chart: %w", err)
	}

	if err := structValidator.Struct(project); err != nil {
		return nil, nil, fmt.Errorf("validate project manifest: %w", err)
	}
	if err := structValidator.Struct(org); err != nil {
		return nil, nil, fmt.Errorf("validate org chart: %w", err)
	}

	issues := append(LintProject(project), LintOrgChart(org)...)
	for _, iss := range issues {
		if iss.Severity == "error" {
			return nil, issues, fmt.Errorf("config lint error [%s]: %s (%s)", iss.Rule, iss.Message, iss.Path)
		}
		l.logger.Warn("config lint warning", slog.String("rule", iss.Rule), slog.String("message", iss.Message), slog.String("path", iss.Path))
	}

	return &Loaded{Project: project, OrgChart: org}, issues, nil
}

func (l *Loader) loadProject() (*Project, error) {
	path := filepath.Join(l.root, ProjectManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := &Project{SLA: SLA{
		DefaultMaxInProgressMs:  int64(DefaultMaxInProgress / 1e6),
		ResearchMaxInProgressMs: int64(ResearchMaxInProgress / 1e6),
		RateLimitMinutes:        DefaultRateLimitMins,
	}}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

func (l *Loader) loadOrgChart() (*OrgChart, error) {
	path := filepath.Join(l.root, OrgChartFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	o := &OrgChart{}
	if err := yaml.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return o, nil
}

// applyEnvOverrides layers AOF_PROJECT_OWNER / AOF_SLA_RATE_LIMIT_MINUTES
// over the file-loaded project manifest, matching the teacher's
// defaults-then-file-then-env precedence.
func (l *Loader) applyEnvOverrides(p *Project) {
	if v := os.Getenv("AOF_PROJECT_OWNER"); v != "" {
		p.Owner = v
	}
	if v := os.Getenv("AOF_SLA_RATE_LIMIT_MINUTES"); v != "" {
		var mins int
		if _, err := fmt.Sscanf(v, "%d", &mins); err == nil && mins > 0 {
			p.SLA.RateLimitMinutes = mins
		}
	}
}

// Watch invokes onChange whenever project.yaml or org/org-chart.yaml is
// written or created. It runs until stop is closed or an unrecoverable
// watcher error occurs. No CLI command calls it.
func (l *Loader) Watch(stop <-chan struct{}, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.root); err != nil {
		return fmt.Errorf("watch %s: %w", l.root, err)
	}
	orgDir := filepath.Join(l.root, "org")
	if err := watcher.Add(orgDir); err != nil {
		l.logger.Debug("org chart directory not watchable", slog.String("path", orgDir), slog.String("error", err.Error()))
	}

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			base := filepath.Base(ev.Name)
			if base != "project.yaml" && base != "org-chart.yaml" {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			onChange()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// SaveProject atomically writes the project manifest back, used by
// `config set`.
func SaveProject(root string, p *Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal project manifest: %w", err)
	}
	path := filepath.Join(root, ProjectManifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp project manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename project manifest into place: %w", err)
	}
	return nil
}
