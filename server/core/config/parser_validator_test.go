package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/greenlightci/greenlight/server/core/config"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	. "github.com/greenlightci/greenlight/testing"
)

// ciWorkflow is a typical node build pipeline.
var ciWorkflow = `name: CI

on:
  push:
    branches: [main]
  pull_request:
    branches: [main]

jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Set up Node
        uses: actions/setup-node@v4
        with:
          node-version: 20
          cache: npm
      - name: Set up uv
        uses: astral-sh/setup-uv@v5
        with:
          version: ">=0.5.0"
      - name: Install dependencies
        run: npm ci
      - name: Build
        run: npm run build
`

func TestHasWorkflows_DirDoesNotExist(t *testing.T) {
	r := config.ParserValidator{}
	exists, err := r.HasWorkflows("/not/exist", valid.DefaultWorkflowsPath)
	Ok(t, err)
	Equals(t, false, exists)
}

func TestHasWorkflows_NoWorkflowFiles(t *testing.T) {
	tmpDir, cleanup := TempDir(t)
	defer cleanup()
	workflowsDir := filepath.Join(tmpDir, ".github", "workflows")
	Ok(t, os.MkdirAll(workflowsDir, 0700))
	Ok(t, os.WriteFile(filepath.Join(workflowsDir, "README.md"), []byte("not a workflow"), 0600))

	r := config.ParserValidator{}
	exists, err := r.HasWorkflows(tmpDir, valid.DefaultWorkflowsPath)
	Ok(t, err)
	Equals(t, false, exists)
}

func TestHasWorkflows_FindsYmlAndYaml(t *testing.T) {
	for _, filename := range []string{"ci.yml", "ci.yaml"} {
		t.Run(filename, func(t *testing.T) {
			tmpDir, cleanup := TempDir(t)
			defer cleanup()
			workflowsDir := filepath.Join(tmpDir, ".github", "workflows")
			Ok(t, os.MkdirAll(workflowsDir, 0700))
			Ok(t, os.WriteFile(filepath.Join(workflowsDir, filename), []byte(ciWorkflow), 0600))

			r := config.ParserValidator{}
			exists, err := r.HasWorkflows(tmpDir, valid.DefaultWorkflowsPath)
			Ok(t, err)
			Equals(t, true, exists)
		})
	}
}

func TestParseWorkflowData(t *testing.T) {
	r := config.ParserValidator{}
	workflow, err := r.ParseWorkflowData([]byte(ciWorkflow), ".github/workflows/ci.yml")
	Ok(t, err)

	Equals(t, valid.Workflow{
		Name: "CI",
		Path: ".github/workflows/ci.yml",
		On: valid.Triggers{
			Push: &valid.PushTrigger{
				Branches: []string{"main"},
			},
			PullRequest: &valid.PullRequestTrigger{
				Branches: []string{"main"},
				Types:    []string{"opened", "synchronize", "reopened"},
			},
		},
		Jobs: []valid.Job{
			{
				ID:     "build",
				Name:   "build",
				RunsOn: []string{"ubuntu-latest"},
				Steps: []valid.Step{
					{
						StepName:    valid.CheckoutStepName,
						Description: "actions/checkout@v4",
					},
					{
						StepName:    valid.SetupNodeStepName,
						Description: "Set up Node",
						With: map[string]string{
							"node-version": "20",
							"cache":        "npm",
						},
					},
					{
						StepName:    valid.SetupUvStepName,
						Description: "Set up uv",
						With: map[string]string{
							"version": ">=0.5.0",
						},
					},
					{
						StepName:    valid.RunStepName,
						Description: "Install dependencies",
						RunCommand:  "npm ci",
					},
					{
						StepName:    valid.RunStepName,
						Description: "Build",
						RunCommand:  "npm run build",
					},
				},
			},
		},
	}, workflow)
}

// We only have a few invalid yaml cases because we assume the yaml library
// to be well tested.
func TestParseWorkflowData_InvalidYAML(t *testing.T) {
	cases := []struct {
		description string
		input       string
		expErr      string
	}{
		{
			"random characters",
			"slkjds",
			"yaml: unmarshal errors:\n  line 1: cannot unmarshal !!str `slkjds` into raw.Workflow",
		},
		{
			"just a colon",
			":",
			"yaml: did not find expected key",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			r := config.ParserValidator{}
			_, err := r.ParseWorkflowData([]byte(c.input), "ci.yml")
			ErrContains(t, c.expErr, err)
		})
	}
}

func TestParseWorkflowData_Invalid(t *testing.T) {
	cases := []struct {
		description string
		input       string
		expErr      string
	}{
		{
			description: "unknown key rejected",
			input: `
on: push
jobs:
  build:
    steps:
      - run: make
concurrency: 1
`,
			expErr: "field concurrency not found in type raw.Workflow",
		},
		{
			description: "no triggers",
			input: `
jobs:
  build:
    steps:
      - run: make
`,
			expErr: "on: a workflow must declare at least one trigger under 'on'.",
		},
		{
			description: "no jobs",
			input: `
on: push
`,
			expErr: "jobs: a workflow must declare at least one job.",
		},
		{
			description: "unsupported event",
			input: `
on: [push, workflow_dispatch]
jobs:
  build:
    steps:
      - run: make
`,
			expErr: "unsupported event \"workflow_dispatch\"",
		},
		{
			description: "job without steps",
			input: `
on: push
jobs:
  build:
    runs-on: ubuntu-latest
`,
			expErr: "steps: a job must declare at least one step.",
		},
		{
			description: "needs referencing undeclared job",
			input: `
on: push
jobs:
  deploy:
    needs: build
    steps:
      - run: make deploy
`,
			expErr: "job \"deploy\" needs undeclared job \"build\"",
		},
		{
			description: "needs cycle",
			input: `
on: push
jobs:
  a:
    needs: b
    steps:
      - run: echo a
  b:
    needs: a
    steps:
      - run: echo b
`,
			expErr: "cycle in job dependencies",
		},
		{
			description: "invalid cron",
			input: `
on:
  schedule:
    - cron: "blah"
`,
			expErr: "parsing cron \"blah\"",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			r := config.ParserValidator{}
			_, err := r.ParseWorkflowData([]byte(c.input), "ci.yml")
			ErrContains(t, c.expErr, err)
		})
	}
}

func TestParseWorkflowsDir_SkipsBrokenFiles(t *testing.T) {
	tmpDir, cleanup := TempDir(t)
	defer cleanup()
	workflowsDir := filepath.Join(tmpDir, ".github", "workflows")
	Ok(t, os.MkdirAll(workflowsDir, 0700))
	Ok(t, os.WriteFile(filepath.Join(workflowsDir, "broken.yml"), []byte("on: [nope]"), 0600))
	Ok(t, os.WriteFile(filepath.Join(workflowsDir, "ci.yml"), []byte(ciWorkflow), 0600))

	r := config.ParserValidator{}
	workflows, err := r.ParseWorkflowsDir(tmpDir, valid.DefaultWorkflowsPath)

	ErrContains(t, "parsing .github/workflows/broken.yml", err)
	Equals(t, 1, len(workflows))
	Equals(t, "CI", workflows[0].Name)
}

func TestParseGlobalCfg_NotExist(t *testing.T) {
	r := config.ParserValidator{}
	_, err := r.ParseGlobalCfg("/not/exist", valid.NewGlobalCfg("/data"))
	ErrContains(t, "unable to read /not/exist file", err)
}

func TestParseGlobalCfg_Empty(t *testing.T) {
	tmpDir, cleanup := TempDir(t)
	defer cleanup()
	path := filepath.Join(tmpDir, "config.yaml")
	Ok(t, os.WriteFile(path, nil, 0600))

	r := config.ParserValidator{}
	_, err := r.ParseGlobalCfg(path, valid.NewGlobalCfg("/data"))
	ErrContains(t, "was empty", err)
}

func TestParseGlobalCfg_Overlay(t *testing.T) {
	tmpDir, cleanup := TempDir(t)
	defer cleanup()
	path := filepath.Join(tmpDir, "config.yaml")
	Ok(t, os.WriteFile(path, []byte(`
shell: bash
status-name: ci/greenlight
max-parallel-jobs: 8
repos:
  - id: github.com/owner/repo
    checkout-depth: 50
toolchains:
  node:
    default-version: 20.17.0
metrics:
  statsd:
    host: 127.0.0.1
    port: "8125"
`), 0600))

	r := config.ParserValidator{}
	cfg, err := r.ParseGlobalCfg(path, valid.NewGlobalCfg("/data"))
	Ok(t, err)

	Equals(t, "bash", cfg.Shell)
	Equals(t, "ci/greenlight", cfg.StatusName)
	Equals(t, 8, cfg.MaxParallelJobs)
	Equals(t, "20.17.0", cfg.Toolchains["node"].DefaultVersion)
	Equals(t, &valid.Statsd{Host: "127.0.0.1", Port: "8125"}, cfg.Metrics.Statsd)

	// the defaults row stays first, the override applies on top
	settings := cfg.RepoSettings("github.com/owner/repo")
	Equals(t, 50, settings.CheckoutDepth)
	Equals(t, valid.DefaultWorkflowsPath, settings.WorkflowsPath)
	Equals(t, valid.DefaultCheckoutDepth, cfg.RepoSettings("github.com/other/repo").CheckoutDepth)
}

func TestParseGlobalCfg_Invalid(t *testing.T) {
	cases := []struct {
		description string
		input       string
		expErr      string
	}{
		{
			description: "bad statsd host",
			input: `
metrics:
  statsd:
    host: "not a host!"
    port: "8125"
`,
			expErr: "must be a valid IP address or DNS name",
		},
		{
			description: "repo id regex",
			input: `
repos:
  - id: /(/
`,
			expErr: "parsing: /(/",
		},
		{
			description: "bad toolchain release",
			input: `
toolchains:
  node:
    releases: ["not.a.version.x"]
`,
			expErr: "parsing release \"not.a.version.x\"",
		},
		{
			description: "unknown job store",
			input: `
persistence:
  job-store: missing
`,
			expErr: "job-store: must be a valid value",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			tmpDir, cleanup := TempDir(t)
			defer cleanup()
			path := filepath.Join(tmpDir, "config.yaml")
			Ok(t, os.WriteFile(path, []byte(c.input), 0600))

			r := config.ParserValidator{}
			_, err := r.ParseGlobalCfg(path, valid.NewGlobalCfg("/data"))
			ErrContains(t, c.expErr, err)
		})
	}
}
