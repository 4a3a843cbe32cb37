// Package config parses and validates workflow files and the server-side
// config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/greenlightci/greenlight/server/core/config/raw"
	"github.com/greenlightci/greenlight/server/core/config/valid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// ParserValidator parses and validates workflow files and the server-side
// config file.
type ParserValidator struct{}

// HasWorkflows returns true if the repo checkout at absRepoDir contains at
// least one workflow file under workflowsPath.
func (p *ParserValidator) HasWorkflows(absRepoDir string, workflowsPath string) (bool, error) {
	files, err := p.workflowFiles(absRepoDir, workflowsPath)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// ParseWorkflowsDir parses every workflow file under workflowsPath. Files
// that fail to parse or validate don't abort the pass, their errors come
// back aggregated alongside the workflows that did parse.
func (p *ParserValidator) ParseWorkflowsDir(absRepoDir string, workflowsPath string) ([]valid.Workflow, error) {
	files, err := p.workflowFiles(absRepoDir, workflowsPath)
	if err != nil {
		return nil, err
	}

	var workflows []valid.Workflow
	var parseErrs *multierror.Error
	for _, relPath := range files {
		workflow, err := p.ParseWorkflowFile(absRepoDir, relPath)
		if err != nil {
			parseErrs = multierror.Append(parseErrs, errors.Wrapf(err, "parsing %s", relPath))
			continue
		}
		workflows = append(workflows, workflow)
	}
	return workflows, parseErrs.ErrorOrNil()
}

// ParseWorkflowFile parses and validates a single workflow file. relPath is
// relative to the repo root.
func (p *ParserValidator) ParseWorkflowFile(absRepoDir string, relPath string) (valid.Workflow, error) {
	configData, err := os.ReadFile(filepath.Join(absRepoDir, relPath)) // nolint: gosec
	if err != nil {
		return valid.Workflow{}, errors.Wrapf(err, "unable to read %s file", relPath)
	}
	return p.ParseWorkflowData(configData, relPath)
}

// ParseWorkflowData parses and validates workflow file contents.
func (p *ParserValidator) ParseWorkflowData(configData []byte, relPath string) (valid.Workflow, error) {
	var rawWorkflow raw.Workflow
	if err := yaml.UnmarshalStrict(configData, &rawWorkflow); err != nil {
		return valid.Workflow{}, err
	}

	// errors should refer to the yaml keys users wrote
	validation.ErrorTag = "yaml"
	if err := rawWorkflow.Validate(); err != nil {
		return valid.Workflow{}, err
	}
	return rawWorkflow.ToValid(relPath), nil
}

// ParseGlobalCfg parses the server-side config file at configFile, layering
// it on defaultCfg.
func (p *ParserValidator) ParseGlobalCfg(configFile string, defaultCfg valid.GlobalCfg) (valid.GlobalCfg, error) {
	configData, err := os.ReadFile(configFile) // nolint: gosec
	if err != nil {
		return valid.GlobalCfg{}, errors.Wrapf(err, "unable to read %s file", configFile)
	}
	if len(configData) == 0 {
		return valid.GlobalCfg{}, fmt.Errorf("file %s was empty", configFile)
	}

	var rawCfg raw.GlobalCfg
	if err := yaml.UnmarshalStrict(configData, &rawCfg); err != nil {
		return valid.GlobalCfg{}, err
	}

	validation.ErrorTag = "yaml"
	if err := rawCfg.Validate(); err != nil {
		return valid.GlobalCfg{}, err
	}
	return rawCfg.ToValid(defaultCfg), nil
}

// workflowFiles lists the repo-relative paths of all workflow files,
// sorted. A missing workflows dir isn't an error, the repo simply has no
// workflows.
func (p *ParserValidator) workflowFiles(absRepoDir string, workflowsPath string) ([]string, error) {
	dir := filepath.Join(absRepoDir, workflowsPath)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", workflowsPath)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		files = append(files, filepath.Join(workflowsPath, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}
