package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteKansou is the only supported listing source.
const SiteKansou = "kansou"

// Task describes one run: which listing table to pick and where downloads go.
type Task struct {
	Description string `yaml:"description" json:"description"`
	Site        string `yaml:"site" json:"site"`
	RootPath    string `yaml:"root_path" json:"root_path"`
}

// LoadTask reads a YAML task file. JSON task files parse too since YAML is a
// superset.
func LoadTask(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}
	var task Task
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parse task file %s: %w", path, err)
	}
	task.Description = strings.TrimSpace(task.Description)
	task.Site = strings.ToLower(strings.TrimSpace(task.Site))
	task.RootPath = strings.TrimSpace(task.RootPath)
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return &task, nil
}

// Validate checks that the task names a supported site and a description.
func (t *Task) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description must be set")
	}
	if t.Site != SiteKansou {
		return fmt.Errorf("task site: unsupported value %q (expected %s)", t.Site, SiteKansou)
	}
	return nil
}

// RootPathOr returns the task's root path, falling back to configured.
func (t *Task) RootPathOr(configured string) string {
	if t != nil && t.RootPath != "" {
		return t.RootPath
	}
	return configured
}
