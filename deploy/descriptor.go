/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package deploy declares the hosting application for the web client and
// creates it on AWS Amplify.
package deploy

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultOwner      = "ASUCICREPO"
	DefaultRepository = "lie-detector-app"
	DefaultAppName    = "AppNamePortal"
	DefaultSecretName = "lie-detector-access-token-cdk"
	DefaultBranch     = "main"

	APIURLVariable = "VITE_API_URL"
)

var ErrMissingToken = errors.New("GitHub token must be provided. Use --github-token=<your-token> (or LIEDETECTOR_GITHUB_TOKEN) when deploying")

// Input carries the values supplied on the command line.
type Input struct {
	GitHubToken string
	GitHubOwner string
	Repository  string
	AppName     string
	SecretName  string
	ViteAPIURL  string
}

type Descriptor struct {
	Secret      Secret            `yaml:"secret"`
	App         App               `yaml:"app"`
	Branches    []string          `yaml:"branches"`
	Environment map[string]string `yaml:"environment,omitempty"`
}

type Secret struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Value       string `yaml:"-"`
}

type App struct {
	Name       string     `yaml:"name"`
	Repository string     `yaml:"repository"`
	AutoBranch AutoBranch `yaml:"autoBranchCreation"`
	BuildSpec  BuildSpec  `yaml:"buildSpec"`
}

// AutoBranch makes Amplify create a branch environment for every pushed
// branch matching Patterns, behind basic auth.
type AutoBranch struct {
	Patterns                   []string `yaml:"patterns"`
	BasicAuthUser              string   `yaml:"basicAuthUser"`
	PullRequestEnvironmentName string   `yaml:"pullRequestEnvironmentName"`
}

type BuildSpec struct {
	Version  string   `yaml:"version"`
	Frontend Frontend `yaml:"frontend"`
}

type Frontend struct {
	Phases    Phases    `yaml:"phases"`
	Artifacts Artifacts `yaml:"artifacts"`
	Cache     Cache     `yaml:"cache"`
}

type Phases struct {
	PreBuild Commands `yaml:"preBuild"`
	Build    Commands `yaml:"build"`
}

type Commands struct {
	Commands []string `yaml:"commands"`
}

type Artifacts struct {
	BaseDirectory string   `yaml:"baseDirectory"`
	Files         []string `yaml:"files"`
}

type Cache struct {
	Paths []string `yaml:"paths"`
}

// Build validates in and fills in defaults. It fails before doing anything
// else when no token is given.
func Build(in Input) (Descriptor, error) {
	if strings.TrimSpace(in.GitHubToken) == "" {
		return Descriptor{}, ErrMissingToken
	}

	owner := orDefault(in.GitHubOwner, DefaultOwner)
	repo := orDefault(in.Repository, DefaultRepository)

	d := Descriptor{
		Secret: Secret{
			Name:        orDefault(in.SecretName, DefaultSecretName),
			Description: "GitHub Personal Access Token for Amplify",
			Value:       in.GitHubToken,
		},
		App: App{
			Name:       orDefault(in.AppName, DefaultAppName),
			Repository: fmt.Sprintf("https://github.com/%s/%s", owner, repo),
			AutoBranch: AutoBranch{
				Patterns:                   []string{"*"},
				BasicAuthUser:              "auto-user",
				PullRequestEnvironmentName: "staging",
			},
			BuildSpec: BuildSpec{
				Version: "1.0",
				Frontend: Frontend{
					Phases: Phases{
						PreBuild: Commands{Commands: []string{"cd frontend", "npm ci"}},
						Build:    Commands{Commands: []string{"npm run build"}},
					},
					Artifacts: Artifacts{
						BaseDirectory: "frontend/dist",
						Files:         []string{"**/*"},
					},
					Cache: Cache{
						Paths: []string{"frontend/node_modules/**/*"},
					},
				},
			},
		},
		Branches: []string{DefaultBranch},
	}

	if url := strings.TrimSpace(in.ViteAPIURL); url != "" {
		d.Environment = map[string]string{APIURLVariable: url}
	}

	return d, nil
}

// BuildSpecYAML renders the build spec the way Amplify expects it.
func (d Descriptor) BuildSpecYAML() (string, error) {
	out, err := yaml.Marshal(d.App.BuildSpec)
	if err != nil {
		return "", fmt.Errorf("encode build spec: %w", err)
	}
	return string(out), nil
}

// YAML renders the whole descriptor, without secret values.
func (d Descriptor) YAML() (string, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode descriptor: %w", err)
	}
	return string(out), nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
