/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/liedetector/deploy"
	"github.com/spf13/cobra"
)

var newDeployClients = deploy.NewClients

func runDeploy(cmd *cobra.Command, cfg *Config) error {
	dc := cfg.deploy

	d, err := deploy.Build(deploy.Input{
		GitHubToken: dc.githubToken,
		GitHubOwner: dc.githubOwner,
		Repository:  dc.repository,
		AppName:     dc.appName,
		SecretName:  dc.secretName,
		ViteAPIURL:  dc.viteAPIURL,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if dc.dryRun {
		doc, err := d.YAML()
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, doc)
		return err
	}

	ctx := cmd.Context()

	clients, err := newDeployClients(ctx, dc.region)
	if err != nil {
		return err
	}

	logf(cfg, "DEPLOY: Creating %s from %s", d.App.Name, d.App.Repository)

	startTime := time.Now()

	result, err := deploy.Apply(ctx, d, clients)
	if err != nil {
		return err
	}

	logf(cfg, "DEPLOY: Created %s in %s", result.AppID, time.Since(startTime).Round(time.Millisecond))

	fmt.Fprintf(out, "app:      %s\n", result.AppID)
	if result.DefaultDomain != "" {
		fmt.Fprintf(out, "domain:   %s\n", result.DefaultDomain)
	}
	fmt.Fprintf(out, "branches: %s\n", strings.Join(result.Branches, ", "))
	fmt.Fprintf(out, "secret:   %s\n", result.SecretARN)
	fmt.Fprintf(out, "auth:     %s\n", result.BasicAuthSecretARN)

	return nil
}
