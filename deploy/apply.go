/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package deploy

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/amplify"
	"github.com/aws/aws-sdk-go-v2/service/amplify/types"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	generatePassword = defaultPassword
)

func defaultPassword() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

type AmplifyAPI interface {
	CreateApp(ctx context.Context, in *amplify.CreateAppInput, optFns ...func(*amplify.Options)) (*amplify.CreateAppOutput, error)
	CreateBranch(ctx context.Context, in *amplify.CreateBranchInput, optFns ...func(*amplify.Options)) (*amplify.CreateBranchOutput, error)
}

type SecretsAPI interface {
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
}

type Clients struct {
	Amplify AmplifyAPI
	Secrets SecretsAPI
}

// NewClients builds SDK clients from the default credential chain. An
// empty region leaves the choice to the environment.
func NewClients(ctx context.Context, region string) (Clients, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return Clients{}, fmt.Errorf("load aws config: %w", err)
	}

	return Clients{
		Amplify: amplify.NewFromConfig(cfg),
		Secrets: secretsmanager.NewFromConfig(cfg),
	}, nil
}

// Outcome identifies what Apply created.
type Outcome struct {
	SecretARN          string
	BasicAuthSecretARN string
	AppID              string
	DefaultDomain      string
	Branches           []string
}

// Apply creates the token secret, the basic auth secret, the app and its
// branches, in that order, stopping at the first failure.
func Apply(ctx context.Context, d Descriptor, c Clients) (Outcome, error) {
	var out Outcome

	secret, err := c.Secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(d.Secret.Name),
		Description:  aws.String(d.Secret.Description),
		SecretString: aws.String(d.Secret.Value),
	})
	if err != nil {
		return out, fmt.Errorf("create secret %s: %w", d.Secret.Name, err)
	}
	out.SecretARN = aws.ToString(secret.ARN)

	password, err := generatePassword()
	if err != nil {
		return out, fmt.Errorf("generate basic auth password: %w", err)
	}

	credentials, err := json.Marshal(map[string]string{
		"username": d.App.AutoBranch.BasicAuthUser,
		"password": password,
	})
	if err != nil {
		return out, err
	}

	authName := d.App.Name + "-auto-branch-basic-auth"
	authSecret, err := c.Secrets.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(authName),
		Description:  aws.String("Basic auth credentials for automatically created branches"),
		SecretString: aws.String(string(credentials)),
	})
	if err != nil {
		return out, fmt.Errorf("create secret %s: %w", authName, err)
	}
	out.BasicAuthSecretARN = aws.ToString(authSecret.ARN)

	buildSpec, err := d.BuildSpecYAML()
	if err != nil {
		return out, err
	}

	app, err := c.Amplify.CreateApp(ctx, &amplify.CreateAppInput{
		Name:                       aws.String(d.App.Name),
		Repository:                 aws.String(d.App.Repository),
		AccessToken:                aws.String(d.Secret.Value),
		Platform:                   types.PlatformWeb,
		BuildSpec:                  aws.String(buildSpec),
		EnableAutoBranchCreation:   aws.Bool(true),
		AutoBranchCreationPatterns: d.App.AutoBranch.Patterns,
		AutoBranchCreationConfig: &types.AutoBranchCreationConfig{
			EnableAutoBuild:            aws.Bool(true),
			EnableBasicAuth:            aws.Bool(true),
			BasicAuthCredentials:       aws.String(basicAuth(d.App.AutoBranch.BasicAuthUser, password)),
			PullRequestEnvironmentName: aws.String(d.App.AutoBranch.PullRequestEnvironmentName),
		},
		EnvironmentVariables: d.Environment,
	})
	if err != nil {
		return out, fmt.Errorf("create amplify app %s: %w", d.App.Name, err)
	}
	if app.App != nil {
		out.AppID = aws.ToString(app.App.AppId)
		out.DefaultDomain = aws.ToString(app.App.DefaultDomain)
	}

	for _, branch := range d.Branches {
		_, err := c.Amplify.CreateBranch(ctx, &amplify.CreateBranchInput{
			AppId:      aws.String(out.AppID),
			BranchName: aws.String(branch),
		})
		if err != nil {
			return out, fmt.Errorf("create branch %s: %w", branch, err)
		}
		out.Branches = append(out.Branches, branch)
	}

	return out, nil
}

func basicAuth(user, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
}
