// Package secrets loads the weather API key once at process start.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"
)

// DefaultParameterName is the SSM parameter holding the API key.
const DefaultParameterName = "OWAPIkey"

// ErrMissingAPIKey is returned when a source has no key.
var ErrMissingAPIKey = errors.New("weather API key not found")

// Source returns the weather API key.
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// SSMAPI is the subset of the SSM client used by SSMSource.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads a SecureString parameter with decryption.
type SSMSource struct {
	api  SSMAPI
	name string
}

func NewSSMSource(api SSMAPI, name string) *SSMSource {
	if name == "" {
		name = DefaultParameterName
	}
	return &SSMSource{api: api, name: name}
}

func (s *SSMSource) APIKey(ctx context.Context) (string, error) {
	out, err := s.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ssm: get parameter %s: %w", s.name, err)
	}
	if out.Parameter == nil || strings.TrimSpace(aws.ToString(out.Parameter.Value)) == "" {
		return "", fmt.Errorf("ssm: parameter %s: %w", s.name, ErrMissingAPIKey)
	}
	return strings.TrimSpace(aws.ToString(out.Parameter.Value)), nil
}

// EnvSource reads the key from an environment variable.
type EnvSource struct {
	Var string
}

func (s EnvSource) APIKey(ctx context.Context) (string, error) {
	v := strings.TrimSpace(os.Getenv(s.Var))
	if v == "" {
		return "", fmt.Errorf("env %s: %w", s.Var, ErrMissingAPIKey)
	}
	return v, nil
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// FileSource reads weather_api_key from a YAML secrets file.
type FileSource struct {
	Path string
}

func (s FileSource) APIKey(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("secrets file %s: %w", s.Path, ErrMissingAPIKey)
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	if strings.TrimSpace(sec.WeatherAPIKey) == "" {
		return "", fmt.Errorf("secrets file %s: %w", s.Path, ErrMissingAPIKey)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// Chain tries each source in order and returns the first key found. Errors other than
// ErrMissingAPIKey stop the chain.
type Chain []Source

func (c Chain) APIKey(ctx context.Context) (string, error) {
	for _, s := range c {
		key, err := s.APIKey(ctx)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrMissingAPIKey) {
			return "", err
		}
	}
	return "", ErrMissingAPIKey
}
