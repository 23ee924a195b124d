package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	input *ssm.GetParameterInput
	value string
	err   error
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: aws.String(f.value)}}, nil
}

func TestSSMSource_APIKey(t *testing.T) {
	api := &fakeSSM{value: " secret-key "}
	key, err := NewSSMSource(api, "").APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey() error = %v", err)
	}
	if key != "secret-key" {
		t.Errorf("APIKey() = %q, want secret-key", key)
	}
	if *api.input.Name != DefaultParameterName || !*api.input.WithDecryption {
		t.Errorf("input = %+v, want default name with decryption", api.input)
	}
}

func TestSSMSource_Empty(t *testing.T) {
	_, err := NewSSMSource(&fakeSSM{value: ""}, "p").APIKey(context.Background())
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("APIKey() error = %v, want ErrMissingAPIKey", err)
	}
}

func TestSSMSource_Error(t *testing.T) {
	api := &fakeSSM{err: errors.New("AccessDenied")}
	_, err := NewSSMSource(api, "p").APIKey(context.Background())
	if !errors.Is(err, api.err) {
		t.Errorf("APIKey() error = %v, want wrapped AccessDenied", err)
	}
}

func TestEnvSource_APIKey(t *testing.T) {
	t.Setenv("TEST_WEATHER_KEY", "from-env")
	key, err := EnvSource{Var: "TEST_WEATHER_KEY"}.APIKey(context.Background())
	if err != nil || key != "from-env" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}
	t.Setenv("TEST_WEATHER_KEY", "")
	if _, err := (EnvSource{Var: "TEST_WEATHER_KEY"}).APIKey(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("APIKey() error = %v, want ErrMissingAPIKey", err)
	}
}

func writeSecretsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileSource_APIKey(t *testing.T) {
	path := writeSecretsFile(t, "weather_api_key: key-from-secrets-file\n")
	key, err := FileSource{Path: path}.APIKey(context.Background())
	if err != nil || key != "key-from-secrets-file" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}
}

func TestFileSource_InvalidYAML(t *testing.T) {
	path := writeSecretsFile(t, "not valid: yaml: [[[")
	_, err := FileSource{Path: path}.APIKey(context.Background())
	if err == nil || errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("APIKey() error = %v, want parse error", err)
	}
}

func TestChain_APIKey(t *testing.T) {
	t.Setenv("TEST_WEATHER_KEY", "")
	path := writeSecretsFile(t, "weather_api_key: file-key\n")
	c := Chain{EnvSource{Var: "TEST_WEATHER_KEY"}, FileSource{Path: path}}
	key, err := c.APIKey(context.Background())
	if err != nil || key != "file-key" {
		t.Errorf("APIKey() = %q, %v", key, err)
	}

	missing := Chain{EnvSource{Var: "TEST_WEATHER_KEY"}, FileSource{Path: filepath.Join(t.TempDir(), "none.yaml")}}
	if _, err := missing.APIKey(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("APIKey() error = %v, want ErrMissingAPIKey", err)
	}
}
