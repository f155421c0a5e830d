package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a fake ssmAPI that records the last input.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func paramOut(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("/llmrelay/openai-api-key"),
		Value: aws.String(value),
		Type:  types.ParameterTypeSecureString,
	}}
}

func TestParameterStore_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: paramOut("sk-from-ssm")}
	store, err := NewParameterStore(api)
	require.NoError(t, err)

	v, err := store.GetParameter(context.Background(), " /llmrelay/openai-api-key ")
	require.NoError(t, err)
	require.Equal(t, "sk-from-ssm", v)
	require.Equal(t, "/llmrelay/openai-api-key", aws.ToString(api.lastIn.Name))
	require.True(t, aws.ToBool(api.lastIn.WithDecryption))
}

func TestParameterStore_Errors(t *testing.T) {
	_, err := NewParameterStore(nil)
	require.Error(t, err)

	_, err = (&ParameterStore{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")

	store, err := NewParameterStore(&fakeAPI{})
	require.NoError(t, err)
	_, err = store.GetParameter(context.Background(), "  ")
	require.ErrorContains(t, err, "required")

	store, err = NewParameterStore(&fakeAPI{getErr: errors.New("boom")})
	require.NoError(t, err)
	_, err = store.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "boom")

	store, err = NewParameterStore(&fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{}}})
	require.NoError(t, err)
	_, err = store.GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "missing value")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "empty source", cfg: Config{}},
		{name: "ssm with parameter", cfg: Config{Source: SourceSSM, SSMParameter: "/k"}},
		{name: "ssm without parameter", cfg: Config{Source: SourceSSM}, wantErr: true},
		{name: "unknown source", cfg: Config{Source: "vault"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

type stubGetter struct {
	value string
	err   error
}

func (s stubGetter) GetParameter(context.Context, string) (string, error) {
	return s.value, s.err
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	key, err := Resolve(ctx, DefaultConfig(), "  sk-env  ", nil)
	require.NoError(t, err)
	require.Equal(t, "sk-env", key)

	_, err = Resolve(ctx, DefaultConfig(), "", nil)
	require.ErrorIs(t, err, ErrMissingCredential)

	ssmCfg := Config{Source: SourceSSM, SSMParameter: "/k"}
	key, err = Resolve(ctx, ssmCfg, "sk-env-ignored", stubGetter{value: "sk-ssm"})
	require.NoError(t, err)
	require.Equal(t, "sk-ssm", key)

	_, err = Resolve(ctx, ssmCfg, "", nil)
	require.ErrorContains(t, err, "not available")

	_, err = Resolve(ctx, ssmCfg, "", stubGetter{err: errors.New("denied")})
	require.ErrorContains(t, err, "denied")

	_, err = Resolve(ctx, ssmCfg, "", stubGetter{value: " "})
	require.ErrorIs(t, err, ErrMissingCredential)
}
