package secret

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecretsManager struct {
	values map[string]string
}

func (m *mockSecretsManager) GetSecretValue(_ context.Context, input *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	v, ok := m.values[aws.ToString(input.SecretId)]
	if !ok {
		return nil, &smNotFound{}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

type smNotFound struct{}

func (*smNotFound) Error() string { return "ResourceNotFoundException" }

func TestResolve_Literal(t *testing.T) {
	r := NewResolver()
	v, err := r.Resolve(context.Background(), "ghp_plaintoken")
	require.NoError(t, err)
	assert.Equal(t, "ghp_plaintoken", v)
}

func TestResolve_Empty(t *testing.T) {
	r := NewResolver()
	v, err := r.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestResolve_Env(t *testing.T) {
	t.Setenv("BATON_TEST_TOKEN", "from-env")

	r := NewResolver()
	v, err := r.Resolve(context.Background(), "env:BATON_TEST_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestResolve_EnvUnset(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(context.Background(), "env:BATON_TEST_DEFINITELY_UNSET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not set")
}

func TestResolve_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	r := NewResolver()
	v, err := r.Resolve(context.Background(), "file:"+path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
}

func TestResolve_FileMissing(t *testing.T) {
	r := NewResolver()
	_, err := r.Resolve(context.Background(), "file:/nonexistent/token")
	assert.Error(t, err)
}

func TestResolve_SecretsManager(t *testing.T) {
	mock := &mockSecretsManager{values: map[string]string{"prod/jenkins": "from-sm"}}
	r := NewResolver(WithSecretsManagerClient(mock))

	v, err := r.Resolve(context.Background(), "aws-sm:prod/jenkins")
	require.NoError(t, err)
	assert.Equal(t, "from-sm", v)
}

func TestResolve_SecretsManagerMissing(t *testing.T) {
	mock := &mockSecretsManager{values: map[string]string{}}
	r := NewResolver(WithSecretsManagerClient(mock))

	_, err := r.Resolve(context.Background(), "aws-sm:prod/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prod/missing")
}
