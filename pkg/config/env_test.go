package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	DynamoDB DynamoDB   `koanf:"dynamodb"`
	Http     HttpServer `koanf:"http"`
}

func TestReadFromEnv(t *testing.T) {
	t.Setenv("TESTSVC_DYNAMODB__TABLE", "AwsDataMeshSubscriptions")
	t.Setenv("TESTSVC_DYNAMODB__REGION", "eu-west-1")
	t.Setenv("TESTSVC_HTTP__ADDRESS", "localhost:8000")

	var c testConfig
	require.NoError(t, ReadFromEnv("testsvc", nil, &c))

	assert.Equal(t, "AwsDataMeshSubscriptions", c.DynamoDB.Table)
	assert.Equal(t, "eu-west-1", c.DynamoDB.Region)
	assert.Equal(t, "localhost:8000", c.Http.Address)
}

func TestReadFromEnvDefaults(t *testing.T) {
	def := testConfig{
		DynamoDB: DynamoDB{Region: "us-east-1", Table: "AwsDataMeshSubscriptions"},
		Http:     HttpServer{Address: "localhost:8000"},
	}
	t.Setenv("TESTSVC_DYNAMODB__REGION", "eu-central-1")

	var c testConfig
	require.NoError(t, ReadFromEnv("testsvc", def, &c))

	assert.Equal(t, "eu-central-1", c.DynamoDB.Region)
	assert.Equal(t, "AwsDataMeshSubscriptions", c.DynamoDB.Table)
}
