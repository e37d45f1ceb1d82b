package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ReadFromEnv fills cnf from environment variables, layered over defaultCnf.
// Variables are prefixed with the service name and use double underscores for
// nesting: DATAMESH_DYNAMODB__TABLE maps to dynamodb.table.
func ReadFromEnv(prefix string, defaultCnf any, cnf any) error {
	k := koanf.New(".")

	if defaultCnf != nil {
		if err := k.Load(structs.Provider(defaultCnf, "koanf"), nil); err != nil {
			return err
		}
	}

	envPrefix := strings.ToUpper(prefix) + "_"
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return err
	}

	return k.Unmarshal("", cnf)
}
