package config

import "github.com/gubaruch/Data-mesh-util/pkg/config"

type SubscriptionConfig struct {
	DynamoDB config.DynamoDB   `koanf:"dynamodb"`
	Mesh     config.Mesh       `koanf:"mesh"`
	Http     config.HttpServer `koanf:"http"`
}
