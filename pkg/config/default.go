package config

// DynamoDB points a tracker at its subscription table. Endpoint is only set
// for local development and tests.
type DynamoDB struct {
	Region   string `koanf:"region"`
	Table    string `koanf:"table"`
	Endpoint string `koanf:"endpoint"`
}

type HttpServer struct {
	Address string `koanf:"address"`
}

// Mesh identifies the central data mesh account every gateway operates
// against.
type Mesh struct {
	AccountID string `koanf:"account_id"`
	Region    string `koanf:"region"`
}
