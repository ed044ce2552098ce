package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// PostgreSQL
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:""`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"fern"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// SEC EDGAR
	SecEdgarUserAgent   string        `env:"SEC_EDGAR_USER_AGENT" env-default:""`
	SecMaxRequestRate   float64       `env:"SEC_MAX_REQUEST_RATE" env-default:"10"`
	SecRequestBurst     int           `env:"SEC_REQUEST_BURST" env-default:"1"`
	SecRequestTimeout   time.Duration `env:"SEC_REQUEST_TIMEOUT" env-default:"30s"`
	SecRetryMaxAttempts int           `env:"SEC_RETRY_MAX_ATTEMPTS" env-default:"3"`

	// Filing selection
	Sec10KLookback       int  `env:"SEC_10K_LOOKBACK" env-default:"2"`
	Sec10QLookback       int  `env:"SEC_10Q_LOOKBACK" env-default:"8"`
	SecIncludeAmendments bool `env:"SEC_INCLUDE_AMENDMENTS" env-default:"true"`

	// Artifact storage
	StorageBasePath string `env:"SEC_STORAGE_BASE_PATH" env-default:"data/filings"`

	// Parse pipeline
	ParserVersion        string        `env:"SEC_PARSER_VERSION" env-default:"v0"`
	ParseMaxAttempts     int           `env:"SEC_PARSE_MAX_ATTEMPTS" env-default:"3"`
	ParseWorkerCount     int           `env:"PARSE_WORKER_COUNT" env-default:"4"`
	ParsePollInterval    time.Duration `env:"PARSE_POLL_INTERVAL" env-default:"5s"`
	ParseLockGracePeriod time.Duration `env:"PARSE_LOCK_GRACE_PERIOD" env-default:"10m"`

	// Freshness
	RefreshTTLHours int `env:"REFRESH_TTL_HOURS" env-default:"24"`

	// Redis (advisory duplicate-call suppression)
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"filing-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Tracing
	TracingEnabled      bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingOTLPEndpoint string `env:"TRACING_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TracingOTLPProtocol string `env:"TRACING_OTLP_PROTOCOL" env-default:"grpc"`
}
