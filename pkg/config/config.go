package config

import (
	"github.com/docbed/docbed/engine/embedder"
	"github.com/docbed/docbed/engine/infra/store"
	"github.com/docbed/docbed/engine/pipeline"
	"github.com/docbed/docbed/engine/server"
	"github.com/docbed/docbed/engine/split"
	"github.com/docbed/docbed/engine/summarizer"
	"github.com/docbed/docbed/engine/vectordb"
)

// Config aggregates every component's settings. Precedence is defaults,
// then the YAML file, then DOCBED_* environment variables.
type Config struct {
	Log        LogConfig               `koanf:"log"`
	Server     server.Config           `koanf:"server"`
	Database   store.Config            `koanf:"database"`
	Temporal   pipeline.TemporalConfig `koanf:"temporal"`
	Embedder   embedder.Config         `koanf:"embedder"`
	Summarizer summarizer.Config       `koanf:"summarizer"`
	VectorDB   vectordb.Config         `koanf:"vectordb"`
	Split      split.Config            `koanf:"split"`
}

// LogConfig holds the logger settings the CLI flags map onto.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: *server.DefaultConfig(),
		Database: store.Config{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			DBName:  "docbed",
			SSLMode: "disable",
		},
		Temporal: pipeline.TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: pipeline.TaskQueue,
		},
		VectorDB: vectordb.Config{Provider: vectordb.ProviderNone},
		Split:    split.DefaultConfig(),
	}
}
