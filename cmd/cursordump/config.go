package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vlab-research/client-cursor-stream/postgres"
)

// config is what cursordump reads from its --config file. Flags given on the
// command line win over values from the file.
type config struct {
	ConnectionString string `yaml:"connection_string"`
	TableName        string `yaml:"table_name"`
	BatchSize        int    `yaml:"batch_size"`
	Buffer           int    `yaml:"buffer"`
	From             int64  `yaml:"from"`
	Limit            int    `yaml:"limit"`
	Debug            bool   `yaml:"debug"`
}

func defaultConfig() config {
	return config{
		ConnectionString: "host=localhost port=5432 user=test password=test dbname=cursorstream_test sslmode=disable",
		TableName:        postgres.DefaultTableName,
		BatchSize:        postgres.DefaultBatchSize,
		Buffer:           64,
	}
}

func readConfigFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %v", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %q: %v", path, err)
	}
	return nil
}

func (c config) validate() error {
	switch {
	case c.ConnectionString == "":
		return fmt.Errorf("a connection string is required")
	case c.Buffer < 0:
		return fmt.Errorf("buffer must not be negative, got %d", c.Buffer)
	case c.Limit < 0:
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	case c.From < 0:
		return fmt.Errorf("from must not be negative, got %d", c.From)
	}
	return c.postgres().Validate()
}

func (c config) postgres() postgres.Config {
	return postgres.Config{
		ConnectionString: c.ConnectionString,
		TableName:        c.TableName,
		BatchSize:        c.BatchSize,
	}
}
