package config

import "time"

// Config is the root configuration of a region server node.
// yaml and validate tags drive parsing and validation.

type Config struct {
	Logger  LoggerConfig  `yaml:"logger" validate:"required"`
	Server  ServerConfig  `yaml:"http-server" validate:"required"`
	Region  RegionConfig  `yaml:"region" validate:"required"`
	Cluster ClusterConfig `yaml:"cluster"`
}

type ServerConfig struct {
	Port              int           `yaml:"port" validate:"required,min=1,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type RegionConfig struct {
	WALDir              string      `yaml:"wal_dir" validate:"required"`
	FlushThresholdBytes int64       `yaml:"flush_threshold" validate:"required,min=1"`
	WALChanBuffSize     int         `yaml:"wal_chan_buff_size" validate:"required,min=1"`
	Flush               FlushConfig `yaml:"flush" validate:"required"`
}

type FlushConfig struct {
	DataDir       string        `yaml:"path" validate:"required"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxRetries    int           `yaml:"max_retries" validate:"min=0"`
}

type ClusterConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ZKServers      []string      `yaml:"zk_servers"`
	RootPath       string        `yaml:"root_path"`
	LocalAddr      string        `yaml:"local_addr"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		Region: RegionConfig{
			WALDir:              "./data/wal",
			FlushThresholdBytes: 64 * 1024 * 1024,
			WALChanBuffSize:     3,
			Flush: FlushConfig{
				DataDir:       "./data",
				RetryInterval: 500 * time.Millisecond,
				MaxRetries:    3,
			},
		},
		Cluster: ClusterConfig{
			Enabled:        false,
			RootPath:       "/regiondb",
			SessionTimeout: 5 * time.Second,
		},
	}
}
