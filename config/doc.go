// Package config loads coordkit configuration with Viper.
//
// LoadConfig reads a YAML file, then a .env file, then the process
// environment. Every mapstructure key of the target struct can be overridden
// by an environment variable named after its dotted path, upper-cased with
// dots replaced by underscores (redis.pool_size -> REDIS_POOL_SIZE), with an
// optional prefix:
//
//	var cfg kit.Config
//	err := config.LoadConfig("checkout", &cfg, config.WithEnvPrefix("COORD"))
package config
