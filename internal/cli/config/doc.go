// Package config defines the dinegate-cli configuration.
//
// Values come from ~/.dinegate/cli.yaml, DINEGATE_* environment
// variables and command-line flags, merged by confloader:
//
//	api:
//	  base_url: http://localhost:8080/api
//	  timeout: 10s
//	auth:
//	  poll_interval: 60s
//	  warning_threshold: 15m
//	storage:
//	  engine: badger
//	  passphrase: "..."
package config
