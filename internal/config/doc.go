// Package config handles YAML and TOML configuration loading with environment
// variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation, typically api.app_token: ${SOCKETMODE_APP_TOKEN}. Files with
// a .toml extension are parsed as TOML.
package config
