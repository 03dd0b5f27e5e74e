// Package config loads the configcache command settings from multiple sources
// (YAML settings file, environment variables, CLI flags) with precedence:
// CLI flags > Environment variables > YAML settings > Defaults.
package config
