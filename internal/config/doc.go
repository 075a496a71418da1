// Package config loads skillserver's configuration from an optional YAML
// file overlaid with environment variables (which always win), following
// the env-first posture of the external interface contract: every setting
// has a documented environment variable name and a built-in default, so the
// server boots with no configuration file at all.
//
// Environment variable expansion in the YAML file uses ${VAR_NAME} syntax,
// resolved before the file is parsed.
package config
