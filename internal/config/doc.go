// Package config loads the genqueue settings from defaults, an optional
// config file and GENQUEUE_-prefixed environment variables, then validates
// them before any component is built.
package config
