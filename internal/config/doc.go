// Package config loads the loader's YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as the database password can stay out of the file.
package config
