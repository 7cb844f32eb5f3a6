// Package config provides the focuscrawl configuration: defaults, validation,
// the optional YAML project file and XDG directory helpers.
package config
