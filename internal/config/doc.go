// Package config loads the client configuration from a YAML file and turns
// it into a connection chain and dialer settings.
package config
