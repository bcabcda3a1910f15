// Package config loads the configuration of a resource client.
//
// Values come from a RawLoader (a YAML file or an in-memory map), are layered
// over Default with go-config's cfgx and validated before use:
//
//	cfg, err := config.Load(ctx, config.FileLoader{Path: "client.yaml", ExpandEnv: true})
//
// A minimal file:
//
//	base_url: https://api.example.com
//	resource_path: users
//	email: service@example.com
//	password: ${SERVICE_PASSWORD}
package config
