// Package resource provides a generic CRUD client for a remote collection.
//
// A Client[T] maps List, Get, Create, Update and Delete onto
// GET /P/, GET /P/{id}, POST /P/, PUT /P/{id} and DELETE /P/{id}, sending every
// call through one httpclient pipeline so credential injection and retries
// apply uniformly to all verbs.
//
// Calls never return an error. Each returns an Envelope: on success Data holds
// the decoded entity (or list) and Error is empty; on failure Error holds a
// fixed, verb-specific message, Data holds the fallback value (an empty slice
// for List, nil otherwise) and Failure holds the typed reason.
//
// # Quick Start
//
//	type User struct {
//	    ID   string `json:"id"`
//	    Name string `json:"name"`
//	}
//
//	cfg, err := config.Load(ctx, config.FileLoader{Path: "users.yaml"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	users, err := resource.NewFromConfig[User](cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	env := users.Get(ctx, "42")
//	if env.Failed() {
//	    log.Printf("%s: %v", env.Error, env.Failure)
//	}
package resource
