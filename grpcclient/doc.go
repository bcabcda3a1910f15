// Package grpcclient builds gRPC client connections that share the credential
// lifecycle used by the HTTP pipeline.
//
// Any AuthorizationSource (normally a *credential.Manager) can feed the unary
// and stream interceptors or the PerRPCCredentials adapter. Each RPC asks the
// source for the current token, so logins and refreshes happen on demand and
// at most once for concurrent callers.
//
// # Quick Start
//
//	manager := credential.NewManager(issuer)
//
//	conn, err := grpcclient.NewBuilder().
//	    WithAddress("server.example.com:9090").
//	    WithCredentials(manager).
//	    WithTLS("/path/to/ca.crt", "", "", "server.example.com").
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
// # TLS Behavior
//
// TLS is on by default with system roots and TLS 1.2 minimum. WithTLS supplies
// a custom root CA and an optional client certificate for mTLS. Plaintext
// requires passing insecure transport credentials through WithDialOptions.
package grpcclient
