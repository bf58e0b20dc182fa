// Command strata is the operator CLI for the strata daemon. It talks to a
// running stratad over the JSON-RPC Unix socket; nothing here touches the
// job database directly.
package main
