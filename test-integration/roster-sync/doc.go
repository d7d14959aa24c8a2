// Package integration runs the roster-sync server against a fake registration service
// and checks the complete flows: periodic reconciliation, score push, signed webhooks,
// the SSO bridge and the admin API.
package integration
