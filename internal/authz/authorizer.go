// Package authz provides Cedar-based authorization for the admin routes.
package authz

import "context"

//go:generate mockgen -destination=mocks/mock_authorizer.go -package=mocks -source=authorizer.go Authorizer

// Authorizer evaluates authorization decisions using Cedar policies.
type Authorizer interface {
	// Authorize checks if the principal with the given granted actions
	// can perform the specified action on the resource.
	Authorize(ctx context.Context, req Request) (Decision, error)
}

// Request represents an authorization request.
type Request struct {
	// Subject identifies the session holder
	Subject string

	// Role is the local role carried by the session
	Role string

	// GrantedActions are the actions granted to Role by the role mapping
	GrantedActions []string

	// Action is the required Cedar action name (read, run).
	Action string

	// ResourceID is the sync job the route acts on, or "global"
	ResourceID string
}

// Decision represents the result of an authorization check.
type Decision struct {
	// Allowed indicates whether the request is permitted.
	Allowed bool

	// Reasons provides policy IDs that contributed to the decision.
	Reasons []string
}
