package authz

import (
	"context"
	"fmt"
	"log/slog"

	cedar "github.com/cedar-policy/cedar-go"
)

const cedarNamespace = "RosterSync"

// globalResource is used when a route does not act on a single job
const globalResource = "global"

type cedarAuthorizer struct {
	policySet *cedar.PolicySet
}

// NewCedarAuthorizer creates a new Cedar-based authorizer.
// If policyBytes is nil, built-in default policies are used.
func NewCedarAuthorizer(policyBytes []byte) (Authorizer, error) {
	if policyBytes == nil {
		policyBytes = []byte(defaultPolicies)
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}

	return &cedarAuthorizer{policySet: ps}, nil
}

// Authorize implements Authorizer
func (a *cedarAuthorizer) Authorize(ctx context.Context, req Request) (Decision, error) {
	subject := req.Subject
	if subject == "" {
		subject = "anonymous"
	}
	principalUID := cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::User"), cedar.String(subject))

	actionValues := make([]cedar.Value, len(req.GrantedActions))
	for i, action := range req.GrantedActions {
		actionValues[i] = cedar.String(action)
	}

	entities := cedar.EntityMap{
		principalUID: cedar.Entity{
			UID: principalUID,
			Attributes: cedar.NewRecord(cedar.RecordMap{
				"role":           cedar.String(req.Role),
				"grantedActions": cedar.NewSet(actionValues...),
			}),
		},
	}

	resourceID := req.ResourceID
	if resourceID == "" {
		resourceID = globalResource
	}

	cedarReq := cedar.Request{
		Principal: principalUID,
		Action:    cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Action"), cedar.String(req.Action)),
		Resource:  cedar.NewEntityUID(cedar.EntityType(cedarNamespace+"::Job"), cedar.String(resourceID)),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diagnostic := cedar.Authorize(a.policySet, entities, cedarReq)

	slog.DebugContext(ctx, "Authorization decision",
		"action", req.Action,
		"decision", decision,
		"role", req.Role,
		"granted_actions", req.GrantedActions,
		"resource", resourceID,
	)

	var reasons []string
	for _, r := range diagnostic.Reasons {
		reasons = append(reasons, string(r.PolicyID))
	}

	return Decision{
		Allowed: decision == cedar.Allow,
		Reasons: reasons,
	}, nil
}
