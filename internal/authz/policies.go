package authz

// defaultPolicies check principal.grantedActions, which the role mapping fills,
// so a custom role mapping works without custom policies.
const defaultPolicies = `
permit(
  principal,
  action == RosterSync::Action::"read",
  resource
) when {
  principal.grantedActions.contains("read")
};

permit(
  principal,
  action == RosterSync::Action::"run",
  resource
) when {
  principal.grantedActions.contains("run")
};
`
