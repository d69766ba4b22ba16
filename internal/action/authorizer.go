package action

import "context"

// OwnerAuthorizer is the default authorization collaborator: a user may act
// only on surfaces they own. Platforms with delegated access (care teams,
// supervisors) swap in their own Authorizer.
type OwnerAuthorizer struct{}

func (OwnerAuthorizer) CanAct(_ context.Context, userID, surfaceOwnerID string) (bool, error) {
	return userID != "" && userID == surfaceOwnerID, nil
}
