package pos

import "context"

// ResolveOrganizations returns the configured subset, or every organization
// the credential can see when none is configured.
func ResolveOrganizations(ctx context.Context, api API, configured []string) ([]string, error) {
	if len(configured) > 0 {
		return configured, nil
	}
	found, err := api.Organizations(ctx, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(found))
	for _, org := range found {
		ids = append(ids, org.ID)
	}
	return ids, nil
}
