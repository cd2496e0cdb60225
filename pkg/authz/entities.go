package authz

import "github.com/cedar-policy/cedar-go"

// buildEntities constructs the Cedar EntityMap from principal and resource.
// This creates the entity graph that Cedar uses to evaluate policies.
func buildEntities(principal Principal, resource Resource) cedar.EntityMap {
	entities := cedar.EntityMap{}

	principalUID := cedar.NewEntityUID("Principal", cedar.String(principal.UID))
	entities[principalUID] = cedar.Entity{
		UID:     principalUID,
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"uid":      cedar.String(principal.UID),
			"role":     cedar.String(string(principal.Role)),
			"org_unit": cedar.String(principal.OrgUnit),
		}),
	}

	resourceType := resource.Type
	if resourceType == "" {
		resourceType = "Record"
	}
	resourceUID := cedar.NewEntityUID(cedar.EntityType(resourceType), cedar.String(resource.UID))

	assigned := make([]cedar.Value, 0, len(resource.Assigned))
	for _, uid := range resource.Assigned {
		assigned = append(assigned, cedar.String(uid))
	}

	entities[resourceUID] = cedar.Entity{
		UID:     resourceUID,
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"org_unit": cedar.String(resource.OrgUnit),
			"assigned": cedar.NewSet(assigned...),
		}),
	}

	return entities
}

// buildCedarRequest maps the application-level request to Cedar's evaluation format.
func buildCedarRequest(req Request) cedar.Request {
	resourceType := req.Resource.Type
	if resourceType == "" {
		resourceType = "Record"
	}
	return cedar.Request{
		Principal: cedar.NewEntityUID("Principal", cedar.String(req.Principal.UID)),
		Action:    cedar.NewEntityUID("Action", cedar.String(req.Action)),
		Resource:  cedar.NewEntityUID(cedar.EntityType(resourceType), cedar.String(req.Resource.UID)),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}
}
