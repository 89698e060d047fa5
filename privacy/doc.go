// Package privacy holds the rules guarding the operations of generated
// schemas.
//
// An entity declares its policy through a Policy method. Query policies run
// before every read of the entity, including reads through edges of other
// entities. Mutation policies run for each record a create, update, delete
// or method mutation touches, nested writes included.
//
//	func (Post) Policy() autogql.Policy {
//	    return privacy.Policy{
//	        Mutation: privacy.MutationPolicy{
//	            privacy.DenyIfNoViewer(),
//	            privacy.HasRole("admin"),
//	            privacy.IsOwner("author_id"),
//	            privacy.AlwaysDenyRule(),
//	        },
//	        Query: privacy.QueryPolicy{
//	            privacy.HasRole("admin"),
//	            privacy.OwnerQueryRule("author_id"),
//	        },
//	    }
//	}
//
// Rules run in order. Allow and Deny end the evaluation, Skip (or nil) moves
// to the next rule, and a policy whose rules all skip allows the operation.
// A denied read fails with an autogql.PermissionError; a denied mutation
// reports ok=false with a "permission denied" entry in its envelope.
//
// Query rules may narrow a read instead of deciding it: reads implement
// Filterable, and the predicates a FilterFunc adds are applied to the
// records the read returns. Results of entities with policies are never
// served from the query cache.
//
// The viewer of a request is attached with WithViewer:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{UserID: "42", Roles: []string{"editor"}})
//	res, err := schema.Execute(ctx, "paginatedPosts", nil, nil)
package privacy
