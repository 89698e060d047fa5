// Package gen builds the in-memory graph of a schema from introspected
// entity metadata.
//
// The graph resolves every declared edge against its target, derives the
// reverse accessors named by Ref, synthesizes foreign-key columns and join
// tables and maps field kinds to GraphQL scalars through a TypeMap:
//
//	metas := []*load.EntityMetadata{post, category}
//	g, err := gen.NewGraph(metas)
//	if err != nil {
//	    return err
//	}
//	t, _ := g.Type("Post")
//	for _, f := range t.UserFields() {
//	    fmt.Println(f.Name, f.RequiredOn(gen.ModeCreate))
//	}
//
// The storage layout of each type, as consumed by dialect providers, is
// returned by Graph.Entities.
package gen
