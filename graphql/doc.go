// Package graphql generates a GraphQL schema from a schema graph and runs
// its operations against a dialect.Provider.
//
// For every exposed entity the generator emits an object type, create and
// update inputs, a where input and a page type, plus the root fields:
//
//	post(id: ID, slug: String): Post
//	posts(where: PostWhereInput, orderBy: [String!], limit: Int, offset: Int): [Post!]!
//	paginatedPosts(page: Int, perPage: Int, where: PostWhereInput, orderBy: [String!]): PostPage!
//	createPost(input: PostCreateInput!): PostPayload!
//	updatePost(input: PostUpdateInput!): PostPayload!
//	deletePost(id: ID!): PostPayload!
//	bulkCreatePost(inputs: [PostCreateInput!]!): PostBulkPayload!
//	publishPost(id: ID!, at: Time!): PublishPostPayload!
//
// Mutations never fail with a GraphQL error for business reasons. They
// return a payload whose ok field is false and whose errors field holds
// field-scoped messages such as "nestedCategory.name: is required".
//
// A Schema runs operations either through Execute, with decoded arguments
// and an explicit selection, or through Do, with a GraphQL document:
//
//	s, err := graphql.New("public", g, provider, graphql.WithSettings(view))
//	if err != nil {
//		return err
//	}
//	resp, err := s.Do(ctx, `{ posts(orderBy: ["-views"], limit: 5) { title } }`, nil)
//
// Entities and fields are hidden or renamed with the Skip and Type
// annotations.
package graphql
