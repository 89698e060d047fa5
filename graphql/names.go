package graphql

import (
	"fmt"

	"github.com/raillogistic/autogql/compiler/gen"
)

// Names holds the names of the types and operations generated for an
// entity.
type Names struct {
	Object      string
	CreateInput string
	UpdateInput string
	WhereInput  string
	Page        string
	Payload     string
	BulkPayload string
	BulkResult  string

	Single     string
	List       string
	Paginated  string
	Create     string
	Update     string
	Delete     string
	BulkCreate string
	BulkUpdate string
	BulkDelete string
}

// names generates the type and operation names of an object type.
func names(object string) Names {
	single, plural := gen.Camel(object), gen.Camel(gen.Plural(object))
	if plural == single {
		plural = single + "List"
	}
	return Names{
		Object:      object,
		CreateInput: fmt.Sprintf("%sCreateInput", object),
		UpdateInput: fmt.Sprintf("%sUpdateInput", object),
		WhereInput:  fmt.Sprintf("%sWhereInput", object),
		Page:        fmt.Sprintf("%sPage", object),
		Payload:     fmt.Sprintf("%sPayload", object),
		BulkPayload: fmt.Sprintf("%sBulkPayload", object),
		BulkResult:  fmt.Sprintf("%sBulkResult", object),
		Single:      single,
		List:        plural,
		Paginated:   "paginated" + gen.Pascal(plural),
		Create:      "create" + object,
		Update:      "update" + object,
		Delete:      "delete" + object,
		BulkCreate:  "bulkCreate" + object,
		BulkUpdate:  "bulkUpdate" + object,
		BulkDelete:  "bulkDelete" + object,
	}
}

// methodNames returns the operation and payload names of a method mutation.
func methodNames(object, method string) (op, payload string) {
	op = gen.Camel(method) + object
	return op, gen.Pascal(op) + "Payload"
}

// Shared type and argument names.
const (
	pageInfoType = "PageInfo"
	queryType    = "Query"
	mutationType = "Mutation"

	argIDs     = "ids"
	argInput   = "input"
	argInputs  = "inputs"
	argWhere   = "where"
	argOrderBy = "orderBy"
	argLimit   = "limit"
	argOffset  = "offset"
	argPage    = "page"
	argPerPage = "perPage"
)
