package soap

import (
	"github.com/google/uuid"
)

// Parameters is a keyed collection of request parameters or response
// results. Values must be one of:
//
//	nil, string, bool, int, int32, int64, float64, time.Time, uuid.UUID,
//	EntityReference, Entity, EntityCollection, ColumnSet, OptionSetValue,
//	Money, Relationship, EntityReferenceCollection, FetchExpression,
//	QueryExpression
//
// Keys are written in sorted order.
type Parameters map[string]any

// EntityReference identifies a record by logical name and id.
type EntityReference struct {
	LogicalName string
	ID          uuid.UUID
	Name        string
}

// Entity is a record with its attribute values. Attribute values follow the
// same type rules as Parameters.
type Entity struct {
	LogicalName string
	ID          uuid.UUID
	Attributes  Parameters
}

// Reference returns the EntityReference for the record.
func (e Entity) Reference() EntityReference {
	return EntityReference{LogicalName: e.LogicalName, ID: e.ID}
}

// EntityCollection is a page of records.
type EntityCollection struct {
	EntityName       string
	Entities         []Entity
	MoreRecords      bool
	PagingCookie     string
	TotalRecordCount int
}

// ColumnSet selects the attributes to return.
type ColumnSet struct {
	AllColumns bool
	Columns    []string
}

// AllColumns returns a ColumnSet selecting every attribute.
func AllColumns() ColumnSet {
	return ColumnSet{AllColumns: true}
}

// NewColumnSet returns a ColumnSet selecting the named attributes.
func NewColumnSet(columns ...string) ColumnSet {
	return ColumnSet{Columns: columns}
}

// OptionSetValue is a picklist value.
type OptionSetValue struct {
	Value int
}

// Money is a currency value.
type Money struct {
	Value float64
}

// Relationship names a relationship for associate and disassociate.
type Relationship struct {
	SchemaName string

	// PrimaryEntityRole is "Referencing" or "Referenced" for
	// self-referential relationships, otherwise empty.
	PrimaryEntityRole string
}

// EntityReferenceCollection is a list of record references.
type EntityReferenceCollection []EntityReference

// FetchExpression is a FetchXML query.
type FetchExpression struct {
	Query string
}

// QueryExpression is a structured query.
type QueryExpression struct {
	EntityName string
	ColumnSet  ColumnSet
	Criteria   FilterExpression
	Orders     []OrderExpression
	Distinct   bool

	// TopCount limits the result size; zero means no limit.
	TopCount int
	PageInfo PagingInfo
}

// FilterExpression combines conditions with a single logical operator.
type FilterExpression struct {
	// FilterOperator is "And" (default) or "Or".
	FilterOperator string
	Conditions     []ConditionExpression
}

// ConditionExpression compares an attribute against values.
type ConditionExpression struct {
	AttributeName string

	// Operator is a ConditionOperator name such as "Equal" or "Like".
	Operator string

	// Values follow the scalar Parameters types.
	Values []any
}

// OrderExpression sorts by an attribute.
type OrderExpression struct {
	AttributeName string

	// OrderType is "Ascending" (default) or "Descending".
	OrderType string
}

// PagingInfo selects a page of results.
type PagingInfo struct {
	Count                  int
	PageNumber             int
	PagingCookie           string
	ReturnTotalRecordCount bool
}
