package soap

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Request is an Execute request. The set of implementations is closed:
// only the request types of this package can be encoded.
type Request interface {
	// RequestName is the message name sent as RequestName (e.g., "Create").
	RequestName() string

	// requestType is the prefixed i:type of the request element.
	requestType() string
	parameters() (Parameters, error)
}

// Response is a decoded Execute response. Like Request, the set of
// implementations is closed.
type Response interface {
	// ResponseName is the message name sent as ResponseName.
	ResponseName() string

	responseType() string
	results() Parameters
}

// CreateRequest creates a record.
type CreateRequest struct {
	Target Entity
}

func (CreateRequest) RequestName() string { return "Create" }
func (CreateRequest) requestType() string { return "a:CreateRequest" }
func (r CreateRequest) parameters() (Parameters, error) {
	return Parameters{"Target": r.Target}, nil
}

// CreateResponse carries the id of the created record.
type CreateResponse struct {
	ID uuid.UUID
}

func (CreateResponse) ResponseName() string  { return "Create" }
func (CreateResponse) responseType() string  { return "a:CreateResponse" }
func (r CreateResponse) results() Parameters { return Parameters{"id": r.ID} }

// RetrieveRequest fetches a single record.
type RetrieveRequest struct {
	Target    EntityReference
	ColumnSet ColumnSet
}

func (RetrieveRequest) RequestName() string { return "Retrieve" }
func (RetrieveRequest) requestType() string { return "a:RetrieveRequest" }
func (r RetrieveRequest) parameters() (Parameters, error) {
	return Parameters{"Target": r.Target, "ColumnSet": r.ColumnSet}, nil
}

// RetrieveResponse carries the retrieved record.
type RetrieveResponse struct {
	Entity Entity
}

func (RetrieveResponse) ResponseName() string  { return "Retrieve" }
func (RetrieveResponse) responseType() string  { return "a:RetrieveResponse" }
func (r RetrieveResponse) results() Parameters { return Parameters{"Entity": r.Entity} }

// RetrieveMultipleRequest runs a query. Query must be a FetchExpression or a
// QueryExpression.
type RetrieveMultipleRequest struct {
	Query any
}

func (RetrieveMultipleRequest) RequestName() string { return "RetrieveMultiple" }
func (RetrieveMultipleRequest) requestType() string { return "a:RetrieveMultipleRequest" }
func (r RetrieveMultipleRequest) parameters() (Parameters, error) {
	switch r.Query.(type) {
	case FetchExpression, QueryExpression:
	default:
		return nil, &SerializationError{Op: "encode RetrieveMultiple query", Type: fmt.Sprintf("%T", r.Query), Err: errUnknownType}
	}
	return Parameters{"Query": r.Query}, nil
}

// RetrieveMultipleResponse carries a page of records.
type RetrieveMultipleResponse struct {
	EntityCollection EntityCollection
}

func (RetrieveMultipleResponse) ResponseName() string { return "RetrieveMultiple" }
func (RetrieveMultipleResponse) responseType() string { return "a:RetrieveMultipleResponse" }
func (r RetrieveMultipleResponse) results() Parameters {
	return Parameters{"EntityCollection": r.EntityCollection}
}

// UpdateRequest updates the attributes set on Target.
type UpdateRequest struct {
	Target Entity
}

func (UpdateRequest) RequestName() string { return "Update" }
func (UpdateRequest) requestType() string { return "a:UpdateRequest" }
func (r UpdateRequest) parameters() (Parameters, error) {
	return Parameters{"Target": r.Target}, nil
}

// UpdateResponse is empty.
type UpdateResponse struct{}

func (UpdateResponse) ResponseName() string { return "Update" }
func (UpdateResponse) responseType() string { return "a:UpdateResponse" }
func (UpdateResponse) results() Parameters  { return nil }

// DeleteRequest deletes a record.
type DeleteRequest struct {
	Target EntityReference
}

func (DeleteRequest) RequestName() string { return "Delete" }
func (DeleteRequest) requestType() string { return "a:DeleteRequest" }
func (r DeleteRequest) parameters() (Parameters, error) {
	return Parameters{"Target": r.Target}, nil
}

// DeleteResponse is empty.
type DeleteResponse struct{}

func (DeleteResponse) ResponseName() string { return "Delete" }
func (DeleteResponse) responseType() string { return "a:DeleteResponse" }
func (DeleteResponse) results() Parameters  { return nil }

// AssociateRequest links records through a relationship.
type AssociateRequest struct {
	Target          EntityReference
	Relationship    Relationship
	RelatedEntities EntityReferenceCollection
}

func (AssociateRequest) RequestName() string { return "Associate" }
func (AssociateRequest) requestType() string { return "a:AssociateRequest" }
func (r AssociateRequest) parameters() (Parameters, error) {
	return Parameters{
		"Target":          r.Target,
		"Relationship":    r.Relationship,
		"RelatedEntities": r.RelatedEntities,
	}, nil
}

// AssociateResponse is empty.
type AssociateResponse struct{}

func (AssociateResponse) ResponseName() string { return "Associate" }
func (AssociateResponse) responseType() string { return "a:AssociateResponse" }
func (AssociateResponse) results() Parameters  { return nil }

// DisassociateRequest removes links between records.
type DisassociateRequest struct {
	Target          EntityReference
	Relationship    Relationship
	RelatedEntities EntityReferenceCollection
}

func (DisassociateRequest) RequestName() string { return "Disassociate" }
func (DisassociateRequest) requestType() string { return "a:DisassociateRequest" }
func (r DisassociateRequest) parameters() (Parameters, error) {
	return Parameters{
		"Target":          r.Target,
		"Relationship":    r.Relationship,
		"RelatedEntities": r.RelatedEntities,
	}, nil
}

// DisassociateResponse is empty.
type DisassociateResponse struct{}

func (DisassociateResponse) ResponseName() string { return "Disassociate" }
func (DisassociateResponse) responseType() string { return "a:DisassociateResponse" }
func (DisassociateResponse) results() Parameters  { return nil }

// WhoAmIRequest returns the calling user.
type WhoAmIRequest struct{}

func (WhoAmIRequest) RequestName() string              { return "WhoAmI" }
func (WhoAmIRequest) requestType() string              { return "g:WhoAmIRequest" }
func (WhoAmIRequest) parameters() (Parameters, error) { return nil, nil }

// WhoAmIResponse identifies the calling user.
type WhoAmIResponse struct {
	UserID         uuid.UUID
	BusinessUnitID uuid.UUID
	OrganizationID uuid.UUID
}

func (WhoAmIResponse) ResponseName() string { return "WhoAmI" }
func (WhoAmIResponse) responseType() string { return "g:WhoAmIResponse" }
func (r WhoAmIResponse) results() Parameters {
	return Parameters{
		"UserId":         r.UserID,
		"BusinessUnitId": r.BusinessUnitID,
		"OrganizationId": r.OrganizationID,
	}
}

// OrganizationRequest is a named request with free-form parameters, for
// messages without a dedicated type.
type OrganizationRequest struct {
	Name       string
	Parameters Parameters
}

func (r OrganizationRequest) RequestName() string { return r.Name }
func (OrganizationRequest) requestType() string   { return "a:OrganizationRequest" }
func (r OrganizationRequest) parameters() (Parameters, error) {
	if r.Name == "" {
		return nil, &SerializationError{Op: "encode OrganizationRequest", Err: errors.New("empty request name")}
	}
	return r.Parameters, nil
}

// OrganizationResponse is a named response with free-form results.
type OrganizationResponse struct {
	Name    string
	Results Parameters
}

func (r OrganizationResponse) ResponseName() string { return r.Name }
func (OrganizationResponse) responseType() string   { return "a:OrganizationResponse" }
func (r OrganizationResponse) results() Parameters  { return r.Results }

// requestDecoders maps an i:type local name to the request it decodes into.
var requestDecoders = map[string]func(name string, p Parameters) (Request, error){
	"CreateRequest": func(_ string, p Parameters) (Request, error) {
		t, err := param[Entity](p, "Target")
		return CreateRequest{Target: t}, err
	},
	"RetrieveRequest": func(_ string, p Parameters) (Request, error) {
		t, err := param[EntityReference](p, "Target")
		if err != nil {
			return nil, err
		}
		cs, err := param[ColumnSet](p, "ColumnSet")
		return RetrieveRequest{Target: t, ColumnSet: cs}, err
	},
	"RetrieveMultipleRequest": func(_ string, p Parameters) (Request, error) {
		q, ok := p["Query"]
		if !ok {
			return nil, &SerializationError{Op: "decode parameter Query", Err: errMissing}
		}
		r := RetrieveMultipleRequest{Query: q}
		_, err := r.parameters()
		return r, err
	},
	"UpdateRequest": func(_ string, p Parameters) (Request, error) {
		t, err := param[Entity](p, "Target")
		return UpdateRequest{Target: t}, err
	},
	"DeleteRequest": func(_ string, p Parameters) (Request, error) {
		t, err := param[EntityReference](p, "Target")
		return DeleteRequest{Target: t}, err
	},
	"AssociateRequest": func(_ string, p Parameters) (Request, error) {
		t, rel, refs, err := relationshipParams(p)
		return AssociateRequest{Target: t, Relationship: rel, RelatedEntities: refs}, err
	},
	"DisassociateRequest": func(_ string, p Parameters) (Request, error) {
		t, rel, refs, err := relationshipParams(p)
		return DisassociateRequest{Target: t, Relationship: rel, RelatedEntities: refs}, err
	},
	"WhoAmIRequest": func(string, Parameters) (Request, error) {
		return WhoAmIRequest{}, nil
	},
	"OrganizationRequest": func(name string, p Parameters) (Request, error) {
		return OrganizationRequest{Name: name, Parameters: p}, nil
	},
}

// responseDecoders maps an i:type local name to the response it decodes into.
var responseDecoders = map[string]func(name string, p Parameters) (Response, error){
	"CreateResponse": func(_ string, p Parameters) (Response, error) {
		id, err := param[uuid.UUID](p, "id")
		return CreateResponse{ID: id}, err
	},
	"RetrieveResponse": func(_ string, p Parameters) (Response, error) {
		e, err := param[Entity](p, "Entity")
		return RetrieveResponse{Entity: e}, err
	},
	"RetrieveMultipleResponse": func(_ string, p Parameters) (Response, error) {
		c, err := param[EntityCollection](p, "EntityCollection")
		return RetrieveMultipleResponse{EntityCollection: c}, err
	},
	"UpdateResponse": func(string, Parameters) (Response, error) {
		return UpdateResponse{}, nil
	},
	"DeleteResponse": func(string, Parameters) (Response, error) {
		return DeleteResponse{}, nil
	},
	"AssociateResponse": func(string, Parameters) (Response, error) {
		return AssociateResponse{}, nil
	},
	"DisassociateResponse": func(string, Parameters) (Response, error) {
		return DisassociateResponse{}, nil
	},
	"WhoAmIResponse": func(_ string, p Parameters) (Response, error) {
		var r WhoAmIResponse
		var err error
		if r.UserID, err = param[uuid.UUID](p, "UserId"); err != nil {
			return nil, err
		}
		if r.BusinessUnitID, err = param[uuid.UUID](p, "BusinessUnitId"); err != nil {
			return nil, err
		}
		if r.OrganizationID, err = param[uuid.UUID](p, "OrganizationId"); err != nil {
			return nil, err
		}
		return r, nil
	},
	"OrganizationResponse": func(name string, p Parameters) (Response, error) {
		return OrganizationResponse{Name: name, Results: p}, nil
	},
}

var errMissing = errors.New("missing")

func param[T any](p Parameters, key string) (T, error) {
	var zero T
	v, ok := p[key]
	if !ok {
		return zero, &SerializationError{Op: "decode parameter " + key, Err: errMissing}
	}
	t, ok := v.(T)
	if !ok {
		return zero, &SerializationError{Op: "decode parameter " + key, Type: fmt.Sprintf("%T", v), Err: errors.New("unexpected type")}
	}
	return t, nil
}

func relationshipParams(p Parameters) (EntityReference, Relationship, EntityReferenceCollection, error) {
	t, err := param[EntityReference](p, "Target")
	if err != nil {
		return EntityReference{}, Relationship{}, nil, err
	}
	rel, err := param[Relationship](p, "Relationship")
	if err != nil {
		return EntityReference{}, Relationship{}, nil, err
	}
	refs, err := param[EntityReferenceCollection](p, "RelatedEntities")
	return t, rel, refs, err
}
