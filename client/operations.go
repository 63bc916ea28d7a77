package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/smnsjas/go-xrm/soap"
)

// OrganizationService is the set of operations the organization service
// offers. *Client implements it; tests may substitute a fake.
type OrganizationService interface {
	Create(ctx context.Context, entity soap.Entity) (uuid.UUID, error)
	Retrieve(ctx context.Context, ref soap.EntityReference, columns soap.ColumnSet) (*soap.Entity, error)
	RetrieveMultiple(ctx context.Context, query any) (*soap.EntityCollection, error)
	Update(ctx context.Context, entity soap.Entity) error
	Delete(ctx context.Context, ref soap.EntityReference) error
	Associate(ctx context.Context, target soap.EntityReference, rel soap.Relationship, related ...soap.EntityReference) error
	Disassociate(ctx context.Context, target soap.EntityReference, rel soap.Relationship, related ...soap.EntityReference) error
	Execute(ctx context.Context, req soap.Request) (soap.Response, error)
}

// Create creates a record and returns its id.
func (c *Client) Create(ctx context.Context, entity soap.Entity) (uuid.UUID, error) {
	resp, err := execute[soap.CreateResponse](ctx, c, soap.CreateRequest{Target: entity})
	if err != nil {
		return uuid.Nil, err
	}
	return resp.ID, nil
}

// Retrieve reads one record.
func (c *Client) Retrieve(ctx context.Context, ref soap.EntityReference, columns soap.ColumnSet) (*soap.Entity, error) {
	resp, err := execute[soap.RetrieveResponse](ctx, c, soap.RetrieveRequest{Target: ref, ColumnSet: columns})
	if err != nil {
		return nil, err
	}
	return &resp.Entity, nil
}

// RetrieveMultiple runs a soap.FetchExpression or soap.QueryExpression.
func (c *Client) RetrieveMultiple(ctx context.Context, query any) (*soap.EntityCollection, error) {
	resp, err := execute[soap.RetrieveMultipleResponse](ctx, c, soap.RetrieveMultipleRequest{Query: query})
	if err != nil {
		return nil, err
	}
	return &resp.EntityCollection, nil
}

// Update writes the attributes set on entity.
func (c *Client) Update(ctx context.Context, entity soap.Entity) error {
	_, err := execute[soap.UpdateResponse](ctx, c, soap.UpdateRequest{Target: entity})
	return err
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, ref soap.EntityReference) error {
	_, err := execute[soap.DeleteResponse](ctx, c, soap.DeleteRequest{Target: ref})
	return err
}

// Associate links records through rel.
func (c *Client) Associate(ctx context.Context, target soap.EntityReference, rel soap.Relationship, related ...soap.EntityReference) error {
	_, err := execute[soap.AssociateResponse](ctx, c, soap.AssociateRequest{
		Target:          target,
		Relationship:    rel,
		RelatedEntities: related,
	})
	return err
}

// Disassociate removes links created by Associate.
func (c *Client) Disassociate(ctx context.Context, target soap.EntityReference, rel soap.Relationship, related ...soap.EntityReference) error {
	_, err := execute[soap.DisassociateResponse](ctx, c, soap.DisassociateRequest{
		Target:          target,
		Relationship:    rel,
		RelatedEntities: related,
	})
	return err
}

// WhoAmI returns the identity the session runs as.
func (c *Client) WhoAmI(ctx context.Context) (*soap.WhoAmIResponse, error) {
	resp, err := execute[soap.WhoAmIResponse](ctx, c, soap.WhoAmIRequest{})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// execute runs req and asserts the response type.
func execute[T soap.Response](ctx context.Context, c *Client, req soap.Request) (T, error) {
	var zero T
	resp, err := c.Execute(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, &soap.SerializationError{
			Op:   "decode " + req.RequestName(),
			Type: resp.ResponseName(),
			Err:  fmt.Errorf("unexpected response type %T", resp),
		}
	}
	return typed, nil
}
