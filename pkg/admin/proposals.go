package admin

import (
	"context"
	"net/url"
	"strconv"
)

// ProposalsManager reads context governance proposals
type ProposalsManager struct {
	c *Client
}

func proposalsPath(contextID string) string {
	return "/contexts/" + escape(contextID) + "/proposals"
}

// List returns proposals of a context, paginated by offset and limit
func (m *ProposalsManager) List(ctx context.Context, contextID string, offset, limit int) ([]Proposal, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	data, err := m.c.get(ctx, proposalsPath(contextID), query)
	if err != nil {
		return nil, err
	}
	proposals := []Proposal{}
	if err := decode(listOf(data, "proposals"), &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

// Get returns one proposal
func (m *ProposalsManager) Get(ctx context.Context, contextID, proposalID string) (*Proposal, error) {
	data, err := m.c.get(ctx, proposalsPath(contextID)+"/"+escape(proposalID), nil)
	if err != nil {
		return nil, err
	}
	var out Proposal
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActiveCount returns the number of active proposals
func (m *ProposalsManager) ActiveCount(ctx context.Context, contextID string) (int, error) {
	data, err := m.c.get(ctx, proposalsPath(contextID)+"/active/count", nil)
	if err != nil {
		return 0, err
	}
	return countOf(data), nil
}

// ApprovalsCount returns how many approvals a proposal has
func (m *ProposalsManager) ApprovalsCount(ctx context.Context, contextID, proposalID string) (int, error) {
	data, err := m.c.get(ctx, proposalsPath(contextID)+"/"+escape(proposalID)+"/approvals/count", nil)
	if err != nil {
		return 0, err
	}
	return countOf(data), nil
}

// Approvers returns the identities that approved a proposal
func (m *ProposalsManager) Approvers(ctx context.Context, contextID, proposalID string) ([]string, error) {
	data, err := m.c.get(ctx, proposalsPath(contextID)+"/"+escape(proposalID)+"/approvers", nil)
	if err != nil {
		return nil, err
	}
	approvers := []string{}
	if err := decode(listOf(data, "approvers"), &approvers); err != nil {
		return nil, err
	}
	return approvers, nil
}
