package graphql

import (
	"context"
	"fmt"
	"maps"

	"github.com/machinebox/graphql"

	"github.com/h0rv/opsdash/internal/gateway"
)

// mutationResult is the payload of insertInto, update and deleteFrom.
type mutationResult struct {
	AffectedCount int           `json:"affectedCount"`
	Records       []gateway.Row `json:"records"`
}

func idFilter(id string) map[string]interface{} {
	return map[string]interface{}{"id": map[string]interface{}{"eq": id}}
}

// Insert creates a row. The server assigns id and timestamps unless row carries them.
func (c *Client) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	sel, err := c.selection(table)
	if err != nil {
		return nil, gateway.Write("insert", table, "", err)
	}
	field := "insertInto" + table + "Collection"
	req := graphql.NewRequest(fmt.Sprintf(`
		mutation($object: %[1]sInsertInput!) {
			%[2]s(objects: [$object]) {
				affectedCount
				records {
					%[3]s
				}
			}
		}
	`, table, field, sel))
	req.Var("object", row)

	var resp map[string]mutationResult
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, gateway.Write("insert", table, "", err)
	}
	res := resp[field]
	if len(res.Records) == 0 {
		return nil, gateway.Write("insert", table, "", fmt.Errorf("no record returned"))
	}
	return res.Records[0], nil
}

// Update sets the patched columns on one row.
func (c *Client) Update(ctx context.Context, table, id string, patch gateway.Row) error {
	set := maps.Clone(patch)
	delete(set, "id")

	field := "update" + table + "Collection"
	req := graphql.NewRequest(fmt.Sprintf(`
		mutation($set: %[1]sUpdateInput!, $filter: %[1]sFilter!) {
			%[2]s(set: $set, filter: $filter, atMost: 1) {
				affectedCount
			}
		}
	`, table, field))
	req.Var("set", set)
	req.Var("filter", idFilter(id))

	var resp map[string]mutationResult
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return gateway.Write("update", table, id, err)
	}
	if resp[field].AffectedCount == 0 {
		return gateway.Write("update", table, id, gateway.ErrRowNotFound)
	}
	return nil
}

// Delete removes one row.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	field := "deleteFrom" + table + "Collection"
	req := graphql.NewRequest(fmt.Sprintf(`
		mutation($filter: %[1]sFilter!) {
			%[2]s(filter: $filter, atMost: 1) {
				affectedCount
			}
		}
	`, table, field))
	req.Var("filter", idFilter(id))

	var resp map[string]mutationResult
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return gateway.Write("delete", table, id, err)
	}
	if resp[field].AffectedCount == 0 {
		return gateway.Write("delete", table, id, gateway.ErrRowNotFound)
	}
	return nil
}
