package graphql

import (
	"context"
	"fmt"
	"strings"

	"github.com/machinebox/graphql"
	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

// collection is the connection shape returned by "<table>Collection".
type collection struct {
	TotalCount int `json:"totalCount"`
	Edges      []struct {
		Node gateway.Row `json:"node"`
	} `json:"edges"`
}

// likeEscaper keeps user input literal inside an ilike pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// filterValue builds the collection filter argument, or nil when f matches every row.
// Top-level keys of a pg_graphql filter are combined with AND.
func filterValue(f gateway.Filter) map[string]interface{} {
	filter := map[string]interface{}{}
	if f.Text != "" && len(f.TextColumns) > 0 {
		pattern := "%" + likeEscaper.Replace(f.Text) + "%"
		ors := make([]map[string]interface{}, 0, len(f.TextColumns))
		for _, col := range f.TextColumns {
			ors = append(ors, map[string]interface{}{
				col: map[string]interface{}{"ilike": pattern},
			})
		}
		filter["or"] = ors
	}
	if f.Tag != "" {
		filter[f.TagColumn] = map[string]interface{}{"contains": []string{f.Tag}}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// orderValue builds the orderBy argument, or nil for server order.
func orderValue(order domain.Order) []map[string]string {
	if order.Column == "" {
		return nil
	}
	dir := "AscNullsLast"
	if order.Desc {
		dir = "DescNullsLast"
	}
	return []map[string]string{{order.Column: dir}}
}

// page runs one collection query.
func (c *Client) page(ctx context.Context, table string, filter gateway.Filter, order domain.Order, offset, limit int) ([]gateway.Row, int, error) {
	sel, err := c.selection(table)
	if err != nil {
		return nil, 0, err
	}
	field := table + "Collection"
	req := graphql.NewRequest(fmt.Sprintf(`
		query($first: Int!, $offset: Int!, $filter: %[1]sFilter, $orderBy: [%[1]sOrderBy!]) {
			%[2]s(first: $first, offset: $offset, filter: $filter, orderBy: $orderBy) {
				totalCount
				edges {
					node {
						%[3]s
					}
				}
			}
		}
	`, table, field, sel))
	req.Var("first", limit)
	req.Var("offset", offset)
	req.Var("filter", filterValue(filter))
	req.Var("orderBy", orderValue(order))

	var resp map[string]collection
	if err := c.makeRequest(ctx, req, &resp); err != nil {
		return nil, 0, err
	}
	conn, ok := resp[field]
	if !ok {
		return nil, 0, fmt.Errorf("response has no %s field", field)
	}

	rows := make([]gateway.Row, 0, len(conn.Edges))
	for _, edge := range conn.Edges {
		rows = append(rows, edge.Node)
	}
	return rows, conn.TotalCount, nil
}

// FetchAll walks every page of table in order. A row that shifts onto a later page because
// of a concurrent insert is returned once, at its first position.
func (c *Client) FetchAll(ctx context.Context, table string, order domain.Order) ([]gateway.Row, error) {
	var all []gateway.Row
	seen := make(map[string]bool)
	offset := 0
	for {
		rows, total, err := c.page(ctx, table, gateway.Filter{}, order, offset, c.pageLimit)
		if err != nil {
			return nil, gateway.Read("fetch all", table, err)
		}
		offset += len(rows)
		for _, row := range rows {
			if id := row.ID(); id != "" {
				if seen[id] {
					continue
				}
				seen[id] = true
			}
			all = append(all, row)
		}
		if len(rows) == 0 || offset >= total {
			break
		}
	}
	c.log.WithFields(logrus.Fields{"table": table, "rows": len(all)}).Debug("fetched table")
	if all == nil {
		all = []gateway.Row{}
	}
	return all, nil
}

// FetchPage returns one page and the filtered total. Limits above the page limit are capped;
// callers detect the short page through the total.
func (c *Client) FetchPage(ctx context.Context, table string, filter gateway.Filter, order domain.Order, offset, limit int) ([]gateway.Row, int, error) {
	if limit <= 0 || limit > c.pageLimit {
		limit = c.pageLimit
	}
	rows, total, err := c.page(ctx, table, filter, order, offset, limit)
	if err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	return rows, total, nil
}
