// Package graphql is the remote gateway backend. It speaks the collection dialect of pg_graphql:
// every table is exposed as "<table>Collection" with filter, orderBy, offset, first and totalCount,
// and writes go through the insertInto, update and deleteFrom mutations.
package graphql

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/machinebox/graphql"
	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/domain"
)

// DefaultPageLimit is the largest page pg_graphql serves without raising max_rows.
const DefaultPageLimit = 30

// Config configures a Client.
type Config struct {
	Endpoint string
	APIKey   string

	// Columns lists the columns selected for each table. Tables without an entry cannot be read.
	Columns map[string][]string

	// PageLimit caps "first" on every collection query. FetchAll walks pages of this size.
	PageLimit int

	HTTPClient *http.Client
	Log        logrus.FieldLogger
}

// Client is a gateway.Store over a pg_graphql endpoint.
type Client struct {
	gql       *graphql.Client
	key       string
	columns   map[string][]string
	pageLimit int
	log       logrus.FieldLogger
}

// New creates a client for cfg.Endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("graphql endpoint is required")
	}
	if cfg.Columns == nil {
		cfg.Columns = DefaultColumns()
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}

	var opts []graphql.ClientOption
	if cfg.HTTPClient != nil {
		opts = append(opts, graphql.WithHTTPClient(cfg.HTTPClient))
	}
	gql := graphql.NewClient(cfg.Endpoint, opts...)
	log := cfg.Log.WithField("component", "graphql")
	gql.Log = func(s string) { log.Trace(s) }

	return &Client{
		gql:       gql,
		key:       cfg.APIKey,
		columns:   cfg.Columns,
		pageLimit: cfg.PageLimit,
		log:       log,
	}, nil
}

// DefaultColumns returns the column selection for every board preset and the note store.
func DefaultColumns() map[string][]string {
	cols := map[string][]string{
		domain.NotesTable: domain.NoteColumns,
	}
	for _, b := range domain.Boards() {
		cols[b.Table] = b.Columns
	}
	return cols
}

// makeRequest executes a GraphQL request with the API key attached.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}) error {
	if c.key != "" {
		req.Header.Set("apikey", c.key)
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	return c.gql.Run(ctx, req, resp)
}

func (c *Client) selection(table string) (string, error) {
	cols, ok := c.columns[table]
	if !ok || len(cols) == 0 {
		return "", fmt.Errorf("no columns configured for table %q", table)
	}
	return strings.Join(cols, " "), nil
}
