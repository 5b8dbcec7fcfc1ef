// Package triplestore implements the concrete contracts.TriplestoreClient:
// a SPARQL 1.1 Protocol / Graph Store HTTP Protocol client (spec.md §6
// "Triplestore client").
package triplestore

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"

	sharedhttp "github.com/chainlens/nlquery/pkg/shared/http"
	"github.com/chainlens/nlquery/pkg/shared/logging"
	"github.com/chainlens/nlquery/pkg/types"
)

// DefaultTimeout bounds a single SPARQL query execution.
const DefaultTimeout = 30 * time.Second

// Client talks SPARQL 1.1 Protocol (query endpoint) and the Graph Store
// HTTP Protocol (graph existence/creation) over a shared *http.Client.
type Client struct {
	queryEndpoint string
	gspEndpoint   string
	httpClient    *http.Client
	log           *logrus.Logger
}

// New builds a Client. queryEndpoint serves SPARQL queries; gspEndpoint
// is the Graph Store HTTP Protocol base used by CheckGraphExists and
// CreateGraph.
func New(queryEndpoint, gspEndpoint string, log *logrus.Logger) *Client {
	return &Client{
		queryEndpoint: queryEndpoint,
		gspEndpoint:   gspEndpoint,
		httpClient:    sharedhttp.NewClient(sharedhttp.TriplestoreClientConfig(DefaultTimeout)),
		log:           log,
	}
}

// sparqlResultsEnvelope mirrors the SPARQL 1.1 Query Results JSON Format:
// either a tabular {head,results} shape or a boolean ASK shape.
type sparqlResultsEnvelope struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]sparqlTerm `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

type sparqlTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
}

// Execute submits sparql to the query endpoint and decodes the SPARQL
// 1.1 Query Results JSON Format into a types.TriplestoreResponse.
func (c *Client) Execute(ctx context.Context, sparql string) (types.TriplestoreResponse, error) {
	fields := logging.NewFields().Component("triplestore").Operation("execute")

	form := url.Values{"query": {sparql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return types.TriplestoreResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(fields.Error(err).ToLogrus()).Warn("triplestore request failed")
		return types.TriplestoreResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return types.TriplestoreResponse{}, &queryError{status: resp.StatusCode}
	}

	var envelope sparqlResultsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return types.TriplestoreResponse{}, err
	}
	return toTriplestoreResponse(envelope), nil
}

func toTriplestoreResponse(envelope sparqlResultsEnvelope) types.TriplestoreResponse {
	if envelope.Boolean != nil {
		return types.TriplestoreResponse{IsBoolean: true, Boolean: *envelope.Boolean}
	}

	resp := types.TriplestoreResponse{Columns: envelope.Head.Vars}
	if envelope.Results == nil {
		return resp
	}
	for _, binding := range envelope.Results.Bindings {
		row := make(types.Row, len(binding))
		for v, term := range binding {
			row[v] = toCell(term)
		}
		resp.Rows = append(resp.Rows, row)
	}
	return resp
}

func toCell(term sparqlTerm) types.Cell {
	switch term.Type {
	case "uri":
		return types.Cell{Kind: types.CellURI, Value: term.Value, DataType: term.Datatype}
	case "bnode":
		return types.Cell{Kind: types.CellBlank, Value: term.Value}
	default:
		return types.Cell{Kind: types.CellLiteral, Value: term.Value, DataType: term.Datatype}
	}
}

// CheckGraphExists issues a Graph Store HTTP Protocol HEAD request
// against graphURI. Not exercised by the core pipeline (spec.md §6).
func (c *Client) CheckGraphExists(ctx context.Context, graphURI string) (bool, error) {
	endpoint := c.gspEndpoint + "?graph=" + url.QueryEscape(graphURI)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// CreateGraph PUTs turtleData as the contents of graphURI via the Graph
// Store HTTP Protocol. Not exercised by the core pipeline (spec.md §6).
func (c *Client) CreateGraph(ctx context.Context, graphURI, turtleData string) error {
	endpoint := c.gspEndpoint + "?graph=" + url.QueryEscape(graphURI)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader([]byte(turtleData)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/turtle")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return &queryError{status: resp.StatusCode}
	}
	return nil
}

// queryError reports a non-2xx HTTP response from the triplestore.
type queryError struct {
	status int
}

func (e *queryError) Error() string {
	return "triplestore returned status " + strconv.Itoa(e.status)
}
