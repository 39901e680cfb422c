package cfstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// scannerBatch is the number of cells requested per scanner page.
const scannerBatch = 1000

// firstKeyOnlyFilter returns only the first cell of every row.
const firstKeyOnlyFilter = `{"type":"FirstKeyOnlyFilter"}`

// HBaseStore implements Store against an HBase REST gateway.
// Table names may carry a namespace ("ns:table").
type HBaseStore struct {
	baseURL string
	client  *http.Client
}

// NewHBaseStore creates a store for the gateway at baseURL
// (e.g. http://127.0.0.1:8080). A zero timeout means no request timeout.
func NewHBaseStore(baseURL string, timeout time.Duration) *HBaseStore {
	return &HBaseStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// REST representations of table schemas and cell sets.
type tableSchema struct {
	Name         string         `json:"name"`
	ColumnSchema []columnSchema `json:"ColumnSchema"`
}

type columnSchema struct {
	Name string `json:"name"`
}

type cellSet struct {
	Row []restRow `json:"Row"`
}

type restRow struct {
	Key  string     `json:"key"`
	Cell []restCell `json:"Cell"`
}

type restCell struct {
	Column string `json:"column"`
	Value  string `json:"$"`
}

type scannerSpec struct {
	Batch  int    `json:"batch"`
	Filter string `json:"filter,omitempty"`
}

// statusError is a non-2xx gateway response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("hbase rest: status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// translateError maps gateway responses and HBase exceptions onto the
// package sentinels.
func translateError(table string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "TableNotFoundException"):
		return fmt.Errorf("%w: %s: %v", ErrTableNotFound, table, err)
	case strings.Contains(msg, "TableExistsException"):
		return fmt.Errorf("%w: %s: %v", ErrTableExists, table, err)
	case strings.Contains(msg, "TableNotDisabledException"):
		return fmt.Errorf("%w: %s: %v", ErrTableEnabled, table, err)
	case strings.Contains(msg, "TableNotEnabledException"):
		return fmt.Errorf("%w: %s: %v", ErrTableDisabled, table, err)
	case strings.Contains(msg, "NoSuchColumnFamilyException"):
		return fmt.Errorf("%w: %s: %v", ErrUnknownFamily, table, err)
	}
	var se *statusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return err
}

// do sends a request and returns the response for 2xx statuses.
// The caller closes the body.
func (h *HBaseStore) do(ctx context.Context, method, rawURL string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{Status: resp.StatusCode, Body: string(msg)}
	}
	return resp, nil
}

// call sends a request and discards the response body.
func (h *HBaseStore) call(ctx context.Context, method, rawURL string, body any) error {
	resp, err := h.do(ctx, method, rawURL, body)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (h *HBaseStore) tableURL(table string, parts ...string) string {
	u := h.baseURL + "/" + url.PathEscape(table)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// Ping checks that the gateway answers.
func (h *HBaseStore) Ping(ctx context.Context) error {
	return h.call(ctx, http.MethodGet, h.baseURL+"/version/cluster", nil)
}

// DisableTable checks that the table exists. The gateway has no disable
// endpoint; deleting the schema disables the table server side.
func (h *HBaseStore) DisableTable(ctx context.Context, table string) error {
	return translateError(table, h.call(ctx, http.MethodGet, h.tableURL(table, "schema"), nil))
}

// DeleteTable drops the table and all of its data.
func (h *HBaseStore) DeleteTable(ctx context.Context, table string) error {
	return translateError(table, h.call(ctx, http.MethodDelete, h.tableURL(table, "schema"), nil))
}

// CreateTable creates the table with default family attributes.
func (h *HBaseStore) CreateTable(ctx context.Context, table string, families []FamilyDescriptor) error {
	// PUT on an existing schema replaces it, so check first.
	err := h.call(ctx, http.MethodGet, h.tableURL(table, "schema"), nil)
	if err == nil {
		return fmt.Errorf("%w: %s", ErrTableExists, table)
	}
	if !errors.Is(translateError(table, err), ErrTableNotFound) {
		return err
	}

	schema := tableSchema{Name: table}
	for _, f := range families {
		schema.ColumnSchema = append(schema.ColumnSchema, columnSchema{Name: f.Name})
	}
	return translateError(table, h.call(ctx, http.MethodPut, h.tableURL(table, "schema"), schema))
}

// Apply sends all mutations as one multi-row cell set.
func (h *HBaseStore) Apply(ctx context.Context, table string, mutations []Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	set := cellSet{Row: make([]restRow, 0, len(mutations))}
	for _, m := range mutations {
		if m.Row == "" {
			return ErrEmptyRowKey
		}
		row := restRow{Key: b64(m.Row)}
		for fam, quals := range m.Cells {
			for q, v := range quals {
				row.Cell = append(row.Cell, restCell{
					Column: b64(fam + ":" + q),
					Value:  base64.StdEncoding.EncodeToString(v),
				})
			}
		}
		set.Row = append(set.Row, row)
	}

	// The row in the URL is ignored when the body carries row keys.
	err := h.call(ctx, http.MethodPut, h.tableURL(table, "batch"), set)
	if err != nil {
		return fmt.Errorf("cfstore: %d puts to %s failed: %w", len(mutations), table, translateError(table, err))
	}
	return nil
}

// CountRows pages through a first-key-only scanner.
func (h *HBaseStore) CountRows(ctx context.Context, table string) (int64, error) {
	resp, err := h.do(ctx, http.MethodPut, h.tableURL(table, "scanner"),
		scannerSpec{Batch: scannerBatch, Filter: firstKeyOnlyFilter})
	if err != nil {
		return 0, translateError(table, err)
	}
	resp.Body.Close()

	scanner := resp.Header.Get("Location")
	if scanner == "" {
		return 0, fmt.Errorf("cfstore: scanner for %s has no location", table)
	}
	defer h.call(context.WithoutCancel(ctx), http.MethodDelete, scanner, nil)

	var (
		n    int64
		last string
	)
	for {
		page, err := h.do(ctx, http.MethodGet, scanner, nil)
		if err != nil {
			return n, translateError(table, err)
		}
		if page.StatusCode == http.StatusNoContent {
			page.Body.Close()
			return n, nil
		}

		var set cellSet
		err = json.NewDecoder(page.Body).Decode(&set)
		page.Body.Close()
		if err != nil {
			return n, fmt.Errorf("cfstore: decode scanner page: %w", err)
		}
		// A row can continue on the next page.
		for _, r := range set.Row {
			if r.Key != last {
				n++
				last = r.Key
			}
		}
	}
}

// Close releases idle connections.
func (h *HBaseStore) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
