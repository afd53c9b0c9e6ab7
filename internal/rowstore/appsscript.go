package rowstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 20 * time.Second
)

// AppsScriptClient talks to a Google Apps Script web app that fronts a
// spreadsheet. Every request is JSON over HTTP; the script answers with a
// {success, data, error} envelope and a missing success flag is treated as
// failure.
type AppsScriptClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAppsScriptClient creates a client targeting the deployed script URL.
func NewAppsScriptClient(baseURL string) *AppsScriptClient {
	return &AppsScriptClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0,
		},
	}
}

// envelope mirrors the Apps Script response shape. Cells come back as mixed
// JSON types (the sheet stores numbers as numbers), so data is decoded
// tolerantly and stringified.
type envelope struct {
	Success *bool             `json:"success"`
	Data    [][]json.RawMessage `json:"data"`
	Error   string            `json:"error"`
}

func (c *AppsScriptClient) ListRows(ctx context.Context, table string) ([]Row, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	u := fmt.Sprintf("%s?action=getRows&sheet=%s", c.baseURL, url.QueryEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &TransportError{Op: "list", Table: table, Err: err}
	}

	env, err := c.do(req)
	if err != nil {
		return nil, &TransportError{Op: "list", Table: table, Err: err}
	}

	rows := make([]Row, len(env.Data))
	for i, raw := range env.Data {
		rows[i] = decodeCells(raw)
	}
	return rows, nil
}

func (c *AppsScriptClient) AppendRow(ctx context.Context, table string, row Row) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	u := fmt.Sprintf("%s?action=appendRow&sheet=%s", c.baseURL, url.QueryEscape(table))
	if err := c.post(ctx, u, map[string]any{"values": row}); err != nil {
		return &TransportError{Op: "append", Table: table, Err: err}
	}
	return nil
}

func (c *AppsScriptClient) UpdateRow(ctx context.Context, table string, rowIndex int, row Row) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	u := fmt.Sprintf("%s?action=updateRow&sheet=%s", c.baseURL, url.QueryEscape(table))
	if err := c.post(ctx, u, map[string]any{"row": rowIndex, "values": row}); err != nil {
		return &TransportError{Op: "update", Table: table, Err: err}
	}
	return nil
}

// InitializeSchema asks the script to create missing sheets and headers, then
// pins the Contacts headers to the nine-column layout this service expects.
func (c *AppsScriptClient) InitializeSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.post(ctx, c.baseURL+"?action=initializeHeaders", map[string]any{}); err != nil {
		return &TransportError{Op: "init", Err: err}
	}

	u := fmt.Sprintf("%s?action=ensureHeaders&sheet=%s", c.baseURL, url.QueryEscape(TableContacts))
	if err := c.post(ctx, u, map[string]any{"headers": ContactsHeaders}); err != nil {
		return &TransportError{Op: "init", Table: TableContacts, Err: err}
	}
	return nil
}

func (c *AppsScriptClient) post(ctx context.Context, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

func (c *AppsScriptClient) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if env.Success == nil {
		return nil, fmt.Errorf("malformed response: no success flag")
	}
	if !*env.Success {
		if env.Error != "" {
			return nil, fmt.Errorf("script error: %s", env.Error)
		}
		return nil, fmt.Errorf("script reported failure")
	}
	return &env, nil
}

// decodeCells stringifies a row of mixed-type JSON cells. Numbers lose their
// JSON type but keep their text form, which is how the sheet rendered them.
func decodeCells(raw []json.RawMessage) Row {
	row := make(Row, len(raw))
	for i, cell := range raw {
		var s string
		if err := json.Unmarshal(cell, &s); err == nil {
			row[i] = s
			continue
		}
		var f float64
		if err := json.Unmarshal(cell, &f); err == nil {
			row[i] = strconv.FormatFloat(f, 'f', -1, 64)
			continue
		}
		var b bool
		if err := json.Unmarshal(cell, &b); err == nil {
			row[i] = strconv.FormatBool(b)
			continue
		}
		row[i] = strings.Trim(string(cell), `"`)
	}
	return row
}
