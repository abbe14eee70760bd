package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	sheetsScope   = "https://www.googleapis.com/auth/spreadsheets"
	sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"
)

// Google implements Service against the Google Sheets v4 REST API.
type Google struct {
	client  *http.Client
	baseURL string
}

// NewGoogle builds a client from service-account credentials JSON.
func NewGoogle(ctx context.Context, credentialsJSON []byte) (*Google, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse google credentials: %w", err)
	}
	client := oauth2.NewClient(ctx, creds.TokenSource)
	client.Timeout = 30 * time.Second
	return &Google{client: client, baseURL: sheetsBaseURL}, nil
}

// NewGoogleWithClient builds a client over a caller-supplied HTTP client and
// base URL. Used by tests to point at a stub server.
func NewGoogleWithClient(client *http.Client, baseURL string) *Google {
	if baseURL == "" {
		baseURL = sheetsBaseURL
	}
	return &Google{client: client, baseURL: baseURL}
}

func (g *Google) Create(ctx context.Context, title string, header []string) (*Ref, error) {
	body := map[string]any{
		"properties": map[string]any{"title": title},
	}
	var resp struct {
		SpreadsheetID  string `json:"spreadsheetId"`
		SpreadsheetURL string `json:"spreadsheetUrl"`
	}
	if err := g.post(ctx, g.baseURL, body, &resp); err != nil {
		return nil, err
	}
	ref := &Ref{ID: resp.SpreadsheetID, URL: resp.SpreadsheetURL}

	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := g.append(ctx, ref, headerRow); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return ref, nil
}

func (g *Google) AppendRow(ctx context.Context, ref *Ref, row []string) error {
	values := make([]any, len(row))
	for i, v := range row {
		values[i] = v
	}
	return g.append(ctx, ref, values)
}

func (g *Google) append(ctx context.Context, ref *Ref, row []any) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW",
		g.baseURL, url.PathEscape(ref.ID), url.PathEscape("Sheet1!A1"))
	body := map[string]any{"values": []any{row}}
	return g.post(ctx, endpoint, body, nil)
}

func (g *Google) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sheets api status %d: %s", resp.StatusCode, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
