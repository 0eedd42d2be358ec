package sheets

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"
)

// sheetAPI is the slice of the Sheets API the exporter uses.
type sheetAPI interface {
	SheetTitles(ctx context.Context) ([]string, error)
	AddSheet(ctx context.Context, title string) error
	Clear(ctx context.Context, rng string) error
	Update(ctx context.Context, rng string, rows [][]interface{}) error
}

type Client struct {
	api           sheetAPI
	spreadsheetID string
}

func New(ctx context.Context, serviceAccountJSONPath, spreadsheetID string) (*Client, error) {
	if _, err := os.Stat(serviceAccountJSONPath); err != nil {
		return nil, fmt.Errorf("service account json: %w", err)
	}
	srv, err := sheetsv4.NewService(ctx,
		option.WithCredentialsFile(serviceAccountJSONPath),
		option.WithScopes(sheetsv4.SpreadsheetsScope),
	)
	if err != nil {
		return nil, err
	}
	return &Client{api: &googleAPI{srv: srv, id: spreadsheetID}, spreadsheetID: spreadsheetID}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// URL is the browser link of the spreadsheet.
func (c *Client) URL() string {
	return "https://docs.google.com/spreadsheets/d/" + c.spreadsheetID
}

type googleAPI struct {
	srv *sheetsv4.Service
	id  string
}

func (g *googleAPI) SheetTitles(ctx context.Context) ([]string, error) {
	ss, err := g.srv.Spreadsheets.Get(g.id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (g *googleAPI) AddSheet(ctx context.Context, title string) error {
	req := &sheetsv4.BatchUpdateSpreadsheetRequest{Requests: []*sheetsv4.Request{{
		AddSheet: &sheetsv4.AddSheetRequest{Properties: &sheetsv4.SheetProperties{Title: title}},
	}}}
	_, err := g.srv.Spreadsheets.BatchUpdate(g.id, req).Context(ctx).Do()
	return err
}

func (g *googleAPI) Clear(ctx context.Context, rng string) error {
	_, err := g.srv.Spreadsheets.Values.Clear(g.id, rng, &sheetsv4.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

func (g *googleAPI) Update(ctx context.Context, rng string, rows [][]interface{}) error {
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := g.srv.Spreadsheets.Values.Update(g.id, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}
