package sosafe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"santiago-a-pie/models"
)

// Incident is one item of the SoSafe incident feed.
type Incident struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ReportedAt  string  `json:"reported_at"`
}

// feedPage is one page of the paginated feed.
type feedPage struct {
	Items    []Incident `json:"items"`
	NextPage int        `json:"next_page"`
}

// Client fetches incidents from the SoSafe feed.
type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a SoSafe feed client.
func NewClient(baseURL, apiKey string, pageSize int) *Client {
	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: pageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchIncidents returns all incidents reported after since, walking the
// feed's pagination.
func (c *Client) FetchIncidents(ctx context.Context, since time.Time) ([]Incident, error) {
	incidents := []Incident{}
	page := 1
	for page > 0 {
		fp, err := c.fetchPage(ctx, since, page)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, fp.Items...)
		page = fp.NextPage
	}
	return incidents, nil
}

func (c *Client) fetchPage(ctx context.Context, since time.Time, page int) (*feedPage, error) {
	u, err := url.Parse(c.baseURL + "/incidents")
	if err != nil {
		return nil, fmt.Errorf("invalid feed URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(c.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	fp := &feedPage{}
	if err := json.NewDecoder(resp.Body).Decode(fp); err != nil {
		return nil, fmt.Errorf("failed to decode feed page: %w", err)
	}
	return fp, nil
}

// incidentMapping maps a SoSafe incident type onto an internal category and
// a default severity.
type incidentMapping struct {
	category string
	severity int
}

var incidentMappings = map[string]incidentMapping{
	"robbery":        {models.CategoryCrime, 5},
	"assault":        {models.CategoryCrime, 5},
	"theft":          {models.CategoryCrime, 4},
	"harassment":     {models.CategoryHarassment, 4},
	"suspicious":     {models.CategoryCrime, 2},
	"dark_street":    {models.CategoryPoorLighting, 3},
	"broken_light":   {models.CategoryPoorLighting, 3},
	"sidewalk":       {models.CategoryBrokenPath, 2},
	"pothole":        {models.CategoryBrokenPath, 2},
	"reckless_drive": {models.CategoryTraffic, 3},
	"stray_dog":      {models.CategoryDog, 2},
}

// MapIncident converts a feed incident to an internal report. Unknown
// incident types land in the "other" category at low severity.
func MapIncident(in *Incident) *models.Report {
	m, ok := incidentMappings[in.Type]
	if !ok {
		m = incidentMapping{models.CategoryOther, 2}
	}
	return &models.Report{
		Source:     models.SourceSoSafe,
		ReporterID: "sosafe-import",
		ExternalID: in.ID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Category:   m.category,
		Severity:   m.severity,
		Comment:    in.Description,
		Timestamp:  in.ReportedAt,
	}
}
