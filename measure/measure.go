// Package measure queries the USGS instantaneous-values web service for
// observed streamflow at gaged reaches, converts to metric, and caches
// responses in SQLite to spare the service repeated queries for the same
// (site, instant) across retries and ensemble members (spec §6).
package measure

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/erdc/rapidflow/rferrors"
)

// cfsToCMS converts cubic feet per second to cubic meters per second, the
// USGS service's native unit to RAPID's.
const cfsToCMS = 1 / 35.3146667

// Client queries USGS NWIS for gage flow, backed by a local SQLite cache.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	db         *sql.DB
}

// NewClient opens (creating if necessary) a SQLite cache at cachePath and
// returns a ready-to-use Client.
func NewClient(cachePath string) (*Client, error) {
	db, err := sql.Open("sqlite3", cachePath)
	if err != nil {
		return nil, fmt.Errorf("rapidflow: opening measurement cache %s: %w", cachePath, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS gage_flow (
		site TEXT NOT NULL,
		at_time TEXT NOT NULL,
		flow_cms REAL NOT NULL,
		fetched_at TEXT NOT NULL,
		PRIMARY KEY (site, at_time)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("rapidflow: creating cache schema: %w", err)
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		BaseURL:    "https://waterservices.usgs.gov/nwis/iv/",
		db:         db,
	}, nil
}

// Close closes the underlying cache database.
func (c *Client) Close() error { return c.db.Close() }

// Flow returns the observed flow in m3/s at site for the instant t,
// querying the cache first and falling back to the live service,
// interpolating linearly between the two bracketing instantaneous values
// when they are within one hour of t (spec §6).
func (c *Client) Flow(ctx context.Context, site string, t time.Time) (float64, error) {
	if v, ok, err := c.cacheLookup(site, t); err != nil {
		return 0, err
	} else if ok {
		return v, nil
	}

	v, err := c.fetchAndInterpolate(ctx, site, t)
	if err != nil {
		return 0, err
	}
	c.cacheStore(site, t, v)
	return v, nil
}

func (c *Client) cacheLookup(site string, t time.Time) (float64, bool, error) {
	row := c.db.QueryRow(`SELECT flow_cms FROM gage_flow WHERE site = ? AND at_time = ?`, site, t.UTC().Format(time.RFC3339))
	var v float64
	err := row.Scan(&v)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("rapidflow: reading measurement cache: %w", err)
	}
	return v, true, nil
}

func (c *Client) cacheStore(site string, t time.Time, v float64) {
	c.db.Exec(`INSERT OR REPLACE INTO gage_flow (site, at_time, flow_cms, fetched_at) VALUES (?, ?, ?, ?)`,
		site, t.UTC().Format(time.RFC3339), v, time.Now().UTC().Format(time.RFC3339))
}

type ivResponse struct {
	Value struct {
		TimeSeries []struct {
			Values []struct {
				Value []struct {
					Value    string `json:"value"`
					DateTime string `json:"dateTime"`
				} `json:"value"`
			} `json:"values"`
		} `json:"timeSeries"`
	} `json:"value"`
}

func (c *Client) fetchAndInterpolate(ctx context.Context, site string, t time.Time) (float64, error) {
	var result float64
	op := func() error {
		v, err := c.fetchOnce(ctx, site, t)
		if err != nil {
			return err
		}
		result = v
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(op, backoff.WithContext(eb, ctx)); err != nil {
		return 0, fmt.Errorf("%w: site %s: %v", rferrors.ErrNetworkTransient, site, err)
	}
	return result, nil
}

func (c *Client) fetchOnce(ctx context.Context, site string, t time.Time) (float64, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("sites", site)
	q.Set("startDT", t.Add(-24*time.Hour).Format("2006-01-02"))
	q.Set("endDT", t.Format("2006-01-02"))
	q.Set("parameterCd", "00060")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, err // transient, retryable
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return 0, fmt.Errorf("usgs service returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, backoff.Permanent(fmt.Errorf("usgs service returned %d", resp.StatusCode))
	}

	var parsed ivResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, backoff.Permanent(fmt.Errorf("decoding usgs response: %w", err))
	}
	if len(parsed.Value.TimeSeries) == 0 || len(parsed.Value.TimeSeries[0].Values) == 0 {
		return 0, backoff.Permanent(fmt.Errorf("no data returned for site %s", site))
	}

	return interpolate(parsed.Value.TimeSeries[0].Values[0].Value, t)
}

func interpolate(points []struct {
	Value    string `json:"value"`
	DateTime string `json:"dateTime"`
}, target time.Time) (float64, error) {
	var prevTime time.Time
	var prevFlow float64
	havePrev := false

	for _, p := range points {
		pt, err := time.Parse(time.RFC3339, p.DateTime)
		if err != nil {
			continue
		}
		var flowCFS float64
		if _, err := fmt.Sscanf(p.Value, "%f", &flowCFS); err != nil {
			continue
		}
		flow := flowCFS * cfsToCMS

		if pt.Equal(target) {
			if flow > 0 {
				return flow, nil
			}
			break
		}
		if pt.After(target) {
			if havePrev && pt.Sub(prevTime) <= time.Hour {
				frac := target.Sub(prevTime).Seconds() / pt.Sub(prevTime).Seconds()
				return prevFlow + frac*(flow-prevFlow), nil
			}
			break
		}
		prevTime, prevFlow, havePrev = pt, flow, true
	}
	return 0, fmt.Errorf("no usable observation near %s", target.Format(time.RFC3339))
}
