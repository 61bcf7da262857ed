// Package recorder looks up what a nasne network recorder is currently
// playing: the title of a recording being watched, or else the name of the
// channel the tuner is on.
//
// Errors carry the endpoint through errors.Wrapf so a failed lookup logs
// which step of the chain broke.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"yuributton/internal/logger"
)

const (
	StatusPort   = 64210
	RecordedPort = 64220
)

type clientList struct {
	Client []struct {
		Content *struct {
			ID json.RawMessage `json:"id"`
		} `json:"content"`
	} `json:"client"`
}

type titleList struct {
	Item []struct {
		Title string `json:"title"`
	} `json:"item"`
}

type boxStatus struct {
	TuningStatus *struct {
		NetworkID         int `json:"networkId"`
		TransportStreamID int `json:"transportStreamId"`
		ServiceID         int `json:"serviceId"`
	} `json:"tuningStatus"`
}

type channelInfo struct {
	Channel *struct {
		Title string `json:"title"`
	} `json:"channel"`
}

// Client queries the nasne HTTP API.
type Client struct {
	statusURL   string
	recordedURL string
	httpClient  *http.Client
	logger      *logger.Logger
}

// New returns a client for the nasne at ip. An empty ip yields a client whose
// lookups always return no title.
func New(ip string, httpClient *http.Client, logger *logger.Logger) *Client {
	if ip == "" {
		return NewWithURLs("", "", httpClient, logger)
	}
	return NewWithURLs(
		fmt.Sprintf("http://%s:%d", ip, StatusPort),
		fmt.Sprintf("http://%s:%d", ip, RecordedPort),
		httpClient, logger)
}

// NewWithURLs builds a client from explicit base URLs of the status and
// recorded-title services.
func NewWithURLs(statusURL, recordedURL string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		statusURL:   strings.TrimRight(statusURL, "/"),
		recordedURL: strings.TrimRight(recordedURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
	}
}

// Title returns the current title or "" if it cannot be determined. It never
// fails; the reason for an empty result is logged.
func (c *Client) Title(ctx context.Context) string {
	if c.statusURL == "" {
		return ""
	}
	title, err := c.LookupTitle(ctx)
	if err != nil {
		c.logger.Warning("nasne title lookup failed: %v", err)
		return ""
	}
	return title
}

// LookupTitle resolves the title of what is being watched. A client playing a
// recording wins over the live tuner.
func (c *Client) LookupTitle(ctx context.Context) (string, error) {
	var clients clientList
	if err := c.getJSON(ctx, c.statusURL+"/status/dtcpipClientListGet", nil, &clients); err != nil {
		return "", err
	}
	if len(clients.Client) == 0 {
		return "", errors.New("dtcpipClientListGet: no client")
	}

	if content := clients.Client[0].Content; content != nil {
		return c.recordedTitle(ctx, rawID(content.ID))
	}
	return c.onAirTitle(ctx)
}

func (c *Client) recordedTitle(ctx context.Context, id string) (string, error) {
	params := url.Values{}
	for _, key := range []string{"searchCriteria", "filter", "startingIndex", "requestedCount", "sortCriteria"} {
		params.Set(key, "0")
	}
	params.Set("id", id)

	var titles titleList
	if err := c.getJSON(ctx, c.recordedURL+"/recorded/titleListGet", params, &titles); err != nil {
		return "", err
	}
	if len(titles.Item) == 0 {
		return "", errors.Errorf("titleListGet: no item for id %s", id)
	}
	return titles.Item[0].Title, nil
}

func (c *Client) onAirTitle(ctx context.Context) (string, error) {
	var status boxStatus
	if err := c.getJSON(ctx, c.statusURL+"/status/boxStatusListGet", nil, &status); err != nil {
		return "", err
	}
	tuning := status.TuningStatus
	if tuning == nil {
		return "", errors.New("boxStatusListGet: no tuningStatus")
	}

	params := url.Values{}
	params.Set("networkId", strconv.Itoa(tuning.NetworkID))
	params.Set("transportStreamId", strconv.Itoa(tuning.TransportStreamID))
	params.Set("serviceId", strconv.Itoa(tuning.ServiceID))

	var info channelInfo
	if err := c.getJSON(ctx, c.statusURL+"/status/channelInfoGet2", params, &info); err != nil {
		return "", err
	}
	if info.Channel == nil {
		return "", errors.New("channelInfoGet2: no channel")
	}
	return info.Channel.Title, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, v interface{}) error {
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", endpoint)
	}
	return nil
}

// rawID accepts both string and numeric ids.
func rawID(raw json.RawMessage) string {
	return strings.Trim(string(raw), `"`)
}
