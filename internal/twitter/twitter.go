package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/dghubble/oauth1"
	"gocv.io/x/gocv"

	"yuributton/internal/config"
	"yuributton/internal/logger"
)

const uploadFilename = "__upload.png"

type mediaResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// Client uploads images and posts statuses. Every failure is logged and
// reported as an empty id or false; nothing is retried.
type Client struct {
	uploadURL  string
	statusURL  string
	httpClient *http.Client
	logger     *logger.Logger
}

// New returns a client signing requests with the configured OAuth1 consumer
// and access credentials.
func New(cfg *config.Config, logger *logger.Logger) *Client {
	oauthConfig := oauth1.NewConfig(cfg.TwitterConsumerKey, cfg.TwitterConsumerSecret)
	token := oauth1.NewToken(cfg.TwitterAccessToken, cfg.TwitterAccessSecret)

	httpClient := oauthConfig.Client(context.Background(), token)
	httpClient.Timeout = cfg.HTTPTimeout

	return NewWithHTTPClient(cfg.TwitterUploadURL, cfg.TwitterStatusURL, httpClient, logger)
}

// NewWithHTTPClient uses httpClient as is for both endpoints.
func NewWithHTTPClient(uploadURL, statusURL string, httpClient *http.Client, logger *logger.Logger) *Client {
	return &Client{
		uploadURL:  uploadURL,
		statusURL:  statusURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// UploadMedia encodes frame as PNG and uploads it. It returns the media id,
// or "" if anything went wrong.
func (c *Client) UploadMedia(ctx context.Context, frame gocv.Mat) string {
	data, err := encodePNG(frame)
	if err != nil {
		c.logger.Warning("img upload failed: %v", err)
		return ""
	}

	id, err := c.upload(ctx, data)
	if err != nil {
		c.logger.Warning("img upload failed: %v", err)
		return ""
	}
	return id
}

// Publish uploads raw and annotated in that order and posts message with
// whatever ids the uploads returned.
func (c *Client) Publish(ctx context.Context, message string, raw, annotated gocv.Mat) bool {
	rawID := c.UploadMedia(ctx, raw)
	annotatedID := c.UploadMedia(ctx, annotated)
	return c.Post(ctx, message, rawID, annotatedID)
}

// Post publishes message with the given media. Either id may be empty, but
// not both: then nothing is sent and Post returns false.
func (c *Client) Post(ctx context.Context, message, rawID, annotatedID string) bool {
	if rawID == "" && annotatedID == "" {
		c.logger.Warning("img upload failed.")
		return false
	}

	if err := c.postStatus(ctx, message, []string{rawID, annotatedID}); err != nil {
		c.logger.Error("status post failed: %v", err)
		return false
	}
	return true
}

func encodePNG(frame gocv.Mat) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}

func (c *Client) upload(ctx context.Context, data []byte) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("media", uploadFilename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	var media mediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if media.MediaIDString == "" {
		return "", fmt.Errorf("upload response has no media_id_string")
	}
	return media.MediaIDString, nil
}

func (c *Client) postStatus(ctx context.Context, message string, mediaIDs []string) error {
	params := url.Values{}
	params.Set("status", message)
	params.Set("media_ids", strings.Join(mediaIDs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.statusURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status post returned code %d", resp.StatusCode)
	}
	return nil
}
