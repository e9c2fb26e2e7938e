package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mediarelay/mediarelay/upload"
)

// Update is one long-poll result from the platform.
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message,omitempty"`
}

// IncomingMessage is a user message delivered through GetUpdates.
type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	ChatID    int64  `json:"chat_id"`
	UserID    int64  `json:"user_id"`
	Text      string `json:"text"`
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

type editMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
}

type sendMediaRequest struct {
	ChatID int64  `json:"chat_id"`
	Kind   string `json:"kind"` // "audio" or "video"
	Name   string `json:"name"`

	// Referenced upload: the parts were transferred beforehand.
	FileID      int64  `json:"file_id,omitempty"`
	Parts       int    `json:"parts,omitempty"`
	MD5Checksum string `json:"md5_checksum,omitempty"`

	// Direct upload: single-part files skip the transfer endpoints and
	// travel with the message itself.
	Bytes []byte `json:"bytes,omitempty"`
}

type getUpdatesResponse struct {
	Updates []Update `json:"updates"`
}

// MessageClient is the control-plane client: sending and editing messages,
// attaching uploaded files, polling for updates. Control-plane calls are
// retried transparently, unlike part transfers.
type MessageClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	token      string
	logger     log.Logger
}

// NewMessageClient ...
func NewMessageClient(httpClient *retryablehttp.Client, baseURL, token string, logger log.Logger) *MessageClient {
	return &MessageClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
}

// SendMessage posts a text message and returns the created message ID.
func (c *MessageClient) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var response sendMessageResponse
	err := c.call(ctx, "messages.send", sendMessageRequest{ChatID: chatID, Text: text}, &response)
	if err != nil {
		return 0, err
	}
	return response.MessageID, nil
}

// EditMessage replaces the text of a previously sent message.
func (c *MessageClient) EditMessage(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "messages.edit", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}, nil)
}

// SendMedia attaches an uploaded file to an outbound message. Single-part
// uploads never hit the transfer endpoints, so their bytes are attached
// directly; multi-part uploads are referenced by file identifier.
func (c *MessageClient) SendMedia(ctx context.Context, chatID int64, ref upload.FileReference, path string, isAudio bool) error {
	request := sendMediaRequest{
		ChatID: chatID,
		Kind:   "video",
		Name:   ref.DisplayName(),
	}
	if isAudio {
		request.Kind = "audio"
	}

	if ref.PartCount() == 1 {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read single-part file: %w", err)
		}
		request.Bytes = data
	} else {
		request.FileID = ref.FileID()
		request.Parts = ref.PartCount()
	}

	if small, ok := ref.(upload.SmallFileReference); ok {
		request.MD5Checksum = small.MD5Checksum
	}

	return c.call(ctx, "messages.sendMedia", request, nil)
}

// GetUpdates long-polls for updates newer than the given offset.
func (c *MessageClient) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var response getUpdatesResponse
	err := c.call(ctx, "updates.get", map[string]int64{"offset": offset}, &response)
	if err != nil {
		return nil, err
	}
	return response.Updates, nil
}

func (c *MessageClient) call(ctx context.Context, method string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, method)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if err := classifyStatus(resp, method); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}
