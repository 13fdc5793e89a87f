package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"wow-tracker/internal/constants"
)

// TelegramSender delivers digest messages. The Telegram bot API is the real
// implementation; tests swap in a fake.
type TelegramSender interface {
	SendMessage(ctx context.Context, botToken, chatID, text string) (string, error)
}

type TelegramClient struct {
	client *fasthttp.Client
}

func NewTelegramClient() *TelegramClient {
	return &TelegramClient{
		client: &fasthttp.Client{
			MaxConnsPerHost:     10,
			ReadTimeout:         constants.SendTimeout,
			WriteTimeout:        constants.SendTimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

// SendMessage posts one plain-text message and returns Telegram's message ID.
// Any response without ok=true and a message ID is a hard failure.
func (c *TelegramClient) SendMessage(ctx context.Context, botToken, chatID, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	})
	if err != nil {
		return "", err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", botToken))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.Do(req, resp)
	}
	if err != nil {
		return "", fmt.Errorf("telegram sendMessage: %w", err)
	}

	var payload struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		ErrorCode   int    `json:"error_code"`
		Result      struct {
			MessageID json.Number `json:"message_id"`
		} `json:"result"`
	}
	decodeErr := json.Unmarshal(resp.Body(), &payload)

	if resp.StatusCode() != fasthttp.StatusOK || decodeErr != nil || !payload.OK {
		description := payload.Description
		if description == "" {
			description = string(resp.Body())
		}
		statusCode := payload.ErrorCode
		if statusCode == 0 {
			statusCode = resp.StatusCode()
		}
		return "", fmt.Errorf("telegram sendMessage failed (%d): %s", statusCode, description)
	}

	messageID := payload.Result.MessageID.String()
	if messageID == "" {
		return "", fmt.Errorf("telegram sendMessage succeeded but response did not include result.message_id")
	}
	return messageID, nil
}
