// Package client talks to the chat API over HTTP and the event websocket.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"

	"github.com/yigit/educhat/internal/app/models"
	"github.com/yigit/educhat/internal/app/models/dto"
	ws "github.com/yigit/educhat/internal/pkg/websocket"
)

// APIError is a failed API response
type APIError struct {
	Status int
	Code   dto.ErrorCode
	Msg    string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Msg, e.Status)
}

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *dto.ErrorDetail `json:"error"`
}

// Client calls the /api/v1 endpoints as one user
type Client struct {
	baseURL string
	token   string
	http    *fasthttp.Client
	dialer  *websocket.Dialer
}

// New creates a client for baseURL (e.g. http://localhost:4000). token may be
// empty until Login is called.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &fasthttp.Client{
			Name:         "educhat-cli",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}
}

// Token returns the access token in use
func (c *Client) Token() string { return c.token }

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + "/api/v1" + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType(contentType)
		req.SetBody(body)
	}

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.http.DoDeadline(req, resp, deadline)
	} else {
		err = c.http.Do(req, resp)
	}
	if err != nil {
		return fmt.Errorf("error calling %s %s: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &APIError{Status: resp.StatusCode(), Msg: strings.TrimSpace(string(resp.Body()))}
	}
	if !env.Success || resp.StatusCode() >= 300 {
		apiErr := &APIError{Status: resp.StatusCode()}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Msg = env.Error.Message
		}
		return apiErr
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

// Login exchanges credentials for a token and keeps it
func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.doJSON(ctx, fasthttp.MethodPost, "/auth/login", dto.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.token = resp.Token.AccessToken
	return &resp, nil
}

// ListChats returns the chats of the signed-in user
func (c *Client) ListChats(ctx context.Context) ([]*models.Chat, error) {
	var resp dto.ChatListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// ListMessages returns the messages of a chat in order
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]*models.Message, error) {
	var resp dto.MessageListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage appends a message. A draft with a file must reference a binary
// already stored through Upload.
func (c *Client) SendMessage(ctx context.Context, chatID string, draft models.MessageDraft) (*models.Message, error) {
	req := dto.SendMessageRequest{
		Text:    draft.Text,
		Type:    string(draft.Type),
		ReplyTo: draft.ReplyTo,
		FileRef: draft.File,
	}
	var msg models.Message
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendFile uploads r and appends a message referencing it
func (c *Client) SendFile(ctx context.Context, chatID string, draft models.MessageDraft, name, mimeType string, r io.Reader) (*models.Message, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range map[string]string{"text": draft.Text, "type": string(draft.Type), "replyTo": draft.ReplyTo} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(field, value); err != nil {
			return nil, err
		}
	}
	if err := writeFilePart(mw, name, mimeType, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg models.Message
	err := c.do(ctx, fasthttp.MethodPost, "/chats/"+url.PathEscape(chatID)+"/messages", mw.FormDataContentType(), buf.Bytes(), &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Upload stores a binary without sending a message
func (c *Client) Upload(ctx context.Context, name, mimeType string, r io.Reader) (*dto.UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := writeFilePart(mw, name, mimeType, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp dto.UploadResponse
	if err := c.do(ctx, fasthttp.MethodPost, "/upload", mw.FormDataContentType(), buf.Bytes(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func writeFilePart(mw *multipart.Writer, name, mimeType string, r io.Reader) error {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

// React adds one emoji to a message and returns the new count
func (c *Client) React(ctx context.Context, chatID, messageID, emoji string) (int, error) {
	var resp dto.ReactionResponse
	path := "/chats/" + url.PathEscape(chatID) + "/messages/" + url.PathEscape(messageID) + "/reactions"
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, dto.ReactionRequest{Emoji: emoji}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Search runs a server-side search in a chat
func (c *Client) Search(ctx context.Context, chatID, query string) (*dto.SearchResponse, error) {
	var resp dto.SearchResponse
	path := "/chats/" + url.PathEscape(chatID) + "/messages/search?q=" + url.QueryEscape(query)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Subscribe streams chat events to fn until ctx ends or the connection drops
func (c *Client) Subscribe(ctx context.Context, chatID string, fn func(*ws.Event)) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/chats/" + url.PathEscape(chatID) + "/ws"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("error dialing event stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		var event ws.Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		fn(&event)
	}
}
