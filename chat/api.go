package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	// see https://medium.com/@nate510/don-t-use-go-s-default-http-client-4804cb19f779
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// ChatApi is the rest collaborator: snapshot/backfill reads, message
// writes, and catalog management. the bearer token is read from the auth
// collaborator on every call, since the socket can swap it mid session.
type ChatApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	auth *Auth
}

func NewChatApi(apiUrl string, auth *Auth) *ChatApi {
	return NewChatApiWithContext(context.Background(), apiUrl, auth)
}

func NewChatApiWithContext(ctx context.Context, apiUrl string, auth *Auth) *ChatApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &ChatApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
		auth:   auth,
	}
}

func (self *ChatApi) token() string {
	if self.auth == nil {
		return ""
	}
	return self.auth.Token()
}

func (self *ChatApi) Close() {
	self.cancel()
}

type GetMessagesCallback apiCallback[*MessagePage]

type MessagePage struct {
	Messages       []*Message `json:"messages"`
	PinnedMessages []*Message `json:"pinned_messages,omitempty"`
	Total          int        `json:"total"`
	HasMore        bool       `json:"has_more"`
}

func (self *ChatApi) GetMessages(limit int, before string, callback GetMessagesCallback) {
	go get(
		self.ctx,
		self.messagesUrl(limit, before),
		self.token(),
		&MessagePage{},
		callback,
	)
}

func (self *ChatApi) GetMessagesSync(limit int, before string) (*MessagePage, error) {
	return get(
		self.ctx,
		self.messagesUrl(limit, before),
		self.token(),
		&MessagePage{},
		NewNoopApiCallback[*MessagePage](),
	)
}

func (self *ChatApi) messagesUrl(limit int, before string) string {
	values := url.Values{}
	values.Set("limit", fmt.Sprintf("%d", limit))
	if before != "" {
		values.Set("before", before)
	}
	return fmt.Sprintf("%s/messages?%s", self.apiUrl, values.Encode())
}

type SendMessageCallback apiCallback[*SendMessageResult]

type SendMessageArgs struct {
	Content   string
	ReplyToId string
	// external media reference, attached server side
	MediaUrl string
	Files    []*FileUpload
}

type FileUpload struct {
	Name string
	Data io.Reader
}

// either a created message, or the outcome of a slash command such as
// `/clear`. the two are distinguished on the wire by the presence of the
// success+command pair.
type SendMessageResult struct {
	Message *Message
	Command *CommandResult
}

type CommandResult struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	Message string `json:"message,omitempty"`
}

func (self *SendMessageResult) UnmarshalJSON(src []byte) error {
	probe := &struct {
		Success *bool  `json:"success"`
		Command string `json:"command"`
	}{}
	if err := json.Unmarshal(src, probe); err != nil {
		return err
	}
	if probe.Success != nil && probe.Command != "" {
		command := &CommandResult{}
		if err := json.Unmarshal(src, command); err != nil {
			return err
		}
		self.Command = command
		return nil
	}
	message := &Message{}
	if err := json.Unmarshal(src, message); err != nil {
		return err
	}
	self.Message = message
	return nil
}

func (self *ChatApi) SendMessage(sendMessage *SendMessageArgs, callback SendMessageCallback) {
	go self.sendMessage(sendMessage, callback)
}

func (self *ChatApi) SendMessageSync(sendMessage *SendMessageArgs) (*SendMessageResult, error) {
	return self.sendMessage(sendMessage, NewNoopApiCallback[*SendMessageResult]())
}

func (self *ChatApi) sendMessage(sendMessage *SendMessageArgs, callback apiCallback[*SendMessageResult]) (*SendMessageResult, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if sendMessage.Content != "" {
		form.WriteField("content", sendMessage.Content)
	}
	if sendMessage.ReplyToId != "" {
		form.WriteField("reply_to_id", sendMessage.ReplyToId)
	}
	if sendMessage.MediaUrl != "" {
		form.WriteField("media_url", sendMessage.MediaUrl)
	}
	for _, file := range sendMessage.Files {
		part, err := form.CreateFormFile("files", file.Name)
		if err != nil {
			callback.Result(nil, err)
			return nil, err
		}
		if _, err := io.Copy(part, file.Data); err != nil {
			callback.Result(nil, err)
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	return request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/messages", self.apiUrl),
		body,
		form.FormDataContentType(),
		self.token(),
		&SendMessageResult{},
		callback,
	)
}

type DeleteMessageCallback apiCallback[*DeleteMessageResult]

type DeleteMessageResult struct {
	Message string `json:"message,omitempty"`
}

func (self *ChatApi) DeleteMessage(messageId Id, callback DeleteMessageCallback) {
	go request(
		self.ctx,
		"DELETE",
		fmt.Sprintf("%s/messages/%s", self.apiUrl, messageId),
		nil,
		"",
		self.token(),
		&DeleteMessageResult{},
		callback,
	)
}

func (self *ChatApi) DeleteMessageSync(messageId Id) (*DeleteMessageResult, error) {
	return request(
		self.ctx,
		"DELETE",
		fmt.Sprintf("%s/messages/%s", self.apiUrl, messageId),
		nil,
		"",
		self.token(),
		&DeleteMessageResult{},
		NewNoopApiCallback[*DeleteMessageResult](),
	)
}

type PinMessageCallback apiCallback[*PinMessageResult]

type PinMessageResult struct {
	MessageId Id   `json:"message_id"`
	IsPinned  bool `json:"is_pinned"`
}

func (self *ChatApi) PinMessage(messageId Id, callback PinMessageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/messages/%s/pin", self.apiUrl, messageId),
		nil,
		self.token(),
		&PinMessageResult{},
		callback,
	)
}

func (self *ChatApi) PinMessageSync(messageId Id) (*PinMessageResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/messages/%s/pin", self.apiUrl, messageId),
		nil,
		self.token(),
		&PinMessageResult{},
		NewNoopApiCallback[*PinMessageResult](),
	)
}

type ToggleReactionCallback apiCallback[*ToggleReactionResult]

type ToggleReactionArgs struct {
	Emoji string `json:"emoji"`
}

type ToggleReactionResult struct {
	Message string `json:"message,omitempty"`
}

func (self *ChatApi) ToggleReaction(messageId Id, toggleReaction *ToggleReactionArgs, callback ToggleReactionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/messages/%s/reactions", self.apiUrl, messageId),
		toggleReaction,
		self.token(),
		&ToggleReactionResult{},
		callback,
	)
}

func (self *ChatApi) ToggleReactionSync(messageId Id, toggleReaction *ToggleReactionArgs) (*ToggleReactionResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/messages/%s/reactions", self.apiUrl, messageId),
		toggleReaction,
		self.token(),
		&ToggleReactionResult{},
		NewNoopApiCallback[*ToggleReactionResult](),
	)
}

type GetEmojisCallback apiCallback[*EmojiList]

type EmojiList struct {
	Emojis []*CustomEmoji `json:"emojis"`
}

func (self *ChatApi) GetEmojis(callback GetEmojisCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/emojis", self.apiUrl),
		self.token(),
		&EmojiList{},
		callback,
	)
}

func (self *ChatApi) GetEmojisSync() (*EmojiList, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/emojis", self.apiUrl),
		self.token(),
		&EmojiList{},
		NewNoopApiCallback[*EmojiList](),
	)
}

type UploadEmojiCallback apiCallback[*CustomEmoji]

type UploadEmojiArgs struct {
	Name string
	File *FileUpload
}

func (self *ChatApi) UploadEmoji(uploadEmoji *UploadEmojiArgs, callback UploadEmojiCallback) {
	go self.uploadEmoji(uploadEmoji, callback)
}

func (self *ChatApi) UploadEmojiSync(uploadEmoji *UploadEmojiArgs) (*CustomEmoji, error) {
	return self.uploadEmoji(uploadEmoji, NewNoopApiCallback[*CustomEmoji]())
}

func (self *ChatApi) uploadEmoji(uploadEmoji *UploadEmojiArgs, callback apiCallback[*CustomEmoji]) (*CustomEmoji, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	form.WriteField("name", uploadEmoji.Name)
	if uploadEmoji.File != nil {
		part, err := form.CreateFormFile("file", uploadEmoji.File.Name)
		if err != nil {
			callback.Result(nil, err)
			return nil, err
		}
		if _, err := io.Copy(part, uploadEmoji.File.Data); err != nil {
			callback.Result(nil, err)
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		callback.Result(nil, err)
		return nil, err
	}

	return request(
		self.ctx,
		"POST",
		fmt.Sprintf("%s/emojis", self.apiUrl),
		body,
		form.FormDataContentType(),
		self.token(),
		&CustomEmoji{},
		callback,
	)
}

type DeleteEmojiCallback apiCallback[*DeleteEmojiResult]

type DeleteEmojiResult struct {
	Message string `json:"message,omitempty"`
}

func (self *ChatApi) DeleteEmoji(emojiId Id, callback DeleteEmojiCallback) {
	go request(
		self.ctx,
		"DELETE",
		fmt.Sprintf("%s/emojis/%s", self.apiUrl, emojiId),
		nil,
		"",
		self.token(),
		&DeleteEmojiResult{},
		callback,
	)
}

func (self *ChatApi) DeleteEmojiSync(emojiId Id) (*DeleteEmojiResult, error) {
	return request(
		self.ctx,
		"DELETE",
		fmt.Sprintf("%s/emojis/%s", self.apiUrl, emojiId),
		nil,
		"",
		self.token(),
		&DeleteEmojiResult{},
		NewNoopApiCallback[*DeleteEmojiResult](),
	)
}

type GetAvatarsCallback apiCallback[*AvatarList]

type AvatarList struct {
	Avatars []*Avatar `json:"avatars"`
}

func (self *ChatApi) GetAvatars(callback GetAvatarsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/avatars", self.apiUrl),
		self.token(),
		&AvatarList{},
		callback,
	)
}

func (self *ChatApi) GetAvatarsSync() (*AvatarList, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/avatars", self.apiUrl),
		self.token(),
		&AvatarList{},
		NewNoopApiCallback[*AvatarList](),
	)
}

type LoginCallback apiCallback[*TokenResult]

type LoginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResult struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type,omitempty"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
}

func (self *ChatApi) Login(login *LoginArgs, callback LoginCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/auth/login", self.apiUrl),
		login,
		"",
		&TokenResult{},
		callback,
	)
}

func (self *ChatApi) LoginSync(login *LoginArgs) (*TokenResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/auth/login", self.apiUrl),
		login,
		"",
		&TokenResult{},
		NewNoopApiCallback[*TokenResult](),
	)
}

type GuestSessionCallback apiCallback[*TokenResult]

type GuestSessionArgs struct {
	Avatar string `json:"avatar"`
}

func (self *ChatApi) GuestSession(guestSession *GuestSessionArgs, callback GuestSessionCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/auth/guest", self.apiUrl),
		guestSession,
		"",
		&TokenResult{},
		callback,
	)
}

func (self *ChatApi) GuestSessionSync(guestSession *GuestSessionArgs) (*TokenResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/auth/guest", self.apiUrl),
		guestSession,
		"",
		&TokenResult{},
		NewNoopApiCallback[*TokenResult](),
	)
}

type MeCallback apiCallback[*User]

func (self *ChatApi) Me(callback MeCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/auth/me", self.apiUrl),
		self.token(),
		&User{},
		callback,
	)
}

func (self *ChatApi) MeSync() (*User, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/auth/me", self.apiUrl),
		self.token(),
		&User{},
		NewNoopApiCallback[*User](),
	)
}

type UpdateAvatarCallback apiCallback[*UpdateAvatarResult]

type UpdateAvatarResult struct {
	Message string `json:"message,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
}

func (self *ChatApi) UpdateAvatar(avatar string, callback UpdateAvatarCallback) {
	go request(
		self.ctx,
		"PATCH",
		fmt.Sprintf("%s/auth/avatar?avatar=%s", self.apiUrl, url.QueryEscape(avatar)),
		nil,
		"",
		self.token(),
		&UpdateAvatarResult{},
		callback,
	)
}

func (self *ChatApi) UpdateAvatarSync(avatar string) (*UpdateAvatarResult, error) {
	return request(
		self.ctx,
		"PATCH",
		fmt.Sprintf("%s/auth/avatar?avatar=%s", self.apiUrl, url.QueryEscape(avatar)),
		nil,
		"",
		self.token(),
		&UpdateAvatarResult{},
		NewNoopApiCallback[*UpdateAvatarResult](),
	)
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBody io.Reader
	contentType := ""
	if args != nil {
		requestBodyBytes, err := json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
		requestBody = bytes.NewReader(requestBodyBytes)
		contentType = "application/json"
	}
	return request(ctx, "POST", url, requestBody, contentType, byJwt, result, callback)
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	return request(ctx, "GET", url, nil, "", byJwt, result, callback)
}

func request[R any](ctx context.Context, method string, url string, requestBody io.Reader, contentType string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}
	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		err = errorFromBody(responseBodyBytes, r.StatusCode)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	if 0 < len(responseBodyBytes) {
		err = json.Unmarshal(responseBodyBytes, &result)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	callback.Result(result, nil)
	return result, nil
}

// the server reports errors as `{"detail": <message>}`.
// anything else falls back to the raw body, then to the status.
func errorFromBody(responseBodyBytes []byte, statusCode int) error {
	detail := &struct {
		Detail string `json:"detail"`
	}{}
	if err := json.Unmarshal(responseBodyBytes, detail); err == nil && detail.Detail != "" {
		return errors.New(detail.Detail)
	}
	if message := strings.TrimSpace(string(responseBodyBytes)); message != "" {
		return errors.New(message)
	}
	return fmt.Errorf("request failed with status %d", statusCode)
}
