package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/fatih/color"

	"golang.org/x/term"

	"github.com/loftchat/chat-client/chat"
)

const ChatCtlVersion = "0.1.0"

const DefaultApiUrl = "http://localhost:8000/api"
const DefaultWsUrl = "ws://localhost:8000/ws"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`Chat control.

The default urls are:
    api_url: %s
    ws_url: %s

Usage:
    chatctl guest [--api_url=<api_url>] [--avatar=<avatar>]
    chatctl login [--api_url=<api_url>] --email=<email> [--password=<password>]
    chatctl tail [--api_url=<api_url>] [--ws_url=<ws_url>] [--jwt=<jwt>]
    chatctl send [--api_url=<api_url>] --jwt=<jwt>
        [--reply_to=<message_id>]
        [--media_url=<media_url>]
        [--file=<path>...]
        [<message>]
    chatctl pin [--api_url=<api_url>] --jwt=<jwt> <message_id>
    chatctl react [--api_url=<api_url>] --jwt=<jwt> <message_id> <emoji>
    chatctl delete [--api_url=<api_url>] --jwt=<jwt> <message_id>
    chatctl emoji list [--api_url=<api_url>] [--jwt=<jwt>]
    chatctl emoji upload [--api_url=<api_url>] --jwt=<jwt> --name=<name> --file=<path>
    chatctl emoji delete [--api_url=<api_url>] --jwt=<jwt> <emoji_id>
    chatctl avatar [--api_url=<api_url>] --jwt=<jwt> <avatar>

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --jwt=<jwt>                Your session JWT.
    --email=<email>
    --password=<password>      Prompted for when omitted.
    --avatar=<avatar>          Avatar id [default: default].
    --reply_to=<message_id>    Message id to reply to.
    --media_url=<media_url>    External media reference.
    --file=<path>              Attach this file. Repeatable.
    --name=<name>              Custom emoji name.`,
		DefaultApiUrl,
		DefaultWsUrl,
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], ChatCtlVersion)
	if err != nil {
		panic(err)
	}

	if emoji_, _ := opts.Bool("emoji"); emoji_ {
		if list_, _ := opts.Bool("list"); list_ {
			emojiList(opts)
		} else if upload_, _ := opts.Bool("upload"); upload_ {
			emojiUpload(opts)
		} else if delete_, _ := opts.Bool("delete"); delete_ {
			emojiDelete(opts)
		}
	} else if guest_, _ := opts.Bool("guest"); guest_ {
		guest(opts)
	} else if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if send_, _ := opts.Bool("send"); send_ {
		send(opts)
	} else if pin_, _ := opts.Bool("pin"); pin_ {
		pin(opts)
	} else if react_, _ := opts.Bool("react"); react_ {
		react(opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		deleteMessage(opts)
	} else if avatar_, _ := opts.Bool("avatar"); avatar_ {
		avatar(opts)
	}
}

func apiUrl(opts docopt.Opts) string {
	if apiUrl_, err := opts.String("--api_url"); err == nil && apiUrl_ != "" {
		return apiUrl_
	}
	return DefaultApiUrl
}

func wsUrl(opts docopt.Opts) string {
	if wsUrl_, err := opts.String("--ws_url"); err == nil && wsUrl_ != "" {
		return wsUrl_
	}
	return DefaultWsUrl
}

func newApi(opts docopt.Opts) *chat.ChatApi {
	jwt, _ := opts.String("--jwt")
	auth := chat.NewAuth()
	if jwt != "" {
		auth.SetToken(jwt)
	}
	return chat.NewChatApi(apiUrl(opts), auth)
}

func requireMessageId(opts docopt.Opts) chat.Id {
	messageIdStr, _ := opts.String("<message_id>")
	messageId, err := chat.ParseId(messageIdStr)
	if err != nil {
		Err.Fatalf("Invalid message_id (%s).", err)
	}
	return messageId
}

// create a guest session and print the jwt
func guest(opts docopt.Opts) {
	avatar, _ := opts.String("--avatar")

	api := newApi(opts)
	defer api.Close()

	result, err := api.GuestSessionSync(&chat.GuestSessionArgs{
		Avatar: avatar,
	})
	if err != nil {
		Err.Fatalf("Guest session failed (%s).", err)
	}
	Out.Printf("%s", result.AccessToken)
}

// log in and print the jwt
func login(opts docopt.Opts) {
	email, _ := opts.String("--email")
	password, _ := opts.String("--password")

	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			Err.Fatalf("Could not read password (%s).", err)
		}
		password = string(passwordBytes)
	}

	api := newApi(opts)
	defer api.Close()

	result, err := api.LoginSync(&chat.LoginArgs{
		Email:    email,
		Password: password,
	})
	if err != nil {
		Err.Fatalf("Login failed (%s).", err)
	}
	if result.MustChangePassword {
		Err.Printf("Password change required before posting.")
	}
	Out.Printf("%s", result.AccessToken)
}

// connect and print the live chat until interrupted
func tail(opts docopt.Opts) {
	jwt, _ := opts.String("--jwt")

	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := chat.NewSessionWithDefaults(cancelCtx, apiUrl(opts), wsUrl(opts), jwt)
	defer session.Close()

	if err := session.Paginator().LoadEmojiCatalog(); err != nil {
		Err.Printf("Emoji catalog unavailable (%s).", err)
	}
	if err := session.Paginator().LoadAvatarCatalog(); err != nil {
		Err.Printf("Avatar catalog unavailable (%s).", err)
	}
	if err := session.Paginator().LoadInitial(); err != nil {
		Err.Fatalf("Initial load failed (%s).", err)
	}

	store := session.Store()

	usernameColor := color.New(color.FgCyan, color.Bold).SprintFunc()
	pinColor := color.New(color.FgYellow).SprintFunc()
	statusColor := color.New(color.FgGreen).SprintFunc()
	mutedColor := color.New(color.Faint).SprintFunc()

	printMessage := func(message *chat.Message) {
		line := fmt.Sprintf(
			"%s %s %s",
			mutedColor(message.CreatedAt.Local().Format("15:04:05")),
			usernameColor(message.AuthorUsername),
			message.Content,
		)
		if message.IsPinned {
			line = fmt.Sprintf("%s %s", line, pinColor("[pinned]"))
		}
		for _, reaction := range message.Reactions {
			line = fmt.Sprintf("%s %s:%d", line, reaction.Emoji, reaction.Count)
		}
		Out.Printf("%s", line)
	}

	for _, message := range store.Messages() {
		printMessage(message)
	}

	session.Connect()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	printedCount := store.MessageCount()
	lastTyping := ""
	for {
		notify := store.UpdateMonitor().NotifyChannel()
		select {
		case <-sigs:
			return
		case <-notify:
		}

		messages := store.Messages()
		if len(messages) < printedCount {
			// the window shrank, a delete or a clear
			printedCount = len(messages)
		}
		for _, message := range messages[printedCount:] {
			printMessage(message)
		}
		printedCount = len(messages)

		if typing := strings.Join(store.TypingUsers(), ", "); typing != lastTyping {
			if typing != "" {
				Out.Printf("%s", statusColor(fmt.Sprintf("%s typing...", typing)))
			}
			lastTyping = typing
		}
	}
}

func send(opts docopt.Opts) {
	content, _ := opts.String("<message>")
	replyTo, _ := opts.String("--reply_to")
	mediaUrl, _ := opts.String("--media_url")

	files := []*chat.FileUpload{}
	if paths, ok := opts["--file"].([]string); ok {
		for _, path := range paths {
			f, err := os.Open(path)
			if err != nil {
				Err.Fatalf("Could not open %s (%s).", path, err)
			}
			defer f.Close()
			files = append(files, &chat.FileUpload{
				Name: filepath.Base(path),
				Data: f,
			})
		}
	}

	api := newApi(opts)
	defer api.Close()

	result, err := api.SendMessageSync(&chat.SendMessageArgs{
		Content:   content,
		ReplyToId: replyTo,
		MediaUrl:  mediaUrl,
		Files:     files,
	})
	if err != nil {
		Err.Fatalf("Send failed (%s).", err)
	}
	if result.Command != nil {
		Out.Printf("%s: %s", result.Command.Command, result.Command.Message)
	} else {
		Out.Printf("%s", result.Message.Id)
	}
}

func pin(opts docopt.Opts) {
	api := newApi(opts)
	defer api.Close()

	result, err := api.PinMessageSync(requireMessageId(opts))
	if err != nil {
		Err.Fatalf("Pin failed (%s).", err)
	}
	if result.IsPinned {
		Out.Printf("Pinned.")
	} else {
		Out.Printf("Unpinned.")
	}
}

func react(opts docopt.Opts) {
	emoji, _ := opts.String("<emoji>")

	api := newApi(opts)
	defer api.Close()

	if _, err := api.ToggleReactionSync(requireMessageId(opts), &chat.ToggleReactionArgs{Emoji: emoji}); err != nil {
		Err.Fatalf("Reaction failed (%s).", err)
	}
	Out.Printf("Toggled.")
}

func deleteMessage(opts docopt.Opts) {
	api := newApi(opts)
	defer api.Close()

	if _, err := api.DeleteMessageSync(requireMessageId(opts)); err != nil {
		Err.Fatalf("Delete failed (%s).", err)
	}
	Out.Printf("Deleted.")
}

func emojiList(opts docopt.Opts) {
	api := newApi(opts)
	defer api.Close()

	result, err := api.GetEmojisSync()
	if err != nil {
		Err.Fatalf("Emoji list failed (%s).", err)
	}
	for _, emoji := range result.Emojis {
		Out.Printf("%s %s %s", emoji.Id, emoji.Name, emoji.Url)
	}
}

func emojiUpload(opts docopt.Opts) {
	name, _ := opts.String("--name")
	path := ""
	if paths, ok := opts["--file"].([]string); ok && 0 < len(paths) {
		path = paths[0]
	}

	f, err := os.Open(path)
	if err != nil {
		Err.Fatalf("Could not open %s (%s).", path, err)
	}
	defer f.Close()

	api := newApi(opts)
	defer api.Close()

	emoji, err := api.UploadEmojiSync(&chat.UploadEmojiArgs{
		Name: name,
		File: &chat.FileUpload{
			Name: filepath.Base(path),
			Data: f,
		},
	})
	if err != nil {
		Err.Fatalf("Emoji upload failed (%s).", err)
	}
	Out.Printf("%s", emoji.Id)
}

func emojiDelete(opts docopt.Opts) {
	emojiIdStr, _ := opts.String("<emoji_id>")
	emojiId, err := chat.ParseId(emojiIdStr)
	if err != nil {
		Err.Fatalf("Invalid emoji_id (%s).", err)
	}

	api := newApi(opts)
	defer api.Close()

	if _, err := api.DeleteEmojiSync(emojiId); err != nil {
		Err.Fatalf("Emoji delete failed (%s).", err)
	}
	Out.Printf("Deleted.")
}

func avatar(opts docopt.Opts) {
	avatarId, _ := opts.String("<avatar>")

	api := newApi(opts)
	defer api.Close()

	if _, err := api.UpdateAvatarSync(avatarId); err != nil {
		Err.Fatalf("Avatar update failed (%s).", err)
	}
	Out.Printf("Avatar updated.")
}
