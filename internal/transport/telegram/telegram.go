// Package telegram receives URLs from Telegram chats and replies with
// narration audio.
package telegram

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lexiqai/article-voice/internal/observability"
	"github.com/lexiqai/article-voice/internal/pipeline"
)

// BotAPI is the part of the Telegram client the listener uses
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler processes one narration request
type Handler interface {
	Handle(ctx context.Context, req pipeline.Request) error
}

// NewBot authenticates token against the Bot API; an empty endpoint
// selects the public Telegram server
func NewBot(token, endpoint string) (*tgbotapi.BotAPI, error) {
	tgbotapi.SetLogger(botLogger{logger: observability.GetLogger().With().Str("component", "telegram").Logger()})

	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate bot: %w", err)
	}
	return bot, nil
}

// Listener long-polls updates and runs each text message as its own request
type Listener struct {
	bot         BotAPI
	handler     Handler
	pollTimeout int
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// NewListener creates a listener using a 60 second long-poll
func NewListener(bot BotAPI, handler Handler) *Listener {
	return &Listener{
		bot:         bot,
		handler:     handler,
		pollTimeout: 60,
		logger:      observability.GetLogger().With().Str("component", "telegram").Logger(),
	}
}

// Run dispatches updates until ctx is done, then waits for in-flight requests
func (l *Listener) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = l.pollTimeout
	updates := l.bot.GetUpdatesChan(u)

	l.logger.Info().Msg("Listening for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			l.bot.StopReceivingUpdates()
			l.wg.Wait()
			l.logger.Info().Msg("Telegram listener stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				l.wg.Wait()
				return nil
			}
			l.dispatch(ctx, update)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return
	}

	req := pipeline.Request{
		ID:        observability.NewCorrelationID(),
		Requester: strconv.FormatInt(msg.Chat.ID, 10),
		URL:       msg.Text,
		Reply:     NewReplier(l.bot, msg.Chat.ID, msg.MessageID),
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error().
					Str("request_id", req.ID).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("Request handler panicked")
			}
		}()

		// Failures were already reported to the chat.
		_ = l.handler.Handle(ctx, req)
	}()
}

// Replier sends pipeline output to one chat
type Replier struct {
	bot     BotAPI
	chatID  int64
	replyTo int
}

// NewReplier binds replies to chatID, threading them under message replyTo
func NewReplier(bot BotAPI, chatID int64, replyTo int) *Replier {
	return &Replier{bot: bot, chatID: chatID, replyTo: replyTo}
}

// SendText sends a plain text message
func (r *Replier) SendText(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ReplyToMessageID = r.replyTo
	return r.send(ctx, msg)
}

// SendAudio uploads one mp3 part
func (r *Replier) SendAudio(ctx context.Context, a pipeline.AudioArtifact) error {
	audio := tgbotapi.NewAudio(r.chatID, tgbotapi.FileBytes{Name: a.FileName, Bytes: a.Data})
	audio.ReplyToMessageID = r.replyTo
	return r.send(ctx, audio)
}

// send bounds a Bot API call by ctx; the client itself has no context support
func (r *Replier) send(ctx context.Context, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := r.bot.Send(c)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// botLogger routes the Bot API client's own logging through zerolog
type botLogger struct {
	logger zerolog.Logger
}

func (b botLogger) Println(v ...interface{}) {
	b.logger.Warn().Msg(fmt.Sprint(v...))
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.logger.Warn().Msgf(format, v...)
}
