package main

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/prilive-com/tgwire"
	"github.com/prilive-com/tgwire/dispatch"
	"github.com/prilive-com/tgwire/sender"
	"github.com/prilive-com/tgwire/tg"
)

func newBot(logger *slog.Logger) (*tgwire.Bot, error) {
	token, err := resolveToken()
	if err != nil {
		return nil, err
	}

	opts := []tgwire.Option{
		tgwire.WithLogger(logger),
		tgwire.WithSenderConfig(sender.ConfigFromEnv()),
		tgwire.WithOnlyFirstMatch(viper.GetBool("only_first_match")),
	}
	if u := strings.TrimSpace(viper.GetString("base_url")); u != "" {
		opts = append(opts, tgwire.WithBaseURL(u))
	}
	return tgwire.New(token, opts...)
}

var (
	startPattern = regexp.MustCompile(`^/start(@\w+)?$`)
	echoPattern  = regexp.MustCompile(`^/echo(?:@\w+)?\s+(.+)`)
	pingPattern  = regexp.MustCompile(`(?i)^ping$`)
)

// loggedCategories are logged at Debug for every matching update.
var loggedCategories = []dispatch.Category{
	dispatch.CategoryMessage,
	dispatch.CategoryText,
	dispatch.CategoryPhoto,
	dispatch.CategoryDocument,
	dispatch.CategorySticker,
	dispatch.CategoryLocation,
	dispatch.CategoryNewChatMembers,
	dispatch.CategoryLeftChatMember,
	dispatch.CategoryEditedMessage,
	dispatch.CategoryChannelPost,
	dispatch.CategoryEditedChannelPost,
}

func registerHandlers(bot *tgwire.Bot, logger *slog.Logger) {
	for _, c := range loggedCategories {
		bot.Handle(c, func(_ context.Context, m *tg.Message) {
			logger.Debug("update", "category", c.String(), "message", m.String())
		})
	}

	bot.OnText(startPattern, func(ctx context.Context, m *tg.Message, _ []string) {
		reply(ctx, bot, logger, m, "Hello! Try /echo <text>, or send ping and reply to my answer.")
	})

	bot.OnText(echoPattern, func(ctx context.Context, m *tg.Message, match []string) {
		reply(ctx, bot, logger, m, match[1])
	})

	bot.OnText(pingPattern, func(ctx context.Context, m *tg.Message, _ []string) {
		sent, err := bot.SendMessage(ctx, m.ChatID(), "pong (reply to this message)", tgwire.WithReplyTo(m.MessageID))
		if err != nil {
			logger.Error("send failed", "chat_id", m.ChatID(), "error", err)
			return
		}

		// One answer per pong: the first reply removes the listener.
		var id atomic.Int64
		id.Store(int64(bot.OnReplyToMessage(sent.ChatID(), sent.MessageID, func(ctx context.Context, r *tg.Message) {
			if _, ok := bot.RemoveReplyListener(int(id.Load())); !ok {
				return
			}
			reply(ctx, bot, logger, r, "Got your reply: "+r.Text)
		})))
	})

	bot.OnCallbackQuery(func(ctx context.Context, q *tg.CallbackQuery) {
		logger.Debug("update", "category", dispatch.CategoryCallbackQuery.String(), "data", q.Data)
		err := bot.Sender().AnswerCallbackQuery(ctx, sender.AnswerCallbackQueryRequest{CallbackQueryID: q.ID})
		if err != nil {
			logger.Warn("answer callback failed", "error", err)
		}
	})

	bot.OnInlineQuery(func(_ context.Context, q *tg.InlineQuery) {
		logger.Debug("update", "category", dispatch.CategoryInlineQuery.String(), "query", q.Query)
	})
}

func reply(ctx context.Context, bot *tgwire.Bot, logger *slog.Logger, m *tg.Message, text string) {
	if _, err := bot.SendMessage(ctx, m.ChatID(), text, tgwire.WithReplyTo(m.MessageID)); err != nil {
		logger.Error("send failed", "chat_id", m.ChatID(), "error", err)
	}
}
