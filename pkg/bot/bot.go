package bot

import (
	"bytes"
	"context"

	"oxbobot/config"
	"oxbobot/pkg/logger"
	"oxbobot/service"

	tele "gopkg.in/telebot.v3"
)

// decideUnique identifies approval prompt buttons in callback data.
const decideUnique = "decide"

var _ service.Notifier = (*Bot)(nil)

type Bot struct {
	Bot *tele.Bot
	Log logger.ILogger
	Cfg *config.Config

	ctx context.Context
}

func New(cfg *config.Config, log logger.ILogger) (*Bot, error) {
	return newBot(cfg, log, false)
}

func newBot(cfg *config.Config, log logger.ILogger, offline bool) (*Bot, error) {
	pref := tele.Settings{
		Token:   cfg.TelegramBotToken,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Offline: offline,
		OnError: func(err error, c tele.Context) {
			log.Error("telegram update failed", logger.Error(err))
		},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}
	return &Bot{
		Bot: b,
		Log: log,
		Cfg: cfg,
		ctx: context.Background(),
	}, nil
}

// Route registers one endpoint per command plus the prompt buttons and the
// plain text fallback.
func (b *Bot) Route(r *Router) {
	b.Bot.Use(b.withRequestLog, b.withRecover)

	for _, s := range commands {
		kind := s.kind
		b.Bot.Handle("/"+s.name, func(c tele.Context) error {
			return r.Dispatch(b.ctx, eventFrom(c, kind), chatResponder{c: c, out: b})
		})
	}
	b.Bot.Handle(&tele.Btn{Unique: decideUnique}, func(c tele.Context) error {
		return r.Choose(b.ctx, choiceFrom(c), promptResponder{c: c, out: b})
	})
	b.Bot.Handle(tele.OnText, func(c tele.Context) error {
		return r.Fallback(chatResponder{c: c, out: b})
	})
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.ctx = ctx
	if err := b.Bot.SetCommands(menuCommands()); err != nil {
		b.Log.Warning("failed to publish command menu", logger.Error(err))
	}

	go func() {
		<-ctx.Done()
		b.Bot.Stop()
	}()

	b.Log.Info("bot started", logger.String("username", b.Bot.Me.Username))
	b.Bot.Start()
	b.Log.Info("bot stopped")
}

func menuCommands() []tele.Command {
	var out []tele.Command
	for _, s := range commands {
		if s.audience == audienceHidden {
			continue
		}
		out = append(out, tele.Command{Text: s.name, Description: s.description})
	}
	return out
}

func (b *Bot) SendText(chatID int64, text string) error {
	_, err := b.Bot.Send(tele.ChatID(chatID), text)
	return err
}

func (b *Bot) SendPhoto(chatID int64, data []byte, caption string) error {
	_, err := b.Bot.Send(tele.ChatID(chatID), &tele.Photo{File: tele.FromReader(bytes.NewReader(data)), Caption: caption})
	return err
}

func (b *Bot) SendChoicePrompt(chatID int64, text string, options []service.Choice) error {
	_, err := b.Bot.Send(tele.ChatID(chatID), text, choiceMarkup(options))
	return err
}

// choiceMarkup puts each option on its own row.
func choiceMarkup(options []service.Choice) *tele.ReplyMarkup {
	menu := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(options))
	for _, o := range options {
		rows = append(rows, menu.Row(menu.Data(o.Label, decideUnique, o.Token)))
	}
	menu.Inline(rows...)
	return menu
}

func eventFrom(c tele.Context, kind CommandKind) Event {
	ev := Event{Kind: kind}
	if u := c.Sender(); u != nil {
		ev.SenderUsername = u.Username
		ev.SenderChatID = u.ID
		ev.SenderLocale = u.LanguageCode
	}
	if m := c.Message(); m != nil {
		ev.Args = m.Payload
	}
	return ev
}

func choiceFrom(c tele.Context) ChoiceEvent {
	var ev ChoiceEvent
	if u := c.Sender(); u != nil {
		ev.SenderUsername = u.Username
		ev.SenderChatID = u.ID
	}
	if cb := c.Callback(); cb != nil {
		ev.Token = cb.Data
	}
	return ev
}

// chatResponder answers in the chat of c. Photos go out through the notifier.
type chatResponder struct {
	c   tele.Context
	out service.Notifier
}

func (r chatResponder) Reply(text string) error {
	return r.c.Send(text)
}

func (r chatResponder) ReplyPhoto(data []byte, caption string) error {
	return r.out.SendPhoto(r.c.Chat().ID, data, caption)
}

// promptResponder answers a button press and replaces the prompt with the
// outcome, which also drops its keyboard.
type promptResponder struct {
	c   tele.Context
	out service.Notifier
}

func (r promptResponder) Reply(text string) error {
	if err := r.c.Respond(&tele.CallbackResponse{Text: text}); err != nil {
		return err
	}
	m := r.c.Message()
	if m == nil {
		return r.c.Send(text)
	}
	return r.c.Edit(m.Text + "\n\n" + text)
}

func (r promptResponder) ReplyPhoto(data []byte, caption string) error {
	return chatResponder(r).ReplyPhoto(data, caption)
}
