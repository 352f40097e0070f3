package bot

import (
	"fmt"
	"runtime/debug"
	"time"

	"oxbobot/pkg/logger"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v3"
)

const requestIDKey = "request_id"

// withRecover keeps a panicking handler from taking the poller down.
func (b *Bot) withRecover(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				b.Log.Error("panic recovered",
					logger.Any("panic", rec),
					logger.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return next(c)
	}
}

// withRequestLog tags every update with a request id and logs one line when
// it is done. Message text is never logged since it may carry passwords.
func (b *Bot) withRequestLog(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		id := uuid.NewString()
		c.Set(requestIDKey, id)

		fields := []logger.Field{
			logger.String(requestIDKey, id),
			logger.Int("update_id", c.Update().ID),
		}
		if u := c.Sender(); u != nil {
			fields = append(fields, logger.Int64("chat_id", u.ID), logger.String("username", u.Username))
		}
		if cb := c.Callback(); cb != nil {
			fields = append(fields, logger.String("callback", cb.Unique))
		}
		log := b.Log.With(fields...)

		start := time.Now()
		err := next(c)
		took := logger.Any("took", time.Since(start))
		if err != nil {
			log.Warning("update failed", took, logger.Error(err))
			return err
		}
		log.Debug("update handled", took)
		return nil
	}
}
