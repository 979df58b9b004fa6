// Package bot is the chat-facing command surface: it parses incoming
// updates, calls into the domain services, and answers in the chat the
// command came from.
package bot

import (
	"context"
	"runtime/debug"
	"strings"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/notify"
	"github.com/Azelphur/Monord/internal/raid"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/settings"
	"github.com/Azelphur/Monord/internal/transport"
)

type Service struct {
	adapter  transport.Adapter
	raids    *raid.Service
	notify   *notify.Service
	gyms     repository.GymRepository
	pokemon  repository.PokemonRepository
	going    repository.GoingRepository
	settings *settings.Service
	log      logx.Logger
}

func New(adapter transport.Adapter, raids *raid.Service, notifySvc *notify.Service, gyms repository.GymRepository, pokemon repository.PokemonRepository, going repository.GoingRepository, st *settings.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		adapter:  adapter,
		raids:    raids,
		notify:   notifySvc,
		gyms:     gyms,
		pokemon:  pokemon,
		going:    going,
		settings: st,
		log:      log.With(logx.String("comp", "bot")),
	}
}

// Commands is the menu the adapter advertises.
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "raid", Description: "report and manage raids"},
		{Command: "gym", Description: "look up and manage gyms"},
		{Command: "config", Description: "chat and thread settings"},
	}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (s *Service) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			s.dispatch(ctx, up)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, up transport.Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in update handler",
				logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			s.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, up.Callback)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	cmd := strings.TrimPrefix(fields[0], "/")
	// /raid@SomeBot works in groups.
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	var err error
	switch cmd {
	case "raid":
		err = s.cmdRaid(ctx, m, args)
	case "gym":
		err = s.cmdGym(ctx, m, args)
	case "config":
		err = s.cmdConfig(ctx, m, args)
	default:
		return
	}
	if err != nil {
		s.replyErr(ctx, m, err)
	}
}

func (s *Service) target(m *transport.Message) transport.ChatTarget {
	return transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

func (s *Service) reply(ctx context.Context, m *transport.Message, text string) {
	_, err := s.adapter.SendText(ctx, s.target(m), text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", m.ChatID), logx.Any("err", err))
	}
}

// replyErr shows validation problems to the user and hides everything
// else behind a generic message.
func (s *Service) replyErr(ctx context.Context, m *transport.Message, err error) {
	switch {
	case raid.IsValidation(err) || isUsage(err):
		s.reply(ctx, m, "⚠️ "+err.Error())
	case err == raid.ErrNotFound:
		s.reply(ctx, m, "⚠️ no such raid")
	case err == raid.ErrCancelled:
		s.reply(ctx, m, "⚠️ that raid was cancelled")
	case err == raid.ErrDespawned:
		s.reply(ctx, m, "⚠️ that raid is already over")
	default:
		s.log.Warn("command failed", logx.Int64("chat_id", m.ChatID), logx.String("text", m.Text), logx.Any("err", err))
		s.reply(ctx, m, "something went wrong, try again")
	}
}
