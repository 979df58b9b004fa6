package bot

import (
	"context"
	"strconv"
	"strings"

	logx "github.com/Azelphur/Monord/pkg/logx"
	"github.com/Azelphur/Monord/pkg/tgui"

	"github.com/Azelphur/Monord/internal/raid"
	"github.com/Azelphur/Monord/internal/transport"
)

// handleCallback routes inline keyboard presses. Unknown or stale
// buttons are acknowledged and otherwise ignored.
func (s *Service) handleCallback(ctx context.Context, cb *transport.Callback) {
	ns, action, payload := tgui.Parse(cb.Data)
	if ns != "raid" {
		s.answer(ctx, cb, "")
		return
	}

	var err error
	switch action {
	case "pick":
		err = s.cbPick(ctx, cb, payload)
	case "going":
		err = s.cbGoing(ctx, cb, payload, 0, true)
	case "plus":
		err = s.cbPlus(ctx, cb, payload)
	case "leave":
		err = s.cbGoing(ctx, cb, payload, 0, false)
	default:
		s.answer(ctx, cb, "")
		return
	}

	switch {
	case err == nil:
	case raid.IsValidation(err):
		s.answer(ctx, cb, err.Error())
	case err == raid.ErrNotFound || err == raid.ErrDespawned || err == raid.ErrCancelled:
		s.answer(ctx, cb, "this raid is gone")
	default:
		s.log.Warn("callback failed", logx.String("data", cb.Data), logx.Any("err", err))
		s.answer(ctx, cb, "something went wrong")
	}
}

// cbPick resolves a hatch menu choice: payload is "raidID:pokemonID".
// A candidate that no longer exists is ignored.
func (s *Service) cbPick(ctx context.Context, cb *transport.Callback, payload string) error {
	parts := strings.SplitN(payload, ":", 2)
	if len(parts) != 2 {
		s.answer(ctx, cb, "")
		return nil
	}
	raidID, err1 := strconv.ParseInt(parts[0], 10, 64)
	pokemonID, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		s.answer(ctx, cb, "")
		return nil
	}
	p, err := s.pokemon.GetByID(ctx, pokemonID)
	if err != nil {
		// Stale button for a creature that left the dataset.
		s.answer(ctx, cb, "")
		return nil
	}
	if _, err := s.raids.SetIdentity(ctx, raidID, p); err != nil {
		return err
	}
	s.notify.ClearHatchMenus(ctx, raidID)
	s.answer(ctx, cb, "It's "+p.Name+"!")
	return nil
}

func (s *Service) cbGoing(ctx context.Context, cb *transport.Callback, payload string, extra int, attend bool) error {
	raidID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		s.answer(ctx, cb, "")
		return nil
	}
	if err := s.setGoing(ctx, raidID, cb.FromID, cb.ChatID, cb.FromName, extra, attend); err != nil {
		return err
	}
	if attend {
		s.answer(ctx, cb, "see you there")
	} else {
		s.answer(ctx, cb, "maybe next time")
	}
	return nil
}

// cbPlus bumps the caller's extra count by one.
func (s *Service) cbPlus(ctx context.Context, cb *transport.Callback, payload string) error {
	raidID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		s.answer(ctx, cb, "")
		return nil
	}
	existing, err := s.going.Get(ctx, raidID, cb.FromID)
	if err != nil {
		return err
	}
	extra := 1
	if existing != nil {
		extra = existing.Extra + 1
	}
	if err := s.setGoing(ctx, raidID, cb.FromID, cb.ChatID, cb.FromName, extra, true); err != nil {
		return err
	}
	s.answer(ctx, cb, "+1 added")
	return nil
}

func (s *Service) answer(ctx context.Context, cb *transport.Callback, text string) {
	if err := s.adapter.AnswerCallback(ctx, cb.ID, text); err != nil {
		s.log.Debug("callback answer failed", logx.Any("err", err))
	}
}
