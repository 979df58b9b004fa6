package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Azelphur/Monord/pkg/tgui"

	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/raid"
	"github.com/Azelphur/Monord/internal/settings"
	"github.com/Azelphur/Monord/internal/transport"
)

const (
	raidUsage = "/raid report|ex <level|pokemon> <HH:MM|+minutes> <gym>\n" +
		"/raid start|despawn <id> <HH:MM|+minutes>\n" +
		"/raid pokemon <id> <name> — /raid gym <id> <gym>\n" +
		"/raid cancel|hide|show <id> — /raid going <id> [extra]"
	gymUsage = "/gym add <lat> <lon> <title> — /gym find <query>\n" +
		"/gym alias <gym> [new alias] — /gym unalias <gym> <alias>"
	configUsage = "/config chat|thread [key] [value|unset]"
)

func (s *Service) cmdRaid(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) == 0 {
		return usagef("%s", raidUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "report", "ex":
		return s.raidReport(ctx, m, rest, sub == "ex")
	case "start", "despawn":
		return s.raidCorrectTime(ctx, m, rest, sub)
	case "pokemon":
		return s.raidSetPokemon(ctx, m, rest)
	case "gym":
		return s.raidSetGym(ctx, m, rest)
	case "cancel":
		return s.raidCancel(ctx, m, rest)
	case "hide", "show":
		return s.raidVisibility(ctx, m, rest, sub == "show")
	case "going":
		return s.raidGoing(ctx, m, rest)
	}
	return usagef("%s", raidUsage)
}

func (s *Service) raidReport(ctx context.Context, m *transport.Message, args []string, ex bool) error {
	if len(args) < 3 {
		return usagef("/raid report <level|pokemon> <HH:MM|+minutes> <gym>")
	}

	identity, err := s.parseIdentity(ctx, args[0])
	if err != nil {
		return err
	}

	vals, err := s.settings.Resolve(ctx, m.ChatID, m.ThreadID)
	if err != nil {
		return err
	}
	now := s.raids.Now()
	despawn, err := parseWhen(args[1], now, vals.Timezone)
	if err != nil {
		return usagef("%v", err)
	}

	query := strings.Join(args[2:], " ")
	gym, err := s.gyms.Find(ctx, m.ChatID, query)
	if err != nil {
		return err
	}
	if gym == nil {
		return usagef("no gym matches %q, try /gym find", query)
	}

	r, created, err := s.raids.Report(ctx, raid.ReportInput{
		Gym:         gym,
		Identity:    identity,
		DespawnTime: despawn,
		EX:          ex,
		Origin:      s.target(m),
	})
	if err != nil {
		return err
	}
	if !created {
		s.reply(ctx, m, fmt.Sprintf("that raid is already tracked as #%d", r.ID))
	}
	return nil
}

// parseIdentity reads either a bare tier number or a creature name.
func (s *Service) parseIdentity(ctx context.Context, raw string) (raid.Identity, error) {
	if level, err := strconv.Atoi(raw); err == nil {
		if level <= 0 {
			return raid.Identity{}, usagef("tier must be positive, got %d", level)
		}
		return raid.Unresolved(level), nil
	}
	p, err := s.pokemon.FindByName(ctx, raw)
	if err != nil {
		return raid.Identity{}, err
	}
	if p == nil {
		return raid.Identity{}, usagef("unknown creature %q", raw)
	}
	return raid.Resolved(p), nil
}

func (s *Service) raidCorrectTime(ctx context.Context, m *transport.Message, args []string, which string) error {
	if len(args) != 2 {
		return usagef("/raid %s <id> <HH:MM|+minutes>", which)
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	vals, err := s.settings.Resolve(ctx, m.ChatID, m.ThreadID)
	if err != nil {
		return err
	}
	t, err := parseWhen(args[1], s.raids.Now(), vals.Timezone)
	if err != nil {
		return usagef("%v", err)
	}
	if which == "start" {
		_, err = s.raids.SetStartTime(ctx, id, t)
	} else {
		_, err = s.raids.SetDespawnTime(ctx, id, t)
	}
	if err != nil {
		return err
	}
	s.reply(ctx, m, fmt.Sprintf("raid #%d %s time set to %s", id, which, t.In(vals.Timezone).Format("15:04")))
	return nil
}

func (s *Service) raidSetPokemon(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 2 {
		return usagef("/raid pokemon <id> <name>")
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	name := strings.Join(args[1:], " ")
	p, err := s.pokemon.FindByName(ctx, name)
	if err != nil {
		return err
	}
	if p == nil {
		return usagef("unknown creature %q", name)
	}
	if _, err := s.raids.SetIdentity(ctx, id, p); err != nil {
		return err
	}
	s.notify.ClearHatchMenus(ctx, id)
	return nil
}

func (s *Service) raidSetGym(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 2 {
		return usagef("/raid gym <id> <gym>")
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	query := strings.Join(args[1:], " ")
	gym, err := s.gyms.Find(ctx, m.ChatID, query)
	if err != nil {
		return err
	}
	if gym == nil {
		return usagef("no gym matches %q", query)
	}
	_, err = s.raids.SetGym(ctx, id, gym)
	return err
}

func (s *Service) raidCancel(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) != 1 {
		return usagef("/raid cancel <id>")
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	if _, err := s.raids.Cancel(ctx, id); err != nil {
		return err
	}
	s.reply(ctx, m, fmt.Sprintf("raid #%d cancelled", id))
	return nil
}

func (s *Service) raidVisibility(ctx context.Context, m *transport.Message, args []string, show bool) error {
	if len(args) != 1 {
		return usagef("/raid hide|show <id>")
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	if show {
		r, err := s.raids.Get(ctx, id)
		if err != nil {
			return err
		}
		return s.notify.ShowRaid(ctx, r, s.target(m))
	}
	return s.notify.HideRaid(ctx, id, s.target(m))
}

func (s *Service) raidGoing(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usagef("/raid going <id> [extra]")
	}
	id, err := parseRaidID(args[0])
	if err != nil {
		return usagef("%v", err)
	}
	extra := 0
	if len(args) == 2 {
		extra, err = strconv.Atoi(args[1])
		if err != nil || extra < 0 {
			return usagef("extra must be a non-negative number")
		}
	}
	name := m.FromName
	if name == "" {
		name = m.FromUsername
	}
	return s.setGoing(ctx, id, m.FromID, m.ChatID, name, extra, true)
}

// setGoing upserts or removes one attendance row and refreshes the views.
func (s *Service) setGoing(ctx context.Context, raidID, userID, chatID int64, name string, extra int, attend bool) error {
	r, err := s.raids.Get(ctx, raidID)
	if err != nil {
		return err
	}
	if !attend {
		if _, err := s.going.Remove(ctx, raidID, userID); err != nil {
			return err
		}
		return s.notify.RaidUpdated(ctx, r)
	}
	existing, err := s.going.Get(ctx, raidID, userID)
	if err != nil {
		return err
	}
	if existing == nil {
		err = s.going.Add(ctx, &models.Going{RaidID: raidID, UserID: userID, ChatID: chatID, Name: name, Extra: extra})
	} else {
		existing.Extra = extra
		existing.Name = name
		err = s.going.Save(ctx, existing)
	}
	if err != nil {
		return err
	}
	return s.notify.RaidUpdated(ctx, r)
}

func (s *Service) cmdGym(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) == 0 {
		return usagef("%s", gymUsage)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "add":
		return s.gymAdd(ctx, m, rest)
	case "find":
		return s.gymFind(ctx, m, rest)
	case "alias":
		return s.gymAlias(ctx, m, rest)
	case "unalias":
		return s.gymUnalias(ctx, m, rest)
	}
	return usagef("%s", gymUsage)
}

func (s *Service) gymAdd(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 3 {
		return usagef("/gym add <lat> <lon> <title>")
	}
	lat, latErr := strconv.ParseFloat(args[0], 64)
	lon, lonErr := strconv.ParseFloat(args[1], 64)
	if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return usagef("bad coordinates %q %q", args[0], args[1])
	}
	gym := &models.Gym{
		Title:     strings.Join(args[2:], " "),
		Latitude:  lat,
		Longitude: lon,
	}
	if err := s.gyms.Create(ctx, gym); err != nil {
		return err
	}
	s.reply(ctx, m, fmt.Sprintf("gym #%d %s added", gym.ID, tgui.B(gym.Title)))
	return nil
}

func (s *Service) gymFind(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) == 0 {
		return usagef("/gym find <query>")
	}
	query := strings.Join(args, " ")
	gym, err := s.gyms.Find(ctx, m.ChatID, query)
	if err != nil {
		return err
	}
	if gym == nil {
		s.reply(ctx, m, fmt.Sprintf("no gym matches %s", tgui.Esc(query)))
		return nil
	}
	lines := []string{
		fmt.Sprintf("#%d %s", gym.ID, tgui.B(gym.Title)),
		fmt.Sprintf("%.6f, %.6f", gym.Latitude, gym.Longitude),
	}
	if gym.EX {
		lines = append(lines, "EX eligible")
	}
	aliases, err := s.gyms.Aliases(ctx, m.ChatID, gym.ID)
	if err != nil {
		return err
	}
	if len(aliases) > 0 {
		names := make([]string, 0, len(aliases))
		for _, a := range aliases {
			names = append(names, a.Title)
		}
		lines = append(lines, "also known as: "+tgui.Esc(strings.Join(names, ", ")).String())
	}
	s.reply(ctx, m, strings.Join(lines, "\n"))
	return nil
}

func (s *Service) gymAlias(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 2 {
		return usagef("/gym alias <gym> <new alias>")
	}
	gym, err := s.gyms.Find(ctx, m.ChatID, args[0])
	if err != nil {
		return err
	}
	if gym == nil {
		return usagef("no gym matches %q", args[0])
	}
	title := strings.Join(args[1:], " ")
	err = s.gyms.AddAlias(ctx, &models.GymAlias{Title: title, GymID: gym.ID, ChatID: m.ChatID})
	if err != nil {
		return err
	}
	s.reply(ctx, m, fmt.Sprintf("%s can now be called %s here", tgui.B(gym.Title), tgui.B(title)))
	return nil
}

func (s *Service) gymUnalias(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) < 2 {
		return usagef("/gym unalias <gym> <alias>")
	}
	gym, err := s.gyms.Find(ctx, m.ChatID, args[0])
	if err != nil {
		return err
	}
	if gym == nil {
		return usagef("no gym matches %q", args[0])
	}
	title := strings.Join(args[1:], " ")
	removed, err := s.gyms.RemoveAlias(ctx, m.ChatID, gym.ID, title)
	if err != nil {
		return err
	}
	if !removed {
		s.reply(ctx, m, fmt.Sprintf("%s has no alias %s here", tgui.B(gym.Title), tgui.Esc(title)))
		return nil
	}
	s.reply(ctx, m, "alias removed")
	return nil
}

func (s *Service) cmdConfig(ctx context.Context, m *transport.Message, args []string) error {
	if len(args) == 0 {
		return usagef("%s", configUsage)
	}
	scope, rest := args[0], args[1:]

	threadID := 0
	switch scope {
	case "chat":
	case "thread":
		if m.ThreadID == 0 {
			return usagef("/config thread only works inside a forum topic")
		}
		threadID = m.ThreadID
	default:
		return usagef("%s", configUsage)
	}

	switch len(rest) {
	case 0:
		return s.configShow(ctx, m, threadID)
	case 1:
		return usagef("/config %s %s <value|unset>", scope, rest[0])
	default:
		key := rest[0]
		value := strings.Join(rest[1:], " ")
		if err := s.settings.Set(ctx, m.ChatID, threadID, key, value); err != nil {
			return usagef("%v", err)
		}
		s.reply(ctx, m, fmt.Sprintf("%s = %s", tgui.Code(key), tgui.Code(value)))
		return nil
	}
}

func (s *Service) configShow(ctx context.Context, m *transport.Message, threadID int) error {
	stored, err := s.settings.Stored(ctx, m.ChatID, threadID)
	if err != nil {
		return err
	}
	desc := settings.Describe(stored)
	lines := make([]string, 0, len(settings.Keys))
	for _, key := range settings.Keys {
		lines = append(lines, fmt.Sprintf("%s: %s", tgui.Code(key), tgui.Esc(desc[key])))
	}
	s.reply(ctx, m, strings.Join(lines, "\n"))
	return nil
}
