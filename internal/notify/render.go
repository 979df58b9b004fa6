package notify

import (
	"fmt"
	"time"

	"github.com/Azelphur/Monord/pkg/tgui"

	"github.com/Azelphur/Monord/internal/models"
)

const clockLayout = "15:04"

// raidView renders the full raid card for one destination. tz is the
// destination's cascade timezone; despawnDur derives the hatch time for
// unhatched eggs.
func raidView(r *models.Raid, going []models.Going, tz *time.Location, despawnDur time.Duration) string {
	var header tgui.H
	name := bossName(r)
	switch {
	case r.Cancelled:
		header = tgui.JoinH(" ", tgui.Raw("❌"), tgui.B(name+" raid cancelled"))
	case r.Despawned:
		header = tgui.B(name + " raid is over")
	default:
		header = tgui.B(name + " raid")
	}

	gymTitle := "unknown gym"
	if r.Gym != nil {
		gymTitle = r.Gym.Title
		if r.Gym.EX {
			gymTitle += " (EX gym)"
		}
	}

	parts := []tgui.H{
		header,
		tgui.JoinH(" ", tgui.Raw("\U0001f4cd"), tgui.Esc(gymTitle)),
	}
	if r.Gym != nil {
		parts = append(parts, tgui.Link("map", fmt.Sprintf(
			"https://www.google.com/maps/search/?api=1&query=%f,%f", r.Gym.Latitude, r.Gym.Longitude)))
	}

	if !r.Cancelled && !r.Despawned {
		if !r.Hatched {
			hatch := r.DespawnTime.Add(-despawnDur)
			parts = append(parts, tgui.Esc("Hatches: "+hatch.In(tz).Format(clockLayout)))
		}
		parts = append(parts,
			tgui.Esc("Starts: "+r.StartTime.In(tz).Format(clockLayout)),
			tgui.Esc("Despawns: "+r.DespawnTime.In(tz).Format(clockLayout)))
	}

	if p := r.Pokemon; p != nil {
		if p.PerfectCP != nil {
			cp := fmt.Sprintf("Perfect CP: %d", *p.PerfectCP)
			if p.PerfectCPBoosted != nil {
				cp += fmt.Sprintf(" / %d boosted", *p.PerfectCPBoosted)
			}
			parts = append(parts, tgui.Esc(cp))
		}
		if p.Shiny {
			parts = append(parts, tgui.JoinH(" ", tgui.Raw("✨"), tgui.Esc("Shiny possible")))
		}
	}

	if len(going) > 0 {
		total := 0
		names := make([]tgui.H, 0, len(going))
		for _, g := range going {
			total += 1 + g.Extra
			entry := tgui.Esc(g.Name)
			if g.Extra > 0 {
				entry = tgui.JoinH("", entry, tgui.Esc(fmt.Sprintf(" +%d", g.Extra)))
			}
			names = append(names, entry)
		}
		parts = append(parts,
			tgui.JoinH("", tgui.B(fmt.Sprintf("Going (%d): ", total)), tgui.JoinH(", ", names...)))
	}

	return tgui.JoinH("\n", parts...).String()
}

// hatchView renders the disambiguation card shown when an egg opens
// without a known boss.
func hatchView(r *models.Raid, tz *time.Location) string {
	gymTitle := "unknown gym"
	if r.Gym != nil {
		gymTitle = r.Gym.Title
	}
	return tgui.JoinH("\n",
		tgui.B(fmt.Sprintf("A level %d egg hatched!", r.Level)),
		tgui.JoinH(" ", tgui.Raw("\U0001f4cd"), tgui.Esc(gymTitle)),
		tgui.Esc("Despawns: "+r.DespawnTime.In(tz).Format(clockLayout)),
		tgui.I("What came out?"),
	).String()
}

func bossName(r *models.Raid) string {
	if r.Pokemon != nil {
		return r.Pokemon.Name
	}
	if r.EX {
		return fmt.Sprintf("EX level %d", r.Level)
	}
	return fmt.Sprintf("Level %d egg", r.Level)
}
