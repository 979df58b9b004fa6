// Package routing decides which chat destinations receive word of a raid
// at a given location.
//
// Two paths admit a destination:
//
//  1. A chat-wide record whose region contains the point admits every
//     record of that chat that has the category flag set and no region
//     of its own.
//  2. Any record with its own region containing the point and the flag
//     set admits itself directly.
//
// Results are deduplicated and never include the origin destination.
package routing

import (
	"context"
	"sort"

	logx "github.com/Azelphur/Monord/pkg/logx"

	"github.com/Azelphur/Monord/internal/geo"
	"github.com/Azelphur/Monord/internal/models"
	"github.com/Azelphur/Monord/internal/repository"
	"github.com/Azelphur/Monord/internal/transport"
)

type Category string

const (
	CategoryMirror        Category = "mirror"
	CategorySubscriptions Category = "subscriptions"
)

type Router struct {
	configs repository.ChatConfigRepository
	log     logx.Logger
}

func New(configs repository.ChatConfigRepository, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{configs: configs, log: log}
}

// Destinations returns every destination that should receive a message
// about a raid at point, for the given category. The origin destination
// is excluded so callers never echo back to the reporting chat. The
// result order is deterministic.
func (r *Router) Destinations(ctx context.Context, point geo.Point, cat Category, origin transport.ChatTarget) ([]transport.ChatTarget, error) {
	records, err := r.configs.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[transport.ChatTarget]bool{}
	var out []transport.ChatTarget
	add := func(t transport.ChatTarget) {
		if t == origin || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}

	// Chats whose chat-wide region contains the point.
	matchedChats := map[int64]bool{}
	for i := range records {
		rec := &records[i]
		if rec.ThreadID != 0 || rec.Region == nil {
			continue
		}
		poly, ok := r.parseRegion(rec)
		if ok && poly.Contains(point) {
			matchedChats[rec.ChatID] = true
		}
	}

	for i := range records {
		rec := &records[i]
		if !flagSet(rec, cat) {
			continue
		}
		if rec.Region == nil {
			// Path 1: inherits the chat-wide catchment.
			if matchedChats[rec.ChatID] {
				add(transport.ChatTarget{ChatID: rec.ChatID, ThreadID: rec.ThreadID})
			}
			continue
		}
		// Path 2: own region decides, chat-wide match is irrelevant.
		poly, ok := r.parseRegion(rec)
		if ok && poly.Contains(point) {
			add(transport.ChatTarget{ChatID: rec.ChatID, ThreadID: rec.ThreadID})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out, nil
}

func (r *Router) parseRegion(rec *models.ChatConfig) (geo.Polygon, bool) {
	poly, err := geo.ParsePolygon([]byte(*rec.Region))
	if err != nil {
		// A corrupt region must not break routing for everyone else.
		r.log.Warn("skipping destination with bad region",
			logx.Int64("chat_id", rec.ChatID), logx.Int("thread_id", rec.ThreadID), logx.Any("err", err))
		return geo.Polygon{}, false
	}
	return poly, true
}

func flagSet(rec *models.ChatConfig, cat Category) bool {
	switch cat {
	case CategoryMirror:
		return rec.Mirror != nil && *rec.Mirror
	case CategorySubscriptions:
		return rec.Subscriptions != nil && *rec.Subscriptions
	}
	return false
}
