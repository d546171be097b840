// Package catalog holds the purchasable gift and calendar definitions the
// engine resolves costs and categories from. The engine treats it as a
// read-only dictionary; content is refreshed externally, except for the
// daily rotating-offers update which re-enables matching skin entries.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/deykows/giftkeeper/internal/commerce"
	"github.com/deykows/giftkeeper/internal/kvstore"
	"github.com/deykows/giftkeeper/internal/logging"
)

// CategoryXPBooster marks entries that are permanently non-purchasable.
const CategoryXPBooster = "xpbooster"

// DailySkinPrice is the fixed gem price of rotating daily skins.
const DailySkinPrice = 380

// maxDailySkins caps how many rotating offers become daily skins.
const maxDailySkins = 4

// Gift is one purchasable item.
type Gift struct {
	Type     string `json:"type"`
	Cost     int    `json:"cost"`
	Category string `json:"category"`
	Enabled  bool   `json:"enabled"`
}

// Calendar is one purchasable advent-style calendar.
type Calendar struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

// DailySkin is one entry of the rotating daily offer set.
type DailySkin struct {
	ID         string `json:"id"`
	OfferType  string `json:"offerType"`
	ImageName  string `json:"imageName"`
	ImageURL   string `json:"imageUrl"`
	Price      int    `json:"price"`
	ExpireDate string `json:"expireDate,omitempty"`
}

type giftsSnapshot struct {
	Items []Gift `json:"items"`
}

type calendarsSnapshot struct {
	Calendars []Calendar `json:"calendars"`
}

type dailySkinsSnapshot struct {
	Date  string      `json:"date"`
	Skins []DailySkin `json:"skins"`
}

// Entry is the resolved cost/category view the engine consumes.
type Entry struct {
	Cost     int
	Category string
}

// Catalog is the mutex-guarded catalog state.
type Catalog struct {
	mu    sync.Mutex
	store kvstore.Store
	log   logging.Logger

	gifts      []Gift
	calendars  []Calendar
	dailySkins []DailySkin
}

func New(store kvstore.Store, log logging.Logger) *Catalog {
	return &Catalog{store: store, log: log}
}

// Load reads the gift, calendar, and daily-skin snapshots. Missing
// snapshots leave the corresponding section empty.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, err := c.store.Get(ctx, kvstore.KeyGifts); err != nil {
		return fmt.Errorf("loading gifts: %w", err)
	} else if data != nil {
		var snap giftsSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decoding gifts: %w", err)
		}
		c.gifts = snap.Items
	}

	if data, err := c.store.Get(ctx, kvstore.KeyCalendars); err != nil {
		return fmt.Errorf("loading calendars: %w", err)
	} else if data != nil {
		var snap calendarsSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decoding calendars: %w", err)
		}
		c.calendars = snap.Calendars
	}

	if data, err := c.store.Get(ctx, kvstore.KeyDailySkins); err != nil {
		return fmt.Errorf("loading daily skins: %w", err)
	} else if data != nil {
		var snap dailySkinsSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("decoding daily skins: %w", err)
		}
		c.dailySkins = snap.Skins
	}

	c.log.Info(ctx, "catalog loaded",
		"gifts", len(c.gifts), "calendars", len(c.calendars), "daily_skins", len(c.dailySkins))
	return nil
}

// ResolveItem returns the cost/category of a gift type.
func (c *Catalog) ResolveItem(giftType string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gifts {
		if g.Type == giftType {
			return Entry{Cost: g.Cost, Category: g.Category}, true
		}
	}
	return Entry{}, false
}

// ResolveCalendar returns the cost of a calendar by id. Calendars have no
// restricted categories; the entry carries the "calendar" category.
func (c *Catalog) ResolveCalendar(calendarID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cal := range c.calendars {
		if cal.ID == calendarID {
			return Entry{Cost: cal.Cost, Category: "calendar"}, true
		}
	}
	return Entry{}, false
}

// Gifts returns a copy of all gift entries.
func (c *Catalog) Gifts() []Gift {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Gift(nil), c.gifts...)
}

// DailySkins returns a copy of the current rotating skin set.
func (c *Catalog) DailySkins() []DailySkin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DailySkin(nil), c.dailySkins...)
}

// SetEnabled flips a gift's enabled flag and persists the gifts snapshot.
func (c *Catalog) SetEnabled(ctx context.Context, giftType string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.gifts {
		if c.gifts[i].Type == giftType {
			c.gifts[i].Enabled = enabled
			return c.persistGifts(ctx)
		}
	}
	return fmt.Errorf("gift type %q not in catalog", giftType)
}

// RefreshDailyOffers turns the vendor's rotating limited-offers feed into
// the daily skin set: the first maxDailySkins unique offer types, at the
// fixed daily price. Gift entries matching an offer type are re-enabled.
func (c *Catalog) RefreshDailyOffers(ctx context.Context, offers []commerce.Offer, imageBaseURL string) ([]DailySkin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	skins := make([]DailySkin, 0, maxDailySkins)
	seen := make(map[string]struct{})

	for _, offer := range offers {
		if len(offer.ItemSets) == 0 {
			continue
		}
		if _, ok := seen[offer.Type]; ok {
			continue
		}

		itemSet := offer.ItemSets[0]
		imageName := itemSet.ImageName
		if imageName == "" {
			imageName = itemSet.ID
		}
		if imageName == "" {
			imageName = offer.Type
		}

		id := itemSet.ID
		if id == "" {
			id = offer.Type
		}

		skins = append(skins, DailySkin{
			ID:         id,
			OfferType:  offer.Type,
			ImageName:  imageName,
			ImageURL:   fmt.Sprintf("%s/promos/%s@2x.jpg", imageBaseURL, imageName),
			Price:      DailySkinPrice,
			ExpireDate: offer.ExpireDate,
		})
		seen[offer.Type] = struct{}{}

		if len(skins) >= maxDailySkins {
			break
		}
	}

	c.dailySkins = skins
	snap := dailySkinsSnapshot{Date: time.Now().Format(time.RFC3339), Skins: skins}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding daily skins: %w", err)
	}
	if err := c.store.Set(ctx, kvstore.KeyDailySkins, data); err != nil {
		return nil, fmt.Errorf("saving daily skins: %w", err)
	}

	changed := false
	for _, skin := range skins {
		for i := range c.gifts {
			if c.gifts[i].Type == skin.OfferType && !c.gifts[i].Enabled {
				c.gifts[i].Enabled = true
				changed = true
			}
		}
	}
	if changed {
		if err := c.persistGifts(ctx); err != nil {
			return nil, err
		}
	}

	c.log.Info(ctx, "daily skins refreshed", "skins", len(skins), "gifts_reenabled", changed)
	return skins, nil
}

// persistGifts writes the gifts snapshot. Callers must hold c.mu.
func (c *Catalog) persistGifts(ctx context.Context) error {
	data, err := json.Marshal(giftsSnapshot{Items: c.gifts})
	if err != nil {
		return fmt.Errorf("encoding gifts: %w", err)
	}
	if err := c.store.Set(ctx, kvstore.KeyGifts, data); err != nil {
		return fmt.Errorf("saving gifts: %w", err)
	}
	return nil
}
