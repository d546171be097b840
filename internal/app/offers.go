package app

import (
	"context"
	"time"
)

// offersRefreshHour is the local hour of the daily rotating-offers pull.
const offersRefreshHour = 3

// startupRefreshDelay postpones the initial offers pull past process
// startup so the credential check runs first.
const startupRefreshDelay = 15 * time.Second

// nextRefresh returns the next daily refresh instant after now.
func nextRefresh(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), offersRefreshHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runOffersRefresh pulls the rotating limited-offers feed once shortly
// after startup and then daily at the configured hour. A failing pull is
// logged and retried at the next scheduled run; the catalog keeps its
// previous daily-skin set in the meantime.
func (app *App) runOffersRefresh(ctx context.Context) {
	startup := time.NewTimer(startupRefreshDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		app.refreshOffers(ctx)
	}

	for {
		timer := time.NewTimer(time.Until(nextRefresh(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			app.refreshOffers(ctx)
		}
	}
}

func (app *App) refreshOffers(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			app.logger.Error(ctx, "panic in offers refresh", "panic", r)
		}
	}()

	if err := app.creds.EnsureFresh(ctx); err != nil {
		app.logger.Warn(ctx, "offers refresh skipped, credentials unavailable", "error", err)
		return
	}

	offers, err := app.commerce.RotatingOffers(ctx, app.accounts.Current().Tokens)
	if err != nil {
		app.logger.Warn(ctx, "fetching rotating offers failed", "error", err)
		return
	}

	skins, err := app.catalog.RefreshDailyOffers(ctx, offers, app.config.ImageBaseURL)
	if err != nil {
		app.logger.Warn(ctx, "refreshing daily offers failed", "error", err)
		return
	}

	app.logger.Info(ctx, "daily offers refreshed", "skins", len(skins))
}
