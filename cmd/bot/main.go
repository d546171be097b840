package main

import (
	"context"
	"log"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"

	"github.com/deykows/giftkeeper/internal/app"
	"github.com/deykows/giftkeeper/internal/config"
)

func main() {
	figure.NewFigure("GiftKeeper", "", true).Print()

	// A local .env is optional; deployments set the environment directly.
	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()

	a, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := a.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
