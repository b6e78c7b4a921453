package main

import (
	"context"
	"log"
	"os"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/setup"
)

func main() {
	ctx := context.Background()
	open := func(ctx context.Context) (*activity.Service, func(), error) {
		app, err := setup.InitializeApp(ctx)
		if err != nil {
			return nil, nil, err
		}
		// The admin tool never notifies hosts.
		svc := activity.NewService(app.Store, nil, app.Config.Activity.JoinMode, app.Logger)
		return svc, app.Cleanup, nil
	}

	if err := newApp(open, os.Stdout).Run(ctx, os.Args); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
