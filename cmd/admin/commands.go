package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"pipi/backend/internal/activity"
	"pipi/backend/internal/lifecycle"
	"pipi/backend/internal/models"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
)

var errUsage = errors.New("missing arguments")

// opener builds the activity service and returns a cleanup func.
type opener func(ctx context.Context) (*activity.Service, func(), error)

func newApp(open opener, out io.Writer) *cli.Command {
	// withService opens storage for one command and closes it afterwards.
	withService := func(args int, fn func(ctx context.Context, svc *activity.Service, c *cli.Command) error) cli.ActionFunc {
		return func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < args {
				return fmt.Errorf("%w: usage: %s %s", errUsage, c.Name, c.ArgsUsage)
			}
			svc, cleanup, err := open(ctx)
			if err != nil {
				return err
			}
			defer cleanup()
			return fn(ctx, svc, c)
		}
	}

	return &cli.Command{
		Name:  "admin",
		Usage: "PiPi maintenance tool",
		Commands: []*cli.Command{
			{
				Name:      "tally",
				Usage:     "Show attendance progress of an activity",
				ArgsUsage: "<activity_id>",
				Action: withService(1, func(ctx context.Context, svc *activity.Service, c *cli.Command) error {
					a, err := svc.Get(ctx, c.Args().Get(0))
					if err != nil {
						return err
					}
					t := lifecycle.TallyOf(*a)
					fmt.Fprintf(out, "%s: %d/%d verified\n", a.Title, t.Verified, t.Total)
					for _, id := range a.ParticipantID {
						fmt.Fprintf(out, "  %s\t%v\n", id, a.Authentication[id])
					}
					return nil
				}),
			},
			{
				Name:      "evict",
				Usage:     "Remove a participant from an activity",
				ArgsUsage: "<activity_id> <user_id>",
				Action: withService(2, func(ctx context.Context, svc *activity.Service, c *cli.Command) error {
					a, err := svc.Evict(ctx, c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "User %s removed from %s (%s).\n", c.Args().Get(1), a.ID, lifecycle.Status(*a))
					return nil
				}),
			},
			{
				Name:      "delete-activity",
				Usage:     "Delete an activity",
				ArgsUsage: "<activity_id>",
				Action: withService(1, func(ctx context.Context, svc *activity.Service, c *cli.Command) error {
					if err := svc.Purge(ctx, c.Args().Get(0)); err != nil {
						return err
					}
					fmt.Fprintf(out, "Activity %s has been deleted.\n", c.Args().Get(0))
					return nil
				}),
			},
			{
				Name:  "list-open",
				Usage: "List open activities",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "category",
						Usage: "Only list this category",
					},
				},
				Action: withService(0, func(ctx context.Context, svc *activity.Service, c *cli.Command) error {
					var f activity.ListFilter
					if raw := c.String("category"); raw != "" {
						category := models.Category(raw)
						if !category.Valid() {
							return fmt.Errorf("unknown category %q", raw)
						}
						f.Category = &category
					}
					list, err := svc.List(ctx, f)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tSEATS")
					for _, a := range list {
						fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\n", a.ID, a.Title, a.Category, len(a.ParticipantID)+1, a.MaxPeopleNumber)
					}
					return w.Flush()
				}),
			},
		},
	}
}
