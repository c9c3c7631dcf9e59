// Command adhand schedules the daily calls to prayer, plays the adhan and
// sends notifications, firing each prayer at most once.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("adhand failed")
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "adhand"
	app.Usage = "prayer time scheduler and notifier"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "log-level",
			Usage:  "trace, debug, info, warn or error",
			EnvVar: "LOG_LEVEL",
			Value:  "info",
		},
		cli.StringFlag{
			Name:   "log-format",
			Usage:  "console or json",
			EnvVar: "LOG_FORMAT",
			Value:  "console",
		},
	}
	app.Before = func(c *cli.Context) error {
		return setupLogging(c.GlobalString("log-level"), c.GlobalString("log-format"), os.Stderr)
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the scheduler and HTTP API",
			Action: serve,
		},
		{
			Name:   "today",
			Usage:  "print today's prayer times and what has fired",
			Action: today,
		},
		{
			Name:  "state",
			Usage: "inspect or prune fire state",
			Subcommands: []cli.Command{
				{
					Name:   "list",
					Usage:  "list recorded fires",
					Action: stateList,
					Flags: []cli.Flag{
						cli.StringFlag{Name: "date, d", Usage: "only this date (YYYY-MM-DD)"},
					},
				},
				{
					Name:   "prune",
					Usage:  "remove fires older than a date or the retention period",
					Action: statePrune,
					Flags: []cli.Flag{
						cli.StringFlag{Name: "before, b", Usage: "remove dates before YYYY-MM-DD"},
						cli.IntFlag{Name: "days", Usage: "keep this many days (default STATE_RETENTION_DAYS)"},
					},
				},
			},
		},
		{
			Name:   "notify-test",
			Usage:  "send a test notification to every configured channel",
			Action: notifyTest,
		},
	}
	// bare "adhand" runs the daemon
	app.Action = serve
	return app
}
