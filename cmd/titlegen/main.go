package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		if _, ok := err.(cli.ExitCoder); !ok {
			fmt.Fprintln(os.Stderr, "titlegen:", err)
		}
		os.Exit(1)
	}
}

func newApp() *cli.App {
	rt := &runtime{}

	return &cli.App{
		Name:  "titlegen",
		Usage: "name text documents with a title generated by an OpenAI-compatible endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "vault directory; document paths are relative to it",
				EnvVars: []string{"VAULT_DIR"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "settings file",
				EnvVars: []string{"CONFIG_FILE"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: rt.setup,
		After:  rt.close,
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "title and rename a single document",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "active", Usage: "use the document open in the vault's workspace"},
					&cli.StringFlag{Name: "active-file", Usage: "treat this file as the open document"},
				},
				Action: rt.generate,
			},
			{
				Name:      "batch",
				Usage:     "title every document matching the glob patterns, one at a time",
				ArgsUsage: "<glob>...",
				Action:    rt.batch,
			},
			{
				Name:  "history",
				Usage: "list recent renames",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of entries"},
				},
				Action: rt.history,
			},
			{
				Name:   "serve",
				Usage:  "run the HTTP API and, when SCHEDULE is set, scheduled titling",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "active-file", Usage: "treat this file as the open document"}},
				Action: rt.serve,
			},
			{
				Name:  "config",
				Usage: "show or change saved settings",
				Subcommands: []*cli.Command{
					{Name: "show", Usage: "print the effective settings", Action: rt.configShow},
					{Name: "path", Usage: "print the settings file path", Action: rt.configPath},
					{
						Name:      "set",
						Usage:     "save one setting (api_key, base_url, model, lower_case_titles)",
						ArgsUsage: "<key> <value>",
						Action:    rt.configSet,
					},
				},
			},
			{
				Name:  "login",
				Usage: "store the API key in the OS keyring",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "API key; read from stdin when omitted"},
				},
				Action: rt.login,
			},
			{
				Name:   "logout",
				Usage:  "remove the API key from the OS keyring",
				Action: rt.logout,
			},
		},
	}
}
