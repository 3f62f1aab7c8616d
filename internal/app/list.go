package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"
)

func (a *App) cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	query := strings.Join(fs.Args(), " ")
	found := a.Library.Search(query)
	if len(found) == 0 {
		fmt.Fprintf(a.Stderr, "no scripts match %q\n", query)
		return ExitRuntime
	}

	width := 0
	for _, s := range found {
		width = max(width, len(s.Name))
	}
	name := a.style.name.Width(width)
	for _, s := range found {
		fmt.Fprintf(a.Stdout, "%s  %s  %s\n",
			name.Render(s.Name),
			a.style.dim.Render(fmt.Sprintf("%-8s %-8s", s.Engine, s.Source)),
			s.Description)
	}
	return ExitOK
}

func (a *App) cmdConfig(args []string) int {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	write := fs.Bool("write", false, "save the effective preferences to the preferences file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitUsage
	}

	if *write {
		if err := SavePreferences(a.Config.PreferencesPath, a.Prefs); err != nil {
			fmt.Fprintln(a.Stderr, "scriptbox:", err)
			return ExitIO
		}
	}

	fmt.Fprintf(a.Stdout, "scripts:     %s\n", a.Config.ScriptsDir)
	fmt.Fprintf(a.Stdout, "preferences: %s\n", a.Config.PreferencesPath)
	fmt.Fprintf(a.Stdout, "engines:     %s\n", strings.Join(a.Registry.Names(), ", "))
	data, err := json.MarshalIndent(a.Prefs, "", "  ")
	if err != nil {
		fmt.Fprintln(a.Stderr, "scriptbox:", err)
		return ExitIO
	}
	fmt.Fprintf(a.Stdout, "%s\n", data)
	return ExitOK
}
