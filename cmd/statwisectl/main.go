// Command statwisectl is the admin tool for statwise.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"

	"statwise/internal"
	"statwise/internal/analytics"
	"statwise/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

var errNoApp = errors.New("app initialization failed")

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	// Execute runs the command. app is nil when initialization failed.
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&PurgeCommand{},
	&SummaryCommand{},
	&BackfillSessionsCommand{},
	&SessionCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cmdName, args := parseArgs()
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if _, ok := cmd.(*HelpCommand); !ok {
		var err error
		if app, err = internal.NewApp(ctx); err != nil {
			log.Printf("Warning: Failed to initialize app: %v", err)
		}
	}

	err := cmd.Execute(ctx, app, args)

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		if serr := app.Shutdown(shutdownCtx); serr != nil {
			log.Printf("Warning: Cleanup error: %v", serr)
		}
		cancel()
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand creates the event tables.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Creates the event tables" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}
	log.Println("Running database migrations...")
	if err := app.DB.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand fills a project with generated traffic.
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds a project with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	pid := fs.String("pid", "", "project id to seed")
	host := fs.String("host", "example.com", "host the pageviews belong to")
	count := fs.Int("events", 10000, "number of pageviews to generate")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pid == "" {
		return fmt.Errorf("usage: %s -pid <pid> [-host h] [-events n] [-seed s]", c.Name())
	}
	if app == nil {
		return errNoApp
	}

	stats, err := seeder.NewSeeder(app.Collector, app.Logger, *count, *seed).Seed(ctx, *pid, *host)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d sessions, %d pageviews, %d custom events, %d timings\n",
		stats.Sessions, stats.Pageviews, stats.CustomEvents, stats.Timings)
	return nil
}

// PurgeCommand deletes a project's events.
type PurgeCommand struct{}

func (c *PurgeCommand) Name() string        { return "purge" }
func (c *PurgeCommand) Description() string { return "Deletes a project's events in a range" }

func (c *PurgeCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	req := analytics.PurgeRequest{}
	fs.StringVar(&req.PID, "pid", "", "project id")
	fs.StringVar(&req.Period, "period", "", "named period, e.g. 7d or all")
	fs.StringVar(&req.From, "from", "", "range start")
	fs.StringVar(&req.To, "to", "", "range end")
	fs.StringVar(&req.Timezone, "tz", "UTC", "timezone of from and to")
	fs.StringVar(&req.Filters, "filters", "", "filter expression as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.PID == "" {
		return fmt.Errorf("usage: %s -pid <pid> [-period p | -from f -to t] [-filters json]", c.Name())
	}
	if app == nil {
		return errNoApp
	}

	if err := app.Engine.PurgeEvents(ctx, req); err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Printf("Purged events of %s\n", req.PID)
	return nil
}

// SummaryCommand prints period totals for several projects.
type SummaryCommand struct{}

func (c *SummaryCommand) Name() string        { return "summary" }
func (c *SummaryCommand) Description() string { return "Prints visit totals for projects" }

func (c *SummaryCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	pids := fs.String("pids", "", "comma separated project ids")
	period := fs.String("period", "7d", "named period")
	tz := fs.String("tz", "UTC", "timezone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := splitList(*pids)
	if len(ids) == 0 {
		return fmt.Errorf("usage: %s -pids a,b [-period p] [-tz zone]", c.Name())
	}
	if app == nil {
		return errNoApp
	}

	result, err := app.Engine.Summary(ctx, ids, *period, *tz)
	if err != nil {
		return err
	}
	for pid, ferr := range result.Failed {
		log.Printf("Summary failed for %s: %v", pid, ferr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Projects)
}

// BackfillSessionsCommand runs the session duration job once.
type BackfillSessionsCommand struct{}

func (c *BackfillSessionsCommand) Name() string { return "backfill-sessions" }
func (c *BackfillSessionsCommand) Description() string {
	return "Writes durations of idle sessions now"
}

func (c *BackfillSessionsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return errNoApp
	}
	ran, err := app.Scheduler.Trigger("session_duration")
	if err != nil {
		return err
	}
	if !ran {
		log.Println("Another job is running, nothing done")
	}
	return nil
}

// SessionCommand shows an open session's duration so far.
type SessionCommand struct{}

func (c *SessionCommand) Name() string        { return "session" }
func (c *SessionCommand) Description() string { return "Shows the duration of an open session" }

func (c *SessionCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	pid := fs.String("pid", "", "project id")
	psid := fs.String("psid", "", "session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pid == "" || *psid == "" {
		return fmt.Errorf("usage: %s -pid <pid> -psid <psid>", c.Name())
	}
	if app == nil {
		return errNoApp
	}

	d, open, err := app.Tracker.SessionDuration(ctx, *psid, *pid)
	if err != nil {
		return err
	}
	if !open {
		fmt.Printf("Session %s of %s is closed or unknown\n", *psid, *pid)
		return nil
	}
	fmt.Printf("Session %s of %s open for %s\n", *psid, *pid, d.Round(time.Second))
	return nil
}

// StatusCommand checks the connections.
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	pids := fs.String("pids", "", "comma separated project ids to report live visitors for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("cannot check status: %w", errNoApp)
	}

	log.Println("System Status:")
	if err := app.DB.Conn().Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse error: %w", err)
	}
	log.Println("- ClickHouse: Connected")

	if err := app.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	log.Println("- Redis: Connected")

	stats := app.DB.Conn().Stats()
	log.Printf("- Open Connections: %d", stats.Open)
	log.Printf("- Idle: %d", stats.Idle)
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConns)

	if n, err := app.Cache.CountKeys(ctx, "sd:*"); err == nil {
		log.Printf("- Sessions awaiting duration: %d", n)
	}

	for _, pid := range splitList(*pids) {
		online, err := app.Engine.Online(ctx, pid)
		if err != nil {
			return fmt.Errorf("online count for %s: %w", pid, err)
		}
		log.Printf("- Online in %s: %d", pid, online)
	}
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

func splitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

func findCommand(name string) Command {
	c, _ := lo.Find(commands, func(c Command) bool { return c.Name() == name })
	return c
}

func printUsage() {
	fmt.Println("Usage: statwisectl [command] [args...]")
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
