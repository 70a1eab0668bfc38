package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/matheus3301/dmchat/internal/auth"
	"github.com/matheus3301/dmchat/internal/config"
	"github.com/matheus3301/dmchat/internal/store"
)

func main() {
	configFlag := flag.String("config", "", "path to config.toml (default ~/.dmchat/config.toml)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	if args[0] == "init" {
		cmdInit(configPath)
		return
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "user":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dmchatctl user <add|list|suspend|permit> ...")
			os.Exit(1)
		}
		cmdUser(ctx, db, args[1], args[2:], *jsonFlag)
	case "token":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: dmchatctl token <username>")
			os.Exit(1)
		}
		cmdToken(ctx, db, cfg, args[1], *jsonFlag)
	case "stats":
		cmdStats(ctx, db, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dmchatctl [--config <path>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  init                       Write a default config file")
	fmt.Fprintln(os.Stderr, "  user add <name> [--admin]  Create an account")
	fmt.Fprintln(os.Stderr, "  user list                  List accounts")
	fmt.Fprintln(os.Stderr, "  user suspend <name>        Stop an account from messaging")
	fmt.Fprintln(os.Stderr, "  user permit <name>         Allow an account to message")
	fmt.Fprintln(os.Stderr, "  token <name>               Issue a bearer token")
	fmt.Fprintln(os.Stderr, "  stats                      Show store counters")
}

func cmdInit(path string) {
	if _, err := os.Stat(path); err == nil {
		fatalf("%s already exists", path)
	}
	cfg := config.Default()
	secret, err := config.NewSecret()
	if err != nil {
		fatalf("generate secret: %v", err)
	}
	cfg.Auth.JWTSecret = secret
	if err := config.Save(path, cfg); err != nil {
		fatalf("write config: %v", err)
	}
	fmt.Printf("Wrote %s\n", path)
}

func cmdUser(ctx context.Context, db *store.DB, subcmd string, args []string, jsonOut bool) {
	switch subcmd {
	case "add":
		fs := flag.NewFlagSet("user add", flag.ExitOnError)
		admin := fs.Bool("admin", false, "grant the administrator role")
		_ = fs.Parse(reorder(args))
		if fs.NArg() != 1 {
			fatalf("usage: dmchatctl user add <name> [--admin]")
		}
		u := &store.User{Username: fs.Arg(0), Permitted: true}
		if *admin {
			u.Role = store.RoleAdmin
		}
		if err := db.CreateUser(ctx, u); err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			outputJSON(u)
			return
		}
		fmt.Printf("Created %s (%s) id=%s\n", u.Username, u.Role, u.ID)
	case "list":
		users, err := db.ListUsers(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOut {
			outputJSON(users)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tROLE\tPERMITTED\tONLINE\tLAST SEEN")
		for _, u := range users {
			lastSeen := "-"
			if !u.LastSeen.IsZero() {
				lastSeen = u.LastSeen.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", u.Username, u.Role, u.Permitted, u.IsOnline, lastSeen)
		}
		_ = w.Flush()
	case "suspend", "permit":
		if len(args) != 1 {
			fatalf("usage: dmchatctl user %s <name>", subcmd)
		}
		permitted := subcmd == "permit"
		err := db.SetUserPermitted(ctx, args[0], permitted)
		if errors.Is(err, sql.ErrNoRows) {
			fatalf("no such user: %s", args[0])
		}
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s permitted=%t\n", args[0], permitted)
	default:
		fatalf("unknown user command: %s", subcmd)
	}
}

func cmdToken(ctx context.Context, db *store.DB, cfg *config.Config, username string, jsonOut bool) {
	u, err := db.FindUserByUsername(ctx, username)
	if err != nil {
		fatalf("%v", err)
	}
	if u == nil {
		fatalf("no such user: %s", username)
	}
	if err := cfg.Validate(); err != nil {
		fatalf("config: %v", err)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Duration)
	tok, err := tokens.Issue(u.ID, u.Username)
	if err != nil {
		fatalf("issue token: %v", err)
	}
	if jsonOut {
		outputJSON(map[string]string{"username": u.Username, "token": tok})
		return
	}
	fmt.Println(tok)
}

func cmdStats(ctx context.Context, db *store.DB, jsonOut bool) {
	users, err := db.ListUsers(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	online, err := db.OnlineCount(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	messages, err := db.MessageCount(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	version, dirty, err := db.SchemaVersion()
	if err != nil {
		fatalf("%v", err)
	}
	if jsonOut {
		outputJSON(map[string]any{
			"users":          len(users),
			"online":         online,
			"messages":       messages,
			"schema_version": version,
			"schema_dirty":   dirty,
		})
		return
	}
	fmt.Printf("Users:    %d (%d online)\n", len(users), online)
	fmt.Printf("Messages: %d\n", messages)
	fmt.Printf("Schema:   v%d dirty=%t\n", version, dirty)
}

// reorder moves flags ahead of positional arguments so "add bob --admin" parses.
func reorder(args []string) []string {
	var flags, rest []string
	for _, a := range args {
		if len(a) > 1 && a[0] == '-' {
			flags = append(flags, a)
		} else {
			rest = append(rest, a)
		}
	}
	return append(flags, rest...)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
