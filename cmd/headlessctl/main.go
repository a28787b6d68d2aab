package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/settings"
	"github.com/aabbtree77/headless/internal/store"
	"github.com/aabbtree77/headless/internal/tui"
)

func usage() {
	base := path.Base(os.Args[0])
	fmt.Printf(`%s: administrative CLI for the headless platform

Usage:
  %s migrate [--down]

  %s user get <username>
  %s user set --username <name> [--role admin|user] [--password secret]
  %s user delete --username <name>
  %s users list

  %s settings get
  %s settings set [--headless_mode=bool] [--disable_legacy_rpc=bool] [--protect_data_api=bool] [--protect_query_api=bool]
  %s settings reset
  %s settings edit

The config file is read from $HEADLESS_CONFIG or ./config.toml.

Examples:
  %s user set --username alice --role admin --password s3cret
  %s settings set --protect_query_api=false
`, base, base, base, base, base, base, base, base, base, base, base, base)
}

func fatalf(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage()
		return
	}

	_ = godotenv.Load()

	configPath := os.Getenv("HEADLESS_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}
	logger.Setup(os.Stderr, cfg.Log.Format, cfg.Debug)

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		fatalf("open db: %v", err)
	}
	defer db.Close()

	switch os.Args[1] {
	case "migrate":
		runMigrate(ctx, db, os.Args[2:])
	case "user":
		runUser(ctx, store.NewUserRepo(db), os.Args[2:])
	case "users":
		runUsers(ctx, store.NewUserRepo(db), os.Args[2:])
	case "settings":
		runSettings(ctx, store.NewOptionRepo(db), os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func runMigrate(ctx context.Context, db *store.DB, args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	down := fs.Bool("down", false, "roll back every migration")
	fs.Parse(args)

	var err error
	if *down {
		err = db.MigrateDown(ctx)
	} else {
		err = db.Migrate(ctx)
	}
	switch {
	case errors.Is(err, store.ErrNoChange):
		fmt.Println("schema already up to date")
	case err != nil:
		fatalf("migrate: %v", err)
	default:
		fmt.Println("migrations applied")
	}
}

func runUser(ctx context.Context, users *store.UserRepo, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "get":
		if len(args) != 2 {
			fatalf("usage: user get <username>")
		}
		u, err := users.GetByUsername(ctx, args[1])
		if err != nil {
			fatalf("get user: %v", err)
		}
		fmt.Printf("id: %d\nusername: %s\nrole: %s\ncreated_at: %s\n",
			u.ID, u.Username, u.Role, formatTime(u.CreatedAt))

	case "set":
		fs := flag.NewFlagSet("user set", flag.ExitOnError)
		username := fs.String("username", "", "username (required)")
		role := fs.String("role", "", "role: admin|user")
		password := fs.String("password", "", "password (required for new user)")
		fs.Parse(args[1:])

		if *username == "" {
			fs.Usage()
			os.Exit(2)
		}

		r := strings.ToLower(*role)
		if r != "" && r != store.RoleAdmin && r != store.RoleUser {
			fatalf("invalid role: %s", *role)
		}

		var hash string
		if *password != "" {
			h, err := auth.HashPassword(*password)
			if err != nil {
				fatalf("hash password: %v", err)
			}
			hash = h
		}

		_, err := users.GetByUsername(ctx, *username)
		if errors.Is(err, store.ErrNotFound) {
			if hash == "" {
				fatalf("password is required for new user")
			}
			if r == "" {
				r = store.RoleUser
			}
			u, err := users.Create(ctx, store.CreateUserParams{
				Username:     *username,
				PasswordHash: hash,
				Role:         r,
			})
			if err != nil {
				fatalf("create user failed: %v", err)
			}
			fmt.Printf("created: id=%d username=%s role=%s created_at=%s\n",
				u.ID, u.Username, u.Role, formatTime(u.CreatedAt))
			return
		}
		if err != nil {
			fatalf("get user failed: %v", err)
		}

		u, err := users.Update(ctx, *username, store.UpdateUserPatch{PasswordHash: hash, Role: r})
		if err != nil {
			fatalf("user set failed: %v", err)
		}
		fmt.Printf("updated: id=%d username=%s role=%s created_at=%s\n",
			u.ID, u.Username, u.Role, formatTime(u.CreatedAt))

	case "delete":
		fs := flag.NewFlagSet("user delete", flag.ExitOnError)
		username := fs.String("username", "", "username (required)")
		fs.Parse(args[1:])
		if *username == "" {
			fs.Usage()
			os.Exit(2)
		}
		if err := users.DeleteByUsername(ctx, *username); err != nil {
			fatalf("delete user: %v", err)
		}
		fmt.Printf("deleted %s\n", *username)

	default:
		fatalf("unknown user subcommand: %s", args[0])
	}
}

func runUsers(ctx context.Context, users *store.UserRepo, args []string) {
	if len(args) < 1 || args[0] != "list" {
		fatalf("usage: users list")
	}
	list, err := users.List(ctx)
	if err != nil {
		fatalf("list users: %v", err)
	}
	fmt.Printf("%-6s %-24s %-8s %-25s\n", "ID", "USERNAME", "ROLE", "CREATED_AT")
	for _, u := range list {
		fmt.Printf("%-6d %-24s %-8s %-25s\n", u.ID, u.Username, u.Role, formatTime(u.CreatedAt))
	}
}

func runSettings(ctx context.Context, s settings.Store, args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "get":
		rec, found, err := settings.Get(ctx, s)
		if err != nil {
			fatalf("read settings: %v", err)
		}
		out, err := tui.Render(rec, found)
		if err != nil {
			fmt.Print(tui.Markdown(rec, found))
			return
		}
		fmt.Print(out)

	case "set":
		rec, found, err := settings.Get(ctx, s)
		if err != nil && !errors.Is(err, settings.ErrCorrupt) {
			fatalf("read settings: %v", err)
		}
		if !found {
			rec = settings.Defaults()
		}

		fs := flag.NewFlagSet("settings set", flag.ExitOnError)
		values := make(map[string]*string, len(settings.Fields))
		for _, f := range settings.Fields {
			values[f.Key] = fs.String(f.Key, "", f.Label+" (true|false)")
		}
		fs.Parse(args[1:])

		changed := 0
		for _, f := range settings.Fields {
			v := *values[f.Key]
			if v == "" {
				continue
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				fatalf("--%s: %v", f.Key, err)
			}
			f.Set(&rec, b)
			changed++
		}
		if changed == 0 {
			fs.Usage()
			os.Exit(2)
		}
		if err := settings.Set(ctx, s, rec); err != nil {
			fatalf("save settings: %v", err)
		}
		fmt.Print(tui.Markdown(rec, true))

	case "reset":
		if err := settings.Set(ctx, s, settings.Defaults()); err != nil {
			fatalf("reset settings: %v", err)
		}
		fmt.Println("settings reset to defaults")

	case "edit":
		if err := tui.Edit(ctx, s); err != nil {
			fatalf("edit settings: %v", err)
		}

	default:
		fatalf("unknown settings subcommand: %s", args[0])
	}
}
