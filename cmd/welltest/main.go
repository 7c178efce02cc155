package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/welltest/internal/editor"
	"github.com/lox/welltest/internal/ingest"
	"github.com/lox/welltest/internal/store"
)

type CLI struct {
	Project string                   `help:"Project file." default:"welltest.pwt" env:"WELLTEST_PROJECT" type:"path"`
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Load environment variables from this file.'"`
	Verbose bool                     `short:"v" help:"Log progress to stderr."`

	Import       ImportCmd       `cmd:"" help:"Import a text, Excel or JSON table into the project."`
	Show         ShowCmd         `cmd:"" help:"Print the table."`
	Define       DefineCmd       `cmd:"" help:"Define column names, types and units."`
	TimeConvert  TimeConvertCmd  `cmd:"" name:"time-convert" help:"Append an elapsed-time column."`
	PressureDrop PressureDropCmd `cmd:"" name:"pressure-drop" help:"Append a pressure-drop column."`
	Row          RowCmd          `cmd:"" help:"Add or delete rows."`
	Column       ColumnCmd       `cmd:"" help:"Add or delete columns."`
	Search       SearchCmd       `cmd:"" help:"List rows with a cell matching a wildcard pattern."`
	Export       ExportCmd       `cmd:"" help:"Write the table as JSON, CSV or XLSX."`
	History      HistoryCmd      `cmd:"" help:"List recent imports."`
	Clear        ClearCmd        `cmd:"" help:"Remove all rows, columns and definitions."`
	Serve        ServeCmd        `cmd:"" help:"Serve the HTTP API."`
}

// App is what every command runs against: the project's editor session
// and where to print.
type App struct {
	Editor  *editor.Editor
	Project string
	Out     io.Writer

	db *sql.DB
}

func openApp(ctx context.Context, path string) (*App, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := st.EnsureProject(ctx, name); err != nil {
		db.Close()
		return nil, err
	}

	ed := editor.New(st, ingest.NewFetcher())
	if err := ed.LoadFromProject(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &App{Editor: ed, Project: path, Out: os.Stdout, db: db}, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("welltest"),
		kong.Description("Edit well-test gauge data: import readings, derive elapsed time and pressure drop."),
		kong.UsageOnError(),
	)

	if !cli.Verbose && kctx.Command() != "serve" {
		log.SetOutput(io.Discard)
	}

	ctx := context.Background()
	app, err := openApp(ctx, cli.Project)
	kctx.FatalIfErrorf(err)
	defer app.Close()

	kctx.FatalIfErrorf(kctx.Run(app))
}
