package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/laketemp/internal/logutil"
)

// Globals is bound into every command's Run method.
type Globals struct {
	ConfigPath string
	Logger     zerolog.Logger
	Stdout     io.Writer
}

type CLI struct {
	EnvFile  kongdotenv.ENVFileConfig `name:"env-file" default:".env" help:"Load environment variables from this file if it exists."`
	Config   string                   `short:"c" default:"lakes.yaml" env:"LAKETEMP_CONFIG" type:"path" help:"Lake definitions (YAML)."`
	LogLevel string                   `default:"info" env:"LAKETEMP_LOG_LEVEL" enum:"trace,debug,info,warn,error" help:"Log level."`
	LogJSON  bool                     `name:"log-json" env:"LAKETEMP_LOG_JSON" help:"Log JSON lines instead of console text."`

	Serve    ServeCmd    `cmd:"" default:"withargs" help:"Poll all lakes and serve their state over HTTP."`
	Fetch    FetchCmd    `cmd:"" help:"Refresh every lake once and print the result."`
	Check    CheckCmd    `cmd:"" help:"Parse the bundled sample payloads; with RUN_ONLINE=1 also fetch live data."`
	Validate ValidateCmd `cmd:"" help:"Validate the lake configuration file."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("laketemp"),
		kong.Description("Lake water temperatures from Bavarian and Austrian hydrology portals."),
		kong.UsageOnError(),
	)

	logger := logutil.New(os.Stderr, cli.LogLevel, cli.LogJSON)
	err := ctx.Run(&Globals{
		ConfigPath: cli.Config,
		Logger:     logger,
		Stdout:     os.Stdout,
	})
	ctx.FatalIfErrorf(err)
}
