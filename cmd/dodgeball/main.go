package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/version"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var CLI struct {
	Version bool `help:"Print version information and exit." short:"v"`
	Debug   bool `help:"Whether to enable debug logging." env:"DODGEBALL_DEBUG"`

	Relay struct {
		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"file"`
	} `cmd:"" help:"Run a relay that dodgeball participants connect to."`

	Sim struct {
		Players  int           `help:"Number of bots." default:"4"`
		Latency  uint64        `help:"Delivery delay in ticks." default:"0"`
		Seed     int64         `help:"Seed for the bots' randomness." default:"1"`
		Duration time.Duration `help:"Simulated time to play for." default:"60s"`
		Journal  bool          `help:"Record the match to the journal database."`

		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"file"`
	} `cmd:"" help:"Play a headless match between bots in this process."`

	Play struct {
		Name      string `help:"Name to join with." default:"bot" env:"DODGEBALL_NAME"`
		Character string `help:"Character to play." env:"DODGEBALL_CHARACTER"`
		Room      string `help:"Room to join, overriding the configuration." env:"DODGEBALL_ROOM"`
		Redis     bool   `help:"Join through Redis instead of a relay."`

		Configs []string `arg:"" optional:"" name:"configs" help:"Configuration files." type:"file"`
	} `cmd:"" help:"Join a room as a bot."`

	Config struct {
	} `cmd:"" help:"Write the default configuration to standard output."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(consoleWriter)

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// A missing .env is fine.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI,
		kong.Name("dodgeball"),
		kong.Description("ball authority for multiplayer dodgeball"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	if CLI.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Warn().Msg("debug logging enabled")
	}

	if CLI.Version {
		fmt.Printf(
			"dodgeball %s (commit %s)\n",
			version.Version,
			version.GitCommit,
		)
		fmt.Printf(
			"built %s\n",
			version.BuildTime,
		)
		os.Exit(0)
	}

	var err error
	switch ctx.Command() {
	case "relay", "relay <configs>":
		err = relayCommand(CLI.Relay.Configs)
	case "sim", "sim <configs>":
		err = simCommand(CLI.Sim.Configs)
	case "play", "play <configs>":
		err = playCommand(CLI.Play.Configs)
	case "config":
		os.Stdout.Write(config.DEFAULT)
	}
	if err != nil {
		writeError(err)
	}
}
