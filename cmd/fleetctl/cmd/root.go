package cmd

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FLEETCTL"

// options are the persistent settings shared by every subcommand. Each can
// also come from FLEETCTL_<NAME>.
type options struct {
	Server   string
	Seed     string
	Game     string
	Fleet    string
	StateDir string
}

func (o options) requirePlayer() error {
	var missing []string
	if o.Seed == "" {
		missing = append(missing, "--seed")
	}
	if o.Game == "" {
		missing = append(missing, "--game")
	}
	if o.Fleet == "" {
		missing = append(missing, "--fleet")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type cli struct {
	v    *viper.Viper
	http *http.Client
}

func (c *cli) options() options {
	return options{
		Server:   strings.TrimRight(c.v.GetString("server"), "/"),
		Seed:     c.v.GetString("seed"),
		Game:     c.v.GetString("game"),
		Fleet:    c.v.GetString("fleet"),
		StateDir: c.v.GetString("state_dir"),
	}
}

// NewRootCmd creates the fleetctl command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{v: viper.New(), http: &http.Client{Timeout: 30 * time.Second}}

	rootCmd := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Play a fleet duel against a fleetd arbiter",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	fs := rootCmd.PersistentFlags()
	fs.String("server", "http://localhost:3001", "arbiter base URL")
	fs.String("seed", "", "secret seed for the signing key and board nonces")
	fs.String("game", "", "game session id")
	fs.String("fleet", "", "fleet (player) name")
	fs.String("state-dir", ".fleetctl", "directory holding local fleet state")

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	fs.VisitAll(func(f *pflag.Flag) {
		if err := c.v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
			panic(err)
		}
	})

	rootCmd.AddCommand(
		c.newJoinCmd(),
		c.newFireCmd(),
		c.newReportCmd(),
		c.newWaveCmd(),
		c.newWinCmd(),
		c.newStateCmd(),
		c.newLogsCmd(),
	)
	return rootCmd
}
