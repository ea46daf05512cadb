package cmd

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/events"
)

const replyOK = "OK"

// send proves body for cmd, signs the journal and posts the envelope. The
// public key travels only with Join.
func (c *cli) send(ctx context.Context, o options, key ed25519.PrivateKey, cmd codec.Command, body any) (string, error) {
	receipt, err := attest.DevProver{}.Prove(cmd, body)
	if err != nil {
		return "", fmt.Errorf("prove %s: %w", cmd, err)
	}
	env := codec.Envelope{
		Cmd:       cmd,
		Receipt:   receipt,
		Signature: ed25519.Sign(key, receipt.Journal),
	}
	if cmd == codec.CmdJoin {
		env.PublicKey = key.Public().(ed25519.PublicKey)
	}
	raw, err := env.Encode()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Server+"/chain", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post command: %w", err)
	}
	defer resp.Body.Close()
	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("arbiter returned %s: %s", resp.Status, strings.TrimSpace(string(reply)))
	}
	return string(reply), nil
}

// finish prints the reply and turns a rejection into a command error.
func finish(cmd *cobra.Command, reply string) error {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply)
	if reply != replyOK {
		return errors.New("command rejected")
	}
	return nil
}

func (c *cli) newJoinCmd() *cobra.Command {
	var ships string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Place a fleet and join (or open) a game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			if err := o.requirePlayer(); err != nil {
				return err
			}
			cells, err := parseShips(ships)
			if err != nil {
				return err
			}
			f := &fleet{Game: o.Game, Name: o.Fleet, Ships: cells, seed: o.Seed}
			reply, err := c.send(cmd.Context(), o, f.key(), codec.CmdJoin, codec.BaseJournal{
				GameID: o.Game,
				Fleet:  o.Fleet,
				Board:  f.commitment(),
			})
			if err != nil {
				return err
			}
			if reply == replyOK {
				if err := f.save(o.StateDir); err != nil {
					return err
				}
			}
			return finish(cmd, reply)
		},
	}
	cmd.Flags().StringVar(&ships, "ships", "", "comma separated ship cells, e.g. A0,A1,A2,C5,D5")
	_ = cmd.MarkFlagRequired("ships")
	return cmd
}

func (c *cli) newFireCmd() *cobra.Command {
	var target, at string
	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Fire at another fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			if err := o.requirePlayer(); err != nil {
				return err
			}
			pos, err := parseCell(at)
			if err != nil {
				return err
			}
			f, err := loadFleet(o.StateDir, o.Game, o.Fleet, o.Seed)
			if err != nil {
				return err
			}
			reply, err := c.send(cmd.Context(), o, f.key(), codec.CmdFire, codec.FireJournal{
				GameID: o.Game,
				Fleet:  o.Fleet,
				Board:  f.commitment(),
				Target: target,
				Pos:    pos,
			})
			if err != nil {
				return err
			}
			return finish(cmd, reply)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "fleet to fire at")
	cmd.Flags().StringVar(&at, "at", "", "target cell, e.g. F3")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (c *cli) newReportCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Report the outcome of the shot fired at your fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			if err := o.requirePlayer(); err != nil {
				return err
			}
			pos, err := parseCell(at)
			if err != nil {
				return err
			}
			f, err := loadFleet(o.StateDir, o.Game, o.Fleet, o.Seed)
			if err != nil {
				return err
			}
			outcome, next := f.resolve(pos)
			reply, err := c.send(cmd.Context(), o, f.key(), codec.CmdReport, codec.ReportJournal{
				GameID:    o.Game,
				Fleet:     o.Fleet,
				Report:    outcome,
				Pos:       pos,
				Board:     f.commitment(),
				NextBoard: next.commitment(),
			})
			if err != nil {
				return err
			}
			if reply == replyOK {
				if err := next.save(o.StateDir); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s at %s, %d cells afloat\n", outcome, codec.CoordString(pos), len(next.Ships))
			}
			return finish(cmd, reply)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "cell that was fired at, e.g. F3")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func (c *cli) newWaveCmd() *cobra.Command {
	return c.newBaseCmd(codec.CmdWave, "wave", "Pass your turn to the longest idle fleet")
}

func (c *cli) newWinCmd() *cobra.Command {
	return c.newBaseCmd(codec.CmdWin, "win", "Claim victory, or contest a pending claim")
}

func (c *cli) newBaseCmd(kind codec.Command, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			if err := o.requirePlayer(); err != nil {
				return err
			}
			f, err := loadFleet(o.StateDir, o.Game, o.Fleet, o.Seed)
			if err != nil {
				return err
			}
			reply, err := c.send(cmd.Context(), o, f.key(), kind, codec.BaseJournal{
				GameID: o.Game,
				Fleet:  o.Fleet,
				Board:  f.commitment(),
			})
			if err != nil {
				return err
			}
			return finish(cmd, reply)
		},
	}
}

func (c *cli) newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the game state as seen by your fleet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			if o.Game == "" || o.Fleet == "" {
				return errors.New("missing --game or --fleet")
			}
			u := fmt.Sprintf("%s/gamestate/%s/%s", o.Server, url.PathEscape(o.Game), url.PathEscape(o.Fleet))
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, u, nil)
			if err != nil {
				return err
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("get state: %w", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("arbiter returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, body, "", "  "); err != nil {
				return fmt.Errorf("decode state: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(pretty.String()))
			return nil
		},
	}
}

func (c *cli) newLogsCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Follow the arbiter event log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := c.options()
			u, err := url.Parse(o.Server + "/logs/ws")
			if err != nil {
				return fmt.Errorf("server url: %w", err)
			}
			switch u.Scheme {
			case "https":
				u.Scheme = "wss"
			default:
				u.Scheme = "ws"
			}

			ctx := cmd.Context()
			conn, _, err := websocket.Dial(ctx, u.String(), nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", u, err)
			}
			defer conn.CloseNow()

			for n := 0; count <= 0 || n < count; n++ {
				var ev events.Event
				if err := wsjson.Read(ctx, conn, &ev); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("read event: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", ev.Time.Format("15:04:05"), ev.Kind, ev.Message)
			}
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many events (0 follows forever)")
	return cmd
}
