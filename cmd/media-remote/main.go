// ABOUTME: Command line remote control for resonate-media players
// ABOUTME: Finds a player over mDNS or by address and sends it commands
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-media/internal/discovery"
	"github.com/Resonate-Protocol/resonate-media/internal/remote"
)

var (
	addr    string
	name    string
	timeout time.Duration

	rootCmd = &cobra.Command{
		Use:           "media-remote",
		Short:         "Control a resonate-media player",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "player host:port (default: first player found over mDNS)")
	rootCmd.PersistentFlags().StringVar(&name, "name", "media-remote", "name sent to the player")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "discovery and response timeout")

	rootCmd.AddCommand(
		simpleCommand("play", "Resume playback", remote.CommandPlay),
		simpleCommand("pause", "Pause playback", remote.CommandPause),
		simpleCommand("next", "Skip to the next source", remote.CommandNext),
		&cobra.Command{
			Use:   "seek POSITION",
			Short: "Seek to a position such as 90s or 1m30s",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				pos, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid position: %w", err)
				}
				return send(cmd.Context(), remote.Command{Command: remote.CommandSeek, PositionMs: pos.Milliseconds()})
			},
		},
		&cobra.Command{
			Use:   "volume LEVEL",
			Short: "Set the volume between 0 and 1",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseFloat(args[0], 64)
				if err != nil || v < 0 || v > 1 {
					return fmt.Errorf("volume must be a number between 0 and 1")
				}
				return send(cmd.Context(), remote.Command{Command: remote.CommandVolume, Volume: v})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the player state",
			Args:  cobra.NoArgs,
			RunE:  status,
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Print state changes and events until interrupted",
			Args:  cobra.NoArgs,
			RunE:  watch,
		},
	)
}

func simpleCommand(use, short, command string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return send(cmd.Context(), remote.Command{Command: command})
		},
	}
}

// resolve returns --addr or the first player discovered in time
func resolve(ctx context.Context) (string, error) {
	if addr != "" {
		return addr, nil
	}

	m := discovery.NewManager(discovery.Config{})
	m.Browse()
	defer m.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case p := <-m.Players():
		log.Debug("Found player", "name", p.Name, "addr", p.Addr(), "version", p.Version)
		return p.Addr(), nil
	case <-ctx.Done():
		return "", errors.New("no player found; pass --addr")
	}
}

func connect(ctx context.Context) (*remote.Client, error) {
	target, err := resolve(ctx)
	if err != nil {
		return nil, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return remote.Dial(dialCtx, target, name)
}

// send issues cmd and reports a rejection if one arrives before the next state
func send(ctx context.Context, cmd remote.Command) error {
	c, err := connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	// the first state follows the handshake
	if _, err := nextState(ctx, c); err != nil {
		return err
	}
	if err := c.Send(cmd); err != nil {
		return err
	}

	wait := time.NewTimer(timeout)
	defer wait.Stop()
	for {
		select {
		case e, ok := <-c.Errors:
			if ok {
				return fmt.Errorf("player rejected %s: %s", cmd.Command, e.Message)
			}
		case st, ok := <-c.States:
			if !ok {
				return errors.New("connection closed")
			}
			printState(st)
			return nil
		case <-wait.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func nextState(ctx context.Context, c *remote.Client) (remote.State, error) {
	wait := time.NewTimer(timeout)
	defer wait.Stop()
	select {
	case st, ok := <-c.States:
		if !ok {
			return st, errors.New("connection closed")
		}
		return st, nil
	case <-wait.C:
		return remote.State{}, errors.New("timed out waiting for player state")
	case <-ctx.Done():
		return remote.State{}, ctx.Err()
	}
}

func status(cmd *cobra.Command, _ []string) error {
	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Printf("%s (%s, protocol %d)\n", c.Server.Name, c.Server.Product, c.Server.Version)
	st, err := nextState(cmd.Context(), c)
	if err != nil {
		return err
	}
	printState(st)
	return nil
}

func watch(cmd *cobra.Command, _ []string) error {
	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	for {
		select {
		case st, ok := <-c.States:
			if !ok {
				return nil
			}
			printState(st)
		case ev, ok := <-c.Events:
			if !ok {
				return nil
			}
			fmt.Printf("event %-12s at %v %s%s\n", ev.Event, msDuration(ev.PositionMs), ev.Title, ev.Name)
		case e, ok := <-c.Errors:
			if ok {
				fmt.Printf("error %s\n", e.Message)
			}
		case <-c.Done():
			return nil
		case <-cmd.Context().Done():
			return nil
		}
	}
}

func printState(st remote.State) {
	title := st.Title
	if st.Artist != "" {
		title = st.Artist + " - " + title
	}
	fmt.Printf("%-7s %v vol %.0f%% loop %t %s\n", st.State, msDuration(st.PositionMs), st.Volume*100, st.Loop, title)
}

func msDuration(ms int64) time.Duration {
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
