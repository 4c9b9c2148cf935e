// ABOUTME: Exercises audio/master clock drift compensation without a sound card
// ABOUTME: Plays a tone on the silent backend against an offset master clock and reports corrections
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/clock"
	"github.com/Resonate-Protocol/resonate-media/pkg/driver"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

var (
	offset   time.Duration
	jump     time.Duration
	length   time.Duration
	interval time.Duration
	verbose  bool
)

// skewedOwner reports a master time shifted by an adjustable offset
type skewedOwner struct {
	master *clock.Master
	offset atomic.Int64
	done   chan struct{}
	ended  atomic.Bool
}

func (o *skewedOwner) Time() time.Duration {
	return o.master.Time() + time.Duration(o.offset.Load())
}

func (o *skewedOwner) OnAudioEOS(*driver.AudioPlayer) {
	if o.ended.CompareAndSwap(false, true) {
		close(o.done)
	}
}

func (o *skewedOwner) OnMediaEvent(*driver.AudioPlayer, audio.Event) {}

func main() {
	cmd := &cobra.Command{
		Use:          "sync-check",
		Short:        "Check drift compensation against a skewed master clock",
		SilenceUsage: true,
		RunE:         run,
	}
	cmd.Flags().DurationVar(&offset, "offset", 500*time.Millisecond, "initial master clock offset; positive leaves audio behind")
	cmd.Flags().DurationVar(&jump, "jump", -100*time.Millisecond, "offset applied halfway through")
	cmd.Flags().DurationVar(&length, "length", 6*time.Second, "tone length")
	cmd.Flags().DurationVar(&interval, "report", 500*time.Millisecond, "report interval")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "debug logging")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(*cobra.Command, []string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := driver.Open(driver.BackendSilent)
	defer d.Close()

	format := audio.Format{SampleRate: 48000, Channels: 2, BitDepth: 16}
	src := source.NewTone(format, source.DefaultToneFrequency, length)

	owner := &skewedOwner{master: clock.New(), done: make(chan struct{})}
	owner.offset.Store(int64(offset))

	p, err := d.CreateAudioPlayer(src, owner)
	if err != nil {
		return err
	}
	defer p.Delete()

	p.Prefill()
	owner.master.Play()
	if err := p.Play(); err != nil {
		return err
	}

	fmt.Printf("Playing %v tone at %d Hz on %s, master offset %v\n", length, format.SampleRate, d.Backend(), offset)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	jumpAt := time.After(length / 2)

	for {
		select {
		case <-ctx.Done():
			report(p)
			return nil
		case <-owner.done:
			report(p)
			fmt.Println("Source finished")
			return nil
		case <-jumpAt:
			owner.offset.Store(int64(jump))
			fmt.Printf("Master offset now %v\n", jump)
		case <-ticker.C:
			report(p)
		}
	}
}

func report(p *driver.AudioPlayer) {
	st := p.Stats()
	at, _ := p.Time()
	fmt.Printf("t=%-8v drift=%-10v samples=%d corrections=%s discarded=%s buffered=%s underruns=%d\n",
		at.Truncate(time.Millisecond),
		st.AverageDrift.Truncate(time.Microsecond),
		st.DriftSamples,
		humanize.Comma(st.Corrections),
		humanize.Bytes(uint64(st.DiscardedBytes)),
		humanize.Bytes(uint64(st.Buffered)),
		st.Underruns,
	)
}
