package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Daniel-Hillman/chop-shop-base44-sub003/config"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/debug"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/player"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/sequencer"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/store"
	"github.com/Daniel-Hillman/chop-shop-base44-sub003/tui"
)

func main() {
	debugFlag := flag.Bool("debug", false, "write a debug log to ~/.config/chopshop/debug.log")
	safeMode := flag.Bool("safe", false, "run without a player (pattern and clock only)")
	load := flag.String("load", "", "load a saved pattern by name")
	flag.Parse()

	if *debugFlag {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log unavailable: %v\n", err)
		}
		defer debug.Disable()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad config: %v\n", err)
		os.Exit(1)
	}

	svc, err := sequencer.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	if *load != "" {
		pattern, chops, err := store.Load(*load)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		svc.SetChops(chops)
		if err := svc.RestorePattern(pattern); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		svc.SetChops(demoChops())
	}

	if !*safeMode {
		handle := player.NewSimulated(240)
		if err := svc.AttachPlayer(handle); err != nil {
			fmt.Fprintf(os.Stderr, "player unavailable, continuing in safe mode: %v\n", err)
		}
	}

	m := tui.NewModel(svc)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// demoChops slices the first minute of the simulated stream across bank A
// and a few pads of bank B.
func demoChops() []sequencer.Chop {
	var chops []sequencer.Chop
	for i := 0; i < sequencer.NumTracks; i++ {
		start := float64(i) * 2.5
		chops = append(chops, sequencer.Chop{
			PadID:     sequencer.FormatPadID(0, i),
			StartTime: start,
			EndTime:   start + 2.5,
		})
	}
	for i := 0; i < 4; i++ {
		start := 60 + float64(i)*5
		chops = append(chops, sequencer.Chop{
			PadID:     sequencer.FormatPadID(1, i),
			StartTime: start,
			EndTime:   start + 5,
		})
	}
	return chops
}
