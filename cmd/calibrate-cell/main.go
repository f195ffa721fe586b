// Command calibrate-cell computes the scale factor of one load cell from a
// reference weight, then prints live readings with the new factor.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/parking-controller/internal/config"
	"github.com/sweeney/parking-controller/internal/controller"
	"github.com/sweeney/parking-controller/internal/loadcell"
	"github.com/sweeney/parking-controller/internal/logic"
	"github.com/sweeney/parking-controller/internal/runflag"
)

const liveInterval = 500 * time.Millisecond

var (
	errInputClosed = errors.New("input closed")
	errInterrupted = errors.New("interrupted")
)

func main() {
	configPath := flag.String("config", "parking.toml", "TOML config file")
	slot := flag.Int("slot", 1, "Slot to calibrate (1-based)")
	flag.Parse()

	if err := run(*configPath, *slot); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, slot int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if slot < 1 || slot > len(cfg.Channels) {
		return fmt.Errorf("slot %d out of range 1-%d", slot, len(cfg.Channels))
	}
	cc := cfg.Channels[slot-1]

	board := controller.NewBoard(cfg)
	defer board.Close()
	pins := loadcell.Pins{Data: cc.Data, Clock: cc.Clock}
	dev, err := board.OpenCell(pins)
	if err != nil {
		return fmt.Errorf("slot %d load cell (DT=%d SCK=%d): %w", slot, cc.Data, cc.Clock, err)
	}
	ch, err := loadcell.New(slot-1, pins, dev, cc.Scale, cfg.Timing.Samples)
	if err != nil {
		dev.Close()
		return err
	}
	defer ch.Close()

	running := runflag.New()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		running.Clear()
	}()

	factor, err := calibrate(ch, scanLines(os.Stdin), running, os.Stdout)
	if errors.Is(err, errInterrupted) {
		fmt.Println()
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("set scale = %.4f for slot %d in %s\n", factor, slot, configPath)

	live(ch, running, os.Stdout)
	return nil
}

func scanLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// calibrate walks through tare, empty reading and loaded reading, and
// applies the resulting factor to ch. Clearing running abandons it at the
// next prompt.
func calibrate(ch *loadcell.Channel, lines <-chan string, running *runflag.Flag, out io.Writer) (float64, error) {
	if _, err := prompt(lines, running, out, "remove all weight from the cell and press Enter"); err != nil {
		return 0, err
	}
	if err := ch.Tare(); err != nil {
		return 0, err
	}
	without, err := ch.RawNet()
	if err != nil {
		return 0, err
	}

	var grams float64
	for {
		answer, err := prompt(lines, running, out, "place a known weight on the cell and enter its grams")
		if err != nil {
			return 0, err
		}
		grams, err = strconv.ParseFloat(answer, 64)
		if err == nil && grams > 0 {
			break
		}
		fmt.Fprintf(out, "%q is not a positive number\n", answer)
	}

	with, err := ch.RawNet()
	if err != nil {
		return 0, err
	}
	factor, err := logic.ScaleFactor(without, with, grams)
	if err != nil {
		return 0, fmt.Errorf("slot %d: %w", ch.Index+1, err)
	}
	if err := ch.SetScale(factor); err != nil {
		return 0, err
	}
	fmt.Fprintf(out, "raw net %.1f without load, %.1f with %.1fg: factor %.4f\n", without, with, grams, factor)
	return factor, nil
}

func prompt(lines <-chan string, running *runflag.Flag, out io.Writer, msg string) (string, error) {
	fmt.Fprintf(out, "%s: ", msg)
	select {
	case line, ok := <-lines:
		if !ok {
			return "", errInputClosed
		}
		return strings.TrimSpace(line), nil
	case <-running.Done():
		return "", errInterrupted
	}
}

// live prints the weight every liveInterval until the flag is cleared.
func live(ch *loadcell.Channel, running *runflag.Flag, out io.Writer) {
	fmt.Fprintln(out, "live readings, Ctrl-C to stop")
	for running.Running() {
		g, err := ch.Weight()
		if err != nil {
			fmt.Fprintf(out, "read: %v\n", err)
		} else {
			fmt.Fprintf(out, "slot %d: %.2fg\n", ch.Index+1, g)
		}
		running.Sleep(liveInterval)
	}
}
