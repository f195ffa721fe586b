// Command parking-controller watches three parking slots with load cells and
// lets allowed NFC cards through the entry barrier while a slot is free.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sweeney/parking-controller/internal/config"
	"github.com/sweeney/parking-controller/internal/controller"
)

func main() {
	configPath := flag.String("config", "parking.toml", "TOML config file (defaults are used if it does not exist)")
	allowList := flag.String("allow-list", "", "Allow-list file (overrides the config)")
	printState := flag.Bool("print-state", false, "Tare, print each slot's weight and state, and exit")
	writeConfig := flag.Bool("write-config", false, "Write the default config to -config and exit")

	flag.Parse()
	log.SetOutput(os.Stdout)

	if err := run(*configPath, *allowList, *printState, *writeConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, allowList string, printState, writeConfig bool) error {
	if writeConfig {
		if err := config.WriteDefault(configPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	}

	cfg, err := loadConfig(configPath, allowList)
	if err != nil {
		return err
	}

	hw := controller.NewBoard(cfg)
	if printState {
		return controller.PrintState(cfg, hw, os.Stdout)
	}

	// Signals are caught before startup so an interrupt during tare or the
	// reader handshake still releases the hardware and exits 0.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serve(controller.New(cfg, hw), sigCh)
}

// lifecycle is the part of the controller main drives.
type lifecycle interface {
	Start() error
	Run() error
	Stop()
	Shutdown() error
}

// serve starts c, runs it in the foreground and shuts it down. The first
// signal, at any point, stops c; a signal is a normal shutdown, not an error.
func serve(c lifecycle, sig <-chan os.Signal) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			c.Stop()
		case <-done:
		}
	}()

	if err := c.Start(); err != nil {
		if errors.Is(err, controller.ErrInterrupted) {
			return nil
		}
		return fmt.Errorf("startup: %w", err)
	}
	defer func() {
		if err := c.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()
	return c.Run()
}

func loadConfig(path, allowList string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if allowList != "" {
		cfg.AllowList = allowList
	}
	return cfg, nil
}
