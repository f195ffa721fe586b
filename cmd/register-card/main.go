// Command register-card adds NFC cards to the parking allow-list. Each card
// presented is shown with its UID and appended after confirmation.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweeney/parking-controller/internal/allowlist"
	"github.com/sweeney/parking-controller/internal/config"
	"github.com/sweeney/parking-controller/internal/nfc"
	"github.com/sweeney/parking-controller/internal/runflag"
)

const (
	pollTimeout  = 100 * time.Millisecond
	removalPause = 200 * time.Millisecond
)

func main() {
	configPath := flag.String("config", "parking.toml", "TOML config file")
	allowList := flag.String("allow-list", "", "Allow-list file (overrides the config)")
	flag.Parse()

	if err := run(*configPath, *allowList); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, allowList string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if allowList != "" {
		cfg.AllowList = allowList
	}

	reader, err := nfc.OpenPN532(cfg.NFC.Bus, cfg.NFC.Addr)
	if err != nil {
		return err
	}
	defer reader.Close()
	log.Printf("nfc: PN532 firmware %d.%d", reader.Firmware[1], reader.Firmware[2])

	running := runflag.New()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		running.Clear()
	}()

	s := &session{
		reader: reader,
		lines:  scanLines(os.Stdin),
		out:    os.Stdout,
		path:   cfg.AllowList,
		flag:   running,
	}
	fmt.Fprintf(s.out, "registering cards into %s, Ctrl-C to finish\n", s.path)
	return s.run()
}

// scanLines feeds lines from r into a channel that is closed at EOF.
func scanLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

type session struct {
	reader nfc.Reader
	lines  <-chan string
	out    io.Writer
	path   string
	flag   *runflag.Flag
}

// run registers cards until the flag is cleared or input ends.
func (s *session) run() error {
	fmt.Fprintln(s.out, "present a card")
	for s.flag.Running() {
		uid, err := s.reader.Poll(pollTimeout)
		if err != nil {
			log.Printf("nfc: poll: %v", err)
			s.flag.Sleep(time.Second)
			continue
		}
		if len(uid) == 0 {
			s.flag.Sleep(removalPause)
			continue
		}

		card := nfc.EncodeUID(uid)
		list, err := allowlist.Load(s.path)
		if err != nil {
			list = allowlist.New()
		}
		if list.Contains(card) {
			fmt.Fprintf(s.out, "card %s is already registered\n", card)
		} else {
			fmt.Fprintf(s.out, "register card %s? [y/n] ", card)
			answer, ok := s.readLine()
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			if answer == "y" || answer == "yes" {
				if err := allowlist.Append(s.path, card); err != nil {
					return err
				}
				fmt.Fprintf(s.out, "card %s registered\n", card)
			} else {
				fmt.Fprintln(s.out, "skipped")
			}
		}

		fmt.Fprintln(s.out, "remove the card")
		s.waitRemoval()
		fmt.Fprintln(s.out, "present a card")
	}
	return nil
}

func (s *session) readLine() (string, bool) {
	select {
	case line, ok := <-s.lines:
		return strings.ToLower(strings.TrimSpace(line)), ok
	case <-s.flag.Done():
		return "", false
	}
}

func (s *session) waitRemoval() {
	for s.flag.Running() {
		uid, err := s.reader.Poll(pollTimeout)
		if err == nil && len(uid) == 0 {
			return
		}
		s.flag.Sleep(removalPause)
	}
}
