// Package allowlist loads and extends the set of card UIDs allowed through
// the barrier. The file holds one lowercase hex UID per line.
package allowlist

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
)

// DefaultPath is the allow-list file written by the registration tool.
const DefaultPath = "valid_uids.txt"

// List is an immutable set of hex-encoded UIDs. The zero value is empty and
// denies every card.
type List struct {
	uids map[string]struct{}
}

// New builds a List from UIDs, normalizing case and whitespace.
func New(uids ...string) *List {
	l := &List{uids: make(map[string]struct{}, len(uids))}
	for _, u := range uids {
		if u = normalize(u); u != "" {
			l.uids[u] = struct{}{}
		}
	}
	return l
}

// Load reads path. Blank lines and lines starting with '#' are skipped.
// A missing file returns an error wrapping fs.ErrNotExist.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()

	l := New()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := normalize(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		l.uids[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read allow-list %s: %w", path, err)
	}
	return l, nil
}

// Contains reports whether uid is allowed.
func (l *List) Contains(uid string) bool {
	if l == nil {
		return false
	}
	_, ok := l.uids[normalize(uid)]
	return ok
}

// Len returns the number of distinct UIDs.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.uids)
}

// UIDs returns the members in sorted order.
func (l *List) UIDs() []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, len(l.uids))
	for u := range l.uids {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Append adds uid to the file at path, creating it if needed.
func Append(path, uid string) error {
	uid = normalize(uid)
	if _, err := hex.DecodeString(uid); err != nil || uid == "" {
		return fmt.Errorf("allow-list: %q is not a hex UID", uid)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open allow-list: %w", err)
	}
	if _, err := f.WriteString(uid + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write allow-list: %w", err)
	}
	return f.Close()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
