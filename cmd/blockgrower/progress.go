package main

import (
	"fmt"
	"sync"
)

// terminalProgress prints a single overwriting percentage line, the Go
// equivalent of the original crawler's tqdm bar.
type terminalProgress struct {
	mu    sync.Mutex
	label string
}

func newTerminalProgress(label string) *terminalProgress {
	return &terminalProgress{label: label}
}

// Progress implements crawl.ProgressObserver.
func (p *terminalProgress) Progress(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if total == 0 {
		return
	}
	pct := 100 * done / total
	fmt.Printf("\r%s: %d/%d (%d%%)", p.label, done, total, pct)
	if done >= total {
		fmt.Println()
	}
}
