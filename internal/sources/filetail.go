package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"clawav/internal/detect"
	"clawav/internal/logger"
	"clawav/pkg/models"
)

// FileTailerConfig configures the network log tailer.
type FileTailerConfig struct {
	Path         string
	Prefix       string
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

// FileTailer follows a syslog-style file for kernel firewall entries. It polls for new data
// rather than blocking, and keeps running through read errors.
type FileTailer struct {
	cfg       FileTailerConfig
	publisher Publisher
	sink      EventSink
	health    healthState
}

type lineReader interface {
	ReadString(delim byte) (string, error)
}

// NewFileTailer creates a tailer. sink may be nil when no detectors are wired.
func NewFileTailer(cfg FileTailerConfig, publisher Publisher, sink EventSink) *FileTailer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &FileTailer{cfg: cfg, publisher: publisher, sink: sink}
}

func (t *FileTailer) ID() string { return "network-file" }

func (t *FileTailer) SourceType() string { return "file" }

func (t *FileTailer) Health() detect.Health { return t.health.get() }

// Start opens the log, seeks to its end and tails it in the background until ctx is done.
func (t *FileTailer) Start(ctx context.Context) error {
	f, err := os.Open(t.cfg.Path)
	if err != nil {
		t.health.set(detect.Failed)
		return errors.Wrapf(err, "open network log %s", t.cfg.Path)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		t.health.set(detect.Failed)
		return errors.Wrapf(err, "seek network log %s", t.cfg.Path)
	}

	logger.Infof("Tailing network log %s (prefix %q)", t.cfg.Path, t.cfg.Prefix)
	t.health.set(detect.Healthy)
	go func() {
		defer f.Close()
		t.readLoop(ctx, bufio.NewReader(f))
	}()
	return nil
}

func (t *FileTailer) readLoop(ctx context.Context, r lineReader) {
	var pending strings.Builder
	for ctx.Err() == nil {
		chunk, err := r.ReadString('\n')
		pending.WriteString(chunk)

		switch {
		case err == nil:
			t.handleLine(pending.String())
			pending.Reset()
			t.health.set(detect.Healthy)
		case errors.Is(err, io.EOF):
			if !sleepCtx(ctx, t.cfg.PollInterval) {
				return
			}
		default:
			logger.Warnf("Error reading network log %s: %v", t.cfg.Path, err)
			t.health.set(detect.Degraded)
			t.publisher.Publish(models.NewAlert(models.Warning, networkSource, fmt.Sprintf("Error reading network log: %v", err)))
			if !sleepCtx(ctx, t.cfg.ErrorBackoff) {
				return
			}
		}
	}
}

func (t *FileTailer) handleLine(line string) {
	line = strings.TrimRight(line, "\r\n")
	event, ok := ParseFirewallEvent(line, t.cfg.Prefix)
	if !ok {
		return
	}
	t.publisher.Publish(firewallAlert(event))
	if t.sink != nil {
		t.sink.Dispatch(event)
	}
}
