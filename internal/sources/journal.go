package sources

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"clawav/internal/detect"
	"clawav/internal/logger"
	"clawav/internal/transform/journald"
	"clawav/pkg/models"
)

const journalctlBinary = "journalctl"

// DefaultJournalCommand follows kernel messages as JSON, starting from now.
var DefaultJournalCommand = []string{journalctlBinary, "-k", "-f", "-o", "json", "--since", "now"}

// JournalTailerConfig configures the journald source.
type JournalTailerConfig struct {
	Prefix       string
	Command      []string
	ErrorBackoff time.Duration
}

// JournalTailer streams kernel log lines from a follow-mode journalctl subprocess and
// restarts it whenever it exits.
type JournalTailer struct {
	cfg       JournalTailerConfig
	publisher Publisher
	sink      EventSink
	health    healthState
}

// JournaldAvailable runs `journalctl --version` and reports whether it succeeded.
func JournaldAvailable(ctx context.Context) bool {
	return checkVersion(ctx, journalctlBinary)
}

func checkVersion(ctx context.Context, binary string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, binary, "--version").Run() == nil
}

// NewJournalTailer creates a journald tailer. sink may be nil.
func NewJournalTailer(cfg JournalTailerConfig, publisher Publisher, sink EventSink) *JournalTailer {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultJournalCommand
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &JournalTailer{cfg: cfg, publisher: publisher, sink: sink}
}

func (t *JournalTailer) ID() string { return "network-journald" }

func (t *JournalTailer) SourceType() string { return "journald" }

func (t *JournalTailer) Health() detect.Health { return t.health.get() }

// Start launches the follow loop in the background.
func (t *JournalTailer) Start(ctx context.Context) error {
	logger.Infof("Tailing kernel journal (prefix %q)", t.cfg.Prefix)
	go func() {
		for {
			t.runOnce(ctx)
			if !sleepCtx(ctx, t.cfg.ErrorBackoff) {
				return
			}
		}
	}()
	return nil
}

func (t *JournalTailer) runOnce(ctx context.Context) {
	cmd := exec.CommandContext(ctx, t.cfg.Command[0], t.cfg.Command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		logger.Warnf("Failed to start %s: %v", t.cfg.Command[0], err)
		t.health.set(detect.Failed)
		t.publisher.Publish(models.NewAlert(models.Warning, networkSource, fmt.Sprintf("Failed to start journald source: %v", err)))
		return
	}

	t.health.set(detect.Healthy)
	t.publisher.Publish(models.NewAlert(models.Info, networkSource, "Network monitor started (journald source)"))

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		t.handleLine(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		// A follow-mode journalctl never exits by itself once we stop reading.
		logger.Warnf("Reading %s output: %v", t.cfg.Command[0], err)
		_ = cmd.Process.Kill()
	}
	_ = cmd.Wait()

	if ctx.Err() != nil {
		return
	}
	t.health.set(detect.Degraded)
	t.publisher.Publish(models.NewAlert(models.Warning, networkSource, "journalctl process exited unexpectedly"))
}

func (t *JournalTailer) handleLine(line []byte) {
	entry, err := journald.Parse(line)
	if err != nil {
		logger.Debugf("Skipping journal line: %v", err)
		return
	}
	event, ok := ParseFirewallEvent(entry.Raw, t.cfg.Prefix)
	if !ok {
		return
	}
	t.publisher.Publish(firewallAlert(event))
	if t.sink != nil {
		t.sink.Dispatch(event)
	}
}
