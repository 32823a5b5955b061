// Package daemon runs the long-lived verbatim process: it owns the
// config manager, the control socket, the transcript consumers (store,
// feed, log) and at most one capture session at a time.
package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gmarchesi/verbatim/internal/bus"
	"github.com/gmarchesi/verbatim/internal/config"
	"github.com/gmarchesi/verbatim/internal/events"
	"github.com/gmarchesi/verbatim/internal/feed"
	"github.com/gmarchesi/verbatim/internal/notify"
	"github.com/gmarchesi/verbatim/internal/pipeline"
	"github.com/gmarchesi/verbatim/internal/store"
)

type Daemon struct {
	notifier notify.Notifier
	manager  *config.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pipe      pipeline.Pipeline
	sessionID string
	consumer  sync.WaitGroup

	store *store.Store
	hub   *feed.Hub
}

func New(n notify.Notifier) (*Daemon, error) {
	if n == nil {
		n = notify.Desktop{}
	}

	manager, err := config.NewManager()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		notifier: n,
		manager:  manager,
		ctx:      ctx,
		cancel:   cancel,
	}

	cfg := manager.GetConfig()
	if cfg.Store.Enabled {
		path := cfg.Store.Path
		if path == "" {
			dir, err := config.DataDir()
			if err != nil {
				cancel()
				return nil, err
			}
			path = filepath.Join(dir, "verbatim.db")
		}
		st, err := store.Open(path)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open transcript store: %w", err)
		}
		d.store = st
	}
	if cfg.Feed.Enabled {
		d.hub = feed.NewHub()
	}

	return d, nil
}

func (d *Daemon) status() pipeline.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pipe == nil {
		return pipeline.Idle
	}
	return d.pipe.Status()
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.manager.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config watching unavailable: %v", err)
	}
	defer d.manager.Stop()

	if d.hub != nil {
		addr := d.manager.GetConfig().Feed.ListenAddr
		go func() {
			if err := d.hub.Serve(d.ctx, addr); err != nil {
				log.Printf("Daemon: feed server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				d.teardown()
				return nil
			}
			log.Printf("Accept error: %v", err)
			d.teardown()
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}

	switch line[0] {
	case bus.CmdToggle:
		if err := d.toggle(); err != nil {
			fmt.Fprintf(c, "ERR toggle: %v\n", err)
			return
		}
		fmt.Fprint(c, "OK toggled\n")
	case bus.CmdStatus:
		fmt.Fprintf(c, "STATUS status=%s\n", d.status())
	case bus.CmdVersion:
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case bus.CmdQuit:
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Unknown command: %c", line[0])
		fmt.Fprintf(c, "ERR unknown=%q\n", line[0])
	}
}

func (d *Daemon) toggle() error {
	if d.status() == pipeline.Idle {
		return d.startSession()
	}
	d.stopSession()
	return nil
}

func (d *Daemon) startSession() error {
	cfg := d.manager.GetConfig()
	if err := cfg.Validate(); err != nil {
		d.notifier.Error(fmt.Sprintf("Invalid configuration: %v", err))
		return err
	}

	p := pipeline.New(cfg, pipeline.Factories{})
	out, err := p.Run(d.ctx)
	if err != nil {
		d.notifier.Error(fmt.Sprintf("Failed to start session: %v", err))
		return err
	}

	sessionID := ""
	if d.store != nil {
		sessionID, err = d.store.CreateSession()
		if err != nil {
			log.Printf("Daemon: session not persisted: %v", err)
		}
	}

	d.mu.Lock()
	d.pipe = p
	d.sessionID = sessionID
	d.mu.Unlock()

	d.consumer.Add(1)
	go d.consume(out, sessionID)

	go d.notifier.SessionChanged(true)
	log.Printf("Daemon: session %s started", sessionID)
	return nil
}

// consume is the pipeline's sole downstream reader: every merged
// segment is logged, persisted and broadcast. The loop ends when the
// pipeline closes its output stream.
func (d *Daemon) consume(out <-chan events.TranscriptionSegment, sessionID string) {
	defer d.consumer.Done()

	for seg := range out {
		log.Printf("Transcript: [%s] [%s - %s] %s",
			seg.Speaker,
			seg.Start.Format("15:04:05"),
			seg.End.Format("15:04:05"),
			seg.Text)

		if d.store != nil && sessionID != "" {
			if err := d.store.SaveSegment(sessionID, seg); err != nil {
				log.Printf("Daemon: segment not persisted: %v", err)
			}
		}
		if d.hub != nil {
			d.hub.Broadcast(seg)
		}
	}

	if d.store != nil && sessionID != "" {
		if err := d.store.EndSession(sessionID); err != nil {
			log.Printf("Daemon: session not closed in store: %v", err)
		}
	}
	log.Printf("Daemon: session %s ended", sessionID)
}

func (d *Daemon) stopSession() {
	d.mu.Lock()
	p := d.pipe
	d.pipe = nil
	d.sessionID = ""
	d.mu.Unlock()

	if p == nil {
		return
	}

	p.Stop()
	d.waitConsumer(5 * time.Second)
	go d.notifier.SessionChanged(false)
}

// waitConsumer bounds the drain so a wedged model call cannot hang
// shutdown forever.
func (d *Daemon) waitConsumer(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.consumer.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("Daemon: consumer did not drain within %v", timeout)
	}
}

func (d *Daemon) teardown() {
	d.stopSession()
	if d.hub != nil {
		d.hub.Close()
	}
	if d.store != nil {
		d.store.Close()
	}
}
