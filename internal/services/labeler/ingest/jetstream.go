// Package ingest subscribes to the jetstream commit feed and turns likes on
// the labeler's own posts into label mutations.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

const (
	// DefaultEndpoint is the public jetstream relay.
	DefaultEndpoint = "wss://jetstream2.us-east.bsky.network/subscribe"
	// DefaultCollection is the record type the pipeline watches.
	DefaultCollection = "app.bsky.feed.like"

	defaultCursorInterval    = time.Minute
	defaultDialTimeout       = 10 * time.Second
	defaultReconnectDelay    = time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	shutdownFlushTimeout     = 5 * time.Second
)

// Labeler receives the (subject, trigger key) pairs extracted from the
// stream. Errors are logged at the event boundary, never re-delivered.
type Labeler interface {
	ApplyTrigger(ctx context.Context, subject, triggerKey string) error
}

// Observer receives stream outcomes, typically backed by metrics counters.
type Observer interface {
	EventReceived()
	EventMalformed()
	StreamConnected()
	StreamDisconnected()
}

// NopObserver discards all outcomes.
type NopObserver struct{}

func (NopObserver) EventReceived()      {}
func (NopObserver) EventMalformed()     {}
func (NopObserver) StreamConnected()    {}
func (NopObserver) StreamDisconnected() {}

// Config controls the stream subscription and checkpoint cadence.
type Config struct {
	// Endpoint is the jetstream subscribe URL.
	Endpoint string
	// Collection filters commit events to one record type.
	Collection string
	// LabelerDID is this labeler's identity. Likes whose subject does not
	// reference it are discarded.
	LabelerDID string
	// CursorInterval is the periodic checkpoint flush cadence.
	CursorInterval time.Duration
	// ReconnectDelay is the base pause before redialing, doubled per
	// consecutive failure up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	DialTimeout       time.Duration
}

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(c.Collection) == "" {
		c.Collection = DefaultCollection
	}
	if c.CursorInterval <= 0 {
		c.CursorInterval = defaultCursorInterval
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	return c
}

// commitEvent is the jetstream wire shape for commit messages.
type commitEvent struct {
	DID    string         `json:"did"`
	TimeUS uint64         `json:"time_us"`
	Kind   string         `json:"kind"`
	Commit *commitPayload `json:"commit"`
}

type commitPayload struct {
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record"`
}

type likeRecord struct {
	Subject struct {
		URI string `json:"uri"`
	} `json:"subject"`
}

// Pipeline consumes the commit stream, applies triggers, and checkpoints
// the stream position. A single Run owns the cursor; no other writer exists.
type Pipeline struct {
	cfg      Config
	labeler  Labeler
	cursors  storage.CursorStore
	observer Observer
	clock    func() time.Time

	cursor uint64
}

// New builds a pipeline with normalized config defaults.
func New(labeler Labeler, cursors storage.CursorStore, cfg Config, observer Observer) (*Pipeline, error) {
	if labeler == nil {
		return nil, fmt.Errorf("labeler is required")
	}
	if cursors == nil {
		return nil, fmt.Errorf("cursor store is required")
	}
	if strings.TrimSpace(cfg.LabelerDID) == "" {
		return nil, fmt.Errorf("labeler did is required")
	}
	if observer == nil {
		observer = NopObserver{}
	}
	return &Pipeline{
		cfg:      cfg.normalized(),
		labeler:  labeler,
		cursors:  cursors,
		observer: observer,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run subscribes and processes events until context cancellation, then
// flushes the cursor synchronously. Connection loss triggers redial with
// backoff; the last flushed cursor survives on disk either way.
func (p *Pipeline) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.restoreCursor(ctx); err != nil {
		return err
	}

	delay := p.cfg.ReconnectDelay
	for {
		err := p.stream(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			log.Printf("jetstream connection lost: %v", err)
		}
		log.Printf("reconnecting to jetstream in %v", delay)
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		if ctx.Err() != nil {
			break
		}
		delay *= 2
		if delay > p.cfg.MaxReconnectDelay {
			delay = p.cfg.MaxReconnectDelay
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	if err := p.cursors.SaveCursor(flushCtx, p.Cursor()); err != nil {
		return fmt.Errorf("flush cursor on shutdown: %w", err)
	}
	return nil
}

// Cursor returns the last observed stream position in epoch microseconds.
func (p *Pipeline) Cursor() uint64 {
	return p.cursor
}

// restoreCursor loads the checkpoint, defaulting to now when absent so a
// fresh deployment does not replay history.
func (p *Pipeline) restoreCursor(ctx context.Context) error {
	cursor, found, err := p.cursors.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if !found {
		cursor = uint64(p.clock().UnixMicro())
		if err := p.cursors.SaveCursor(ctx, cursor); err != nil {
			return fmt.Errorf("save initial cursor: %w", err)
		}
		log.Printf("no saved cursor, starting at %d (%s)", cursor, microsToTime(cursor).Format(time.RFC3339))
	} else {
		log.Printf("resuming from cursor %d (%s)", cursor, microsToTime(cursor).Format(time.RFC3339))
	}
	p.cursor = cursor
	return nil
}

// stream runs one connection lifetime: dial, read until error or
// cancellation, flushing the cursor on a fixed interval while connected.
func (p *Pipeline) stream(ctx context.Context) error {
	subscribeURL, err := p.subscribeURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: p.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, subscribeURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial jetstream (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial jetstream: %w", err)
	}
	defer conn.Close()

	log.Printf("connected to jetstream at %s with cursor %d", p.cfg.Endpoint, p.cursor)
	p.observer.StreamConnected()
	defer p.observer.StreamDisconnected()

	messages := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(messages)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case messages <- data:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(p.cfg.CursorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case <-ticker.C:
			if err := p.cursors.SaveCursor(ctx, p.cursor); err != nil {
				log.Printf("flush cursor: %v", err)
			}
		case data, ok := <-messages:
			if !ok {
				return <-readErr
			}
			p.handleMessage(ctx, data)
		}
	}
}

func (p *Pipeline) subscribeURL() (string, error) {
	parsed, err := url.Parse(p.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse jetstream endpoint: %w", err)
	}
	query := parsed.Query()
	query.Set("wantedCollections", p.cfg.Collection)
	query.Set("cursor", strconv.FormatUint(p.cursor, 10))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// handleMessage processes one frame. Failures are absorbed here so a bad
// event never tears down the connection.
func (p *Pipeline) handleMessage(ctx context.Context, data []byte) {
	var event commitEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Printf("malformed jetstream frame: %v", err)
		p.observer.EventMalformed()
		return
	}
	if event.TimeUS > p.cursor {
		p.cursor = event.TimeUS
	}
	if event.Kind != "commit" || event.Commit == nil {
		return
	}
	if event.Commit.Operation != "create" || event.Commit.Collection != p.cfg.Collection {
		return
	}
	p.observer.EventReceived()

	var record likeRecord
	if err := json.Unmarshal(event.Commit.Record, &record); err != nil || strings.TrimSpace(record.Subject.URI) == "" {
		log.Printf("malformed like record from %s", event.DID)
		p.observer.EventMalformed()
		return
	}
	if !strings.Contains(record.Subject.URI, p.cfg.LabelerDID) {
		return
	}

	trigger := record.Subject.URI[strings.LastIndex(record.Subject.URI, "/")+1:]
	if err := p.labeler.ApplyTrigger(ctx, event.DID, trigger); err != nil {
		log.Printf("apply trigger %q for %s: %v", trigger, event.DID, err)
	}
}

func microsToTime(micros uint64) time.Time {
	return time.UnixMicro(int64(micros)).UTC()
}
