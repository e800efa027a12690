// Package broker implements the session broker: the only component holding
// process-wide mutable state — the shared note-store service plus, per active
// session, a live delivery channel.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/sidekick/internal/apperr"
	"github.com/starford/sidekick/internal/clip"
	"github.com/starford/sidekick/internal/logseq"
	"github.com/starford/sidekick/internal/models"
	"github.com/starford/sidekick/pkg/config"
)

// SearchService is the domain surface the broker dispatches to.
type SearchService interface {
	Search(ctx context.Context, query string) (models.SearchResult, error)
	URLSearch(ctx context.Context, u *url.URL, opts logseq.URLSearchOptions) (models.SearchResult, error)
	AppendBlock(ctx context.Context, page, content string) error
	ClearCache()
}

// BadgePainter paints the per-tab result counter. External collaborator; an
// empty text clears the badge.
type BadgePainter interface {
	SetBadge(tabID int, text string)
}

// Controller performs host-level actions for fire-and-forget control messages.
type Controller interface {
	OpenOptions()
	OpenPage(url string)
}

// ClipConfig is the capture-related slice of the configuration record.
type ClipConfig struct {
	Location   string
	CustomPage string
	Template   string
}

// Reply is the wire shape delivered back on a session channel. No failure
// crosses the channel boundary unformatted.
type Reply struct {
	Status   int                  `json:"status"`
	Msg      string               `json:"msg"`
	Response *models.SearchResult `json:"response"`
	Count    int                  `json:"count,omitempty"`
}

// ControlMessage is a fire-and-forget host message.
type ControlMessage struct {
	Type  string `json:"type"`
	Data  string `json:"data,omitempty"`
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	TabID int    `json:"tabId,omitempty"`
}

// graphIdentityKeys are the configuration keys whose change invalidates the
// client's resolved graph.
var graphIdentityKeys = map[string]struct{}{
	"logseq.graph_name": {},
	"logseq.host_name":  {},
	"logseq.port":       {},
}

// DefaultDebounce is the badge computation debounce window.
const DefaultDebounce = time.Second

type connectReq struct {
	id   string
	resp chan chan []byte
}

type queryReq struct {
	sessionID string
	query     string
}

type delivery struct {
	sessionID string
	payload   []byte
}

type tabEvent struct {
	tabID int
	url   string
}

type tabState struct {
	timer *time.Timer
	url   string
}

// Options configures a Broker. Badge, Control and ClipConfig may be nil.
type Options struct {
	Service    SearchService
	Badge      BadgePainter
	Control    Controller
	ClipConfig func() ClipConfig
	Debounce   time.Duration
	Logger     *slog.Logger
}

// Broker owns all per-session state and the per-tab debounce timers.
//
// Concurrency model: a single event loop (goroutine) owns the mutable state
// (sessions + timers). Public methods communicate with this loop through
// channels, so no mutexes are required. Searches run in worker goroutines and
// deliver their result back through the loop, which drops replies for
// sessions that disconnected in the meantime.
type Broker struct {
	svc      SearchService
	badge    BadgePainter
	control  Controller
	clipCfg  func() ClipConfig
	debounce time.Duration
	logger   *slog.Logger

	connectCh    chan connectReq
	disconnectCh chan string
	queryCh      chan queryReq
	deliverCh    chan delivery
	configCh     chan map[string]config.Change
	tabCh        chan tabEvent
	tabFireCh    chan int
	controlCh    chan ControlMessage
	countReqCh   chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// New creates a broker and starts its event loop.
func New(opts Options) *Broker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	b := &Broker{
		svc:      opts.Service,
		badge:    opts.Badge,
		control:  opts.Control,
		clipCfg:  opts.ClipConfig,
		debounce: opts.Debounce,
		logger:   opts.Logger,

		connectCh:    make(chan connectReq),
		disconnectCh: make(chan string),
		queryCh:      make(chan queryReq, 64),
		deliverCh:    make(chan delivery, 64),
		configCh:     make(chan map[string]config.Change, 16),
		tabCh:        make(chan tabEvent, 64),
		tabFireCh:    make(chan int, 64),
		controlCh:    make(chan ControlMessage, 64),
		countReqCh:   make(chan chan int),

		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	sessions := make(map[string]chan []byte)
	tabs := make(map[int]*tabState)

	for {
		select {
		case <-b.stopCh:
			for _, ch := range sessions {
				close(ch)
			}
			for _, st := range tabs {
				if st.timer != nil {
					st.timer.Stop()
				}
			}
			return

		case req := <-b.connectCh:
			if old, ok := sessions[req.id]; ok {
				close(old)
			}
			ch := make(chan []byte, 64)
			sessions[req.id] = ch
			req.resp <- ch

		case id := <-b.disconnectCh:
			if ch, ok := sessions[id]; ok {
				delete(sessions, id)
				close(ch)
			}

		case req := <-b.queryCh:
			go b.dispatchSearch(req)

		case d := <-b.deliverCh:
			ch, ok := sessions[d.sessionID]
			if !ok {
				// Session disconnected while the search was in flight;
				// dropping the reply is an idempotent no-op.
				continue
			}
			select {
			case ch <- d.payload:
			default:
				// Client buffer full; skip to avoid blocking the loop.
			}

		case changes := <-b.configCh:
			b.handleConfigChange(changes)

		case ev := <-b.tabCh:
			st, ok := tabs[ev.tabID]
			if !ok {
				st = &tabState{}
				tabs[ev.tabID] = st
			}
			st.url = ev.url
			// Replace any pending timer so rapid events collapse into a
			// single computation using the most recent URL.
			if st.timer != nil {
				st.timer.Stop()
			}
			id := ev.tabID
			st.timer = time.AfterFunc(b.debounce, func() {
				select {
				case b.tabFireCh <- id:
				case <-b.stopCh:
				}
			})

		case id := <-b.tabFireCh:
			st, ok := tabs[id]
			if !ok {
				continue
			}
			st.timer = nil
			go b.badgeSearch(id, st.url)

		case msg := <-b.controlCh:
			b.handleControl(msg)

		case resp := <-b.countReqCh:
			resp <- len(sessions)
		}
	}
}

// dispatchSearch runs one search and routes the reply back to the
// originating session only.
func (b *Broker) dispatchSearch(req queryReq) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := b.svc.Search(ctx, req.query)
	payload := b.replyFrame(res, err)

	select {
	case b.deliverCh <- delivery{sessionID: req.sessionID, payload: payload}:
	case <-b.stopCh:
	}
}

// replyFrame converts a search outcome into a pre-formatted SSE frame.
func (b *Broker) replyFrame(res models.SearchResult, err error) []byte {
	var reply Reply
	switch {
	case err == nil:
		reply = Reply{Status: 200, Msg: "success", Response: &res, Count: res.Count}
	case errors.Is(err, apperr.ErrNoResult):
		reply = Reply{Status: 200, Msg: "success", Response: &res}
	case errors.Is(err, apperr.ErrCannotConnect):
		reply = Reply{
			Status: 500,
			Msg:    "HTTP server is not running. Start it with: python3 logseq_server.py",
		}
	case errors.Is(err, apperr.ErrUnsupported):
		reply = Reply{Status: 400, Msg: err.Error()}
	default:
		b.logger.Error("search failed", slog.String("error", err.Error()))
		reply = Reply{Status: 500, Msg: "Search failed"}
	}

	payload, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		payload = []byte(`{"status":500,"msg":"internal error","response":null}`)
	}
	return []byte(fmt.Sprintf("event: reply\ndata: %s\n\n", payload))
}

// handleConfigChange invalidates the client cache when a graph-identity key
// changed. Fire-and-forget: failures are logged, never surfaced to sessions.
func (b *Broker) handleConfigChange(changes map[string]config.Change) {
	for key := range changes {
		if _, ok := graphIdentityKeys[key]; !ok {
			continue
		}
		b.logger.Info("configuration changed, clearing note-store cache",
			slog.String("key", key))
		b.svc.ClearCache()
		return
	}
}

// badgeSearch computes the result count for a tab's current URL and paints
// its badge.
func (b *Broker) badgeSearch(tabID int, rawURL string) {
	if rawURL == "" || b.badge == nil {
		return
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		b.logger.Warn("badge: bad tab url", slog.String("url", rawURL))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := b.svc.URLSearch(ctx, u, logseq.URLSearchOptions{})
	if err != nil {
		b.logger.Warn("badge: url search failed", slog.String("error", err.Error()))
		return
	}

	text := ""
	if res.Count > 0 {
		text = strconv.Itoa(res.Count)
	}
	b.badge.SetBadge(tabID, text)
}

// handleControl services fire-and-forget host messages.
func (b *Broker) handleControl(msg ControlMessage) {
	switch msg.Type {
	case "open-options":
		if b.control != nil {
			b.control.OpenOptions()
		}
	case "open-page":
		if b.control != nil {
			b.control.OpenPage(msg.URL)
		}
	case "clip-with-selection", "clip-page":
		go b.clipCapture(msg)
	default:
		b.logger.Debug("unhandled control message", slog.String("type", msg.Type))
	}
}

// clipCapture renders the capture template and appends it to the configured
// page. The read-only transport rejects the append; that is reported in the
// log, not to any session.
func (b *Broker) clipCapture(msg ControlMessage) {
	var cfg ClipConfig
	if b.clipCfg != nil {
		cfg = b.clipCfg()
	}

	now := time.Now()
	block := clip.Render(cfg.Template, clip.Input{
		URL:     msg.URL,
		Title:   msg.Title,
		Content: msg.Data,
		Time:    now,
	})

	page := cfg.CustomPage
	if cfg.Location != "customPage" || page == "" {
		page = clip.JournalPage(now, "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := b.svc.AppendBlock(ctx, page, block); err != nil {
		b.logger.Warn("clip capture rejected",
			slog.String("page", page),
			slog.String("error", err.Error()))
		return
	}

	// A successful capture refreshes the tab badge after the debounce.
	if msg.TabID != 0 && msg.URL != "" {
		b.TabEvent(msg.TabID, msg.URL)
	}
}

// Close gracefully stops the event loop and closes all session channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Connect registers a session and returns its delivery channel. Connecting an
// id that is already registered replaces (and closes) the old channel.
func (b *Broker) Connect(id string) chan []byte {
	resp := make(chan chan []byte, 1)
	if b.closed.Load() {
		ch := make(chan []byte)
		close(ch)
		return ch
	}
	select {
	case b.connectCh <- connectReq{id: id, resp: resp}:
	case <-b.stopped:
		ch := make(chan []byte)
		close(ch)
		return ch
	}
	return <-resp
}

// Disconnect releases a session record; the terminal state of its channel.
func (b *Broker) Disconnect(id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.disconnectCh <- id:
	case <-b.stopped:
	}
}

// Query dispatches a search on behalf of a session. The reply goes to that
// session only.
func (b *Broker) Query(sessionID, query string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.queryCh <- queryReq{sessionID: sessionID, query: query}:
	case <-b.stopped:
	}
}

// ConfigChanged feeds a configuration-change notification into the loop.
func (b *Broker) ConfigChanged(changes map[string]config.Change) {
	if b.closed.Load() {
		return
	}
	select {
	case b.configCh <- changes:
	case <-b.stopped:
	}
}

// TabEvent records a tab activation or navigation; the badge computation for
// that tab runs after the debounce window using the most recent URL.
func (b *Broker) TabEvent(tabID int, url string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.tabCh <- tabEvent{tabID: tabID, url: url}:
	case <-b.stopped:
	}
}

// Control feeds a fire-and-forget control message into the loop.
func (b *Broker) Control(msg ControlMessage) {
	if b.closed.Load() {
		return
	}
	select {
	case b.controlCh <- msg:
	case <-b.stopped:
	}
}

// SessionCount returns the number of connected sessions.
func (b *Broker) SessionCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}
