// Package document manages one open document: parsing the open request,
// fetching it once the session is authorized, debounced autosave, rename and
// star.
package document

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/drive"
	"github.com/jun/cote/internal/language"
	"github.com/jun/cote/internal/markdown"
	"github.com/jun/cote/internal/session"
	"go.uber.org/zap"
)

// DefaultName is the name of a document before any file is loaded.
const DefaultName = "Untitled file"

// ErrNoPreview is returned by Preview for non-Markdown documents.
var ErrNoPreview = errors.New("preview is only available for markdown files")

// Drive is the subset of the drive API the controller uses.
type Drive interface {
	GetFile(ctx context.Context, id string) (*drive.File, error)
	UpdateFilename(ctx context.Context, id, name string) (*drive.Renamed, error)
	SetStar(ctx context.Context, id string, starred bool) (bool, error)
	UpdateContent(ctx context.Context, id, content string) (*drive.Saved, error)
}

// UserDecision is the outcome of a UserPolicy.
type UserDecision int

const (
	// UserIgnore opens the document whatever account is signed in.
	UserIgnore UserDecision = iota
	// UserReauthenticate holds the fetch and flags the snapshot so the front
	// end can sign in with the requested account.
	UserReauthenticate
)

// UserPolicy decides what to do when an open request names an account.
// current may be nil when the profile has not been loaded.
type UserPolicy func(ctx context.Context, requestedUserID string, current *session.User) UserDecision

// IgnoreUser is the default UserPolicy.
func IgnoreUser(context.Context, string, *session.User) UserDecision { return UserIgnore }

// RequireSameUser asks for reauthentication when a loaded profile belongs to
// another account.
func RequireSameUser(_ context.Context, requested string, current *session.User) UserDecision {
	if current != nil && current.ID != requested {
		return UserReauthenticate
	}
	return UserIgnore
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce sets the autosave quiet period.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserPolicy sets the policy applied to the open request's user id.
func WithUserPolicy(p UserPolicy) Option {
	return func(c *Controller) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithOnChange registers a listener called after every state change. It is
// called without the controller's lock held, possibly from a timer goroutine.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithInitial sets the name and body shown before a file is loaded.
func WithInitial(name, body string) Option {
	return func(c *Controller) {
		c.name = name
		c.body = body
	}
}

// WithPreviewTheme sets the highlighting theme used by Preview.
func WithPreviewTheme(t markdown.Theme) Option {
	return func(c *Controller) { c.renderer = markdown.NewRenderer(t) }
}

// Controller owns one document for the lifetime of an editing session.
type Controller struct {
	drive    Drive
	session  *session.Session
	logger   *zap.Logger
	debounce time.Duration
	policy   UserPolicy
	onChange func(Snapshot)
	renderer *markdown.Renderer

	// background is used for work not tied to a caller: fetches started by
	// a session change and autosaves. It is never cancelled; teardown only
	// stops timers.
	background context.Context
	wg         sync.WaitGroup

	mu          sync.Mutex
	phase       Phase
	mode        Mode
	id          string
	name        string
	body        string
	starred     bool
	saveState   SaveState
	fileErr     *FileError
	requested   string
	needsReauth bool

	opened       bool
	fetchStarted bool
	closed       bool
	unsubscribe  func()

	timer    *time.Timer
	timerGen uint64
	saveSeq  uint64
}

// New creates a controller. sess is read to decide when the document can
// be fetched; it is never written.
func New(d Drive, sess *session.Session, opts ...Option) *Controller {
	c := &Controller{
		drive:      d,
		session:    sess,
		logger:     zap.NewNop(),
		debounce:   config.DefaultDebounce,
		policy:     IgnoreUser,
		background: context.Background(),
		name:       DefaultName,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.renderer == nil {
		c.renderer = markdown.NewRenderer(markdown.ThemeLight)
	}
	return c
}

// OpenURL parses the open request carried by u and opens it.
func (c *Controller) OpenURL(ctx context.Context, u *url.URL) {
	d, err := DescriptorFromURL(u)
	c.open(ctx, d, err)
}

// Open starts the lifecycle for d. A nil descriptor opens a local document.
// Only the first call has any effect.
func (c *Controller) Open(ctx context.Context, d *Descriptor) {
	c.open(ctx, d, nil)
}

func (c *Controller) open(ctx context.Context, d *Descriptor, parseErr error) {
	c.mu.Lock()
	if c.opened || c.closed {
		c.mu.Unlock()
		return
	}
	c.opened = true

	switch {
	case parseErr != nil:
		c.logger.Error("error parsing state parameter", zap.Error(parseErr))
		c.failLocked(stateError(parseErr))
		c.unlockAndNotify()
		return

	case d == nil:
		c.phase = PhaseLocal
		c.mode = ModeLocal
		c.logger.Info("local mode enabled, no drive integration")
		c.unlockAndNotify()
		return
	}

	if ferr := d.Validate(); ferr != nil {
		c.failLocked(ferr)
		c.unlockAndNotify()
		return
	}

	c.mode = ModeRemote
	c.id = d.FileID()
	c.requested = d.UserID
	c.phase = PhaseAwaitingAuth
	c.unsubscribe = c.session.Subscribe(c.sessionChanged)
	c.unlockAndNotify()

	c.maybeFetch(ctx, c.session.Snapshot())
}

func (c *Controller) sessionChanged(st session.State) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer c.wg.Done()
		c.maybeFetch(c.background, st)
	}()
}

// maybeFetch issues the one and only fetch once the session is authorized
// and the user policy allows it.
func (c *Controller) maybeFetch(ctx context.Context, st session.State) {
	if !st.Authorized {
		return
	}

	c.mu.Lock()
	if c.closed || c.fetchStarted || c.phase != PhaseAwaitingAuth {
		c.mu.Unlock()
		return
	}
	requested := c.requested
	c.mu.Unlock()

	decision := UserIgnore
	if requested != "" {
		decision = c.policy(ctx, requested, st.User)
	}

	c.mu.Lock()
	if c.closed || c.fetchStarted || c.phase != PhaseAwaitingAuth {
		c.mu.Unlock()
		return
	}
	if decision == UserReauthenticate {
		c.needsReauth = true
		c.unlockAndNotify()
		return
	}
	c.needsReauth = false
	c.fetchStarted = true
	c.phase = PhaseFetching
	id := c.id
	c.unlockAndNotify()

	c.logger.Info("fetching file", zap.String("file_id", id))
	f, err := c.drive.GetFile(ctx, id)

	c.mu.Lock()
	if err != nil {
		c.logger.Error("error fetching file", zap.String("file_id", id), zap.Error(err))
		c.failLocked(&FileError{
			Title:   "Error Loading File",
			Message: "There was a problem loading this file.",
			Details: err.Error(),
		})
		c.unlockAndNotify()
		return
	}
	c.name = f.Filename
	c.body = f.Content
	c.starred = f.Starred
	c.saveState = Saved
	c.phase = PhaseReady
	c.unlockAndNotify()
}

// Edit replaces the body. For a ready remote document it marks the
// document as saving and restarts the autosave window; only the body
// present when the window elapses is persisted.
func (c *Controller) Edit(body string) {
	c.mu.Lock()
	if c.phase == PhaseErrored || c.closed {
		c.mu.Unlock()
		return
	}
	c.body = body
	if c.mode == ModeRemote && c.phase == PhaseReady {
		c.saveState = Saving
		c.armLocked()
	}
	c.unlockAndNotify()
}

func (c *Controller) armLocked() {
	c.stopTimerLocked()
	c.timerGen++
	gen := c.timerGen
	c.wg.Add(1)
	c.timer = time.AfterFunc(c.debounce, func() {
		defer c.wg.Done()
		c.autosave(gen)
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil && c.timer.Stop() {
		c.wg.Done()
	}
	c.timer = nil
}

func (c *Controller) autosave(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.timerGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	_ = c.persist(c.background)
}

// persist saves the current body. Each attempt is numbered; an outcome is
// applied only if it belongs to the latest attempt and no newer edit is
// waiting for its own window.
func (c *Controller) persist(ctx context.Context) error {
	c.mu.Lock()
	c.saveSeq++
	seq := c.saveSeq
	id, content := c.id, c.body
	c.mu.Unlock()

	_, err := c.drive.UpdateContent(ctx, id, content)

	c.mu.Lock()
	if err != nil {
		c.logger.Error("failed to save file", zap.String("file_id", id), zap.Uint64("seq", seq), zap.Error(err))
	}
	if seq != c.saveSeq || c.timer != nil {
		c.logger.Debug("discarding stale save outcome", zap.String("file_id", id), zap.Uint64("seq", seq))
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.saveState = SaveError
	} else {
		c.saveState = Saved
	}
	if c.closed {
		c.mu.Unlock()
		return err
	}
	c.unlockAndNotify()
	return err
}

// Flush persists a pending autosave immediately instead of waiting for the
// window to elapse. It is a no-op when nothing is pending.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.timer == nil || c.closed {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.timerGen++
	c.mu.Unlock()

	return c.persist(ctx)
}

// Rename changes the document name. Remote documents adopt the name the
// server returns and roll back when the request fails.
func (c *Controller) Rename(ctx context.Context, name string) error {
	c.mu.Lock()
	if !c.phase.Editable() || c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.mode == ModeLocal {
		c.name = name
		c.unlockAndNotify()
		return nil
	}
	previous := c.name
	id := c.id
	c.name = name
	c.unlockAndNotify()

	renamed, err := c.drive.UpdateFilename(ctx, id, name)

	c.mu.Lock()
	if err != nil {
		c.logger.Warn("error updating filename", zap.String("file_id", id), zap.Error(err))
		if c.name == name {
			c.name = previous
		}
		c.unlockAndNotify()
		return err
	}
	c.name = renamed.Name
	c.unlockAndNotify()
	return nil
}

// ToggleStar flips the starred flag. Remote documents take the value the
// server confirms.
func (c *Controller) ToggleStar(ctx context.Context) error {
	c.mu.Lock()
	if !c.phase.Editable() || c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.mode == ModeLocal {
		c.starred = !c.starred
		c.unlockAndNotify()
		return nil
	}
	id, want := c.id, !c.starred
	c.mu.Unlock()

	starred, err := c.drive.SetStar(ctx, id, want)
	if err != nil {
		c.logger.Warn("error toggling star", zap.String("file_id", id), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.starred = starred
	c.unlockAndNotify()
	return nil
}

// Snapshot returns a copy of the document state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Language is the syntax language for the current name.
func (c *Controller) Language() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return language.For(c.name)
}

// Preview renders the body as HTML for Markdown documents.
func (c *Controller) Preview() ([]byte, error) {
	c.mu.Lock()
	name, body := c.name, c.body
	c.mu.Unlock()

	if !language.IsMarkdown(language.For(name)) {
		return nil, ErrNoPreview
	}
	return c.renderer.Render([]byte(body))
}

// Close cancels a pending autosave and stops listening to the session.
// Requests already in flight are left to complete.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimerLocked()
	c.timerGen++
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Wait blocks until background fetches and autosaves have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

func (c *Controller) failLocked(ferr *FileError) {
	c.phase = PhaseErrored
	c.fileErr = ferr
	c.stopTimerLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:           c.phase,
		Mode:            c.mode,
		ID:              c.id,
		Name:            c.name,
		Body:            c.body,
		Starred:         c.starred,
		SaveState:       c.saveState,
		Err:             c.fileErr,
		RequestedUserID: c.requested,
		NeedsReauth:     c.needsReauth,
	}
}

// unlockAndNotify releases c.mu and then reports the new state.
func (c *Controller) unlockAndNotify() {
	snap := c.snapshotLocked()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
