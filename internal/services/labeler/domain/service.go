package domain

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/imigueldiaz/pride-labeler/internal/platform/errors"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/storage"
)

// Ledger is the slice of the assertion store the orchestrator needs.
type Ledger interface {
	AppendAssertion(ctx context.Context, a storage.Assertion) (storage.Assertion, error)
	ResolveActive(ctx context.Context, uri string) ([]storage.Assertion, error)
	ResolveAll(ctx context.Context) ([]storage.Assertion, error)
}

// PendingQueue captures ledger writes that failed so they can be replayed.
type PendingQueue interface {
	EnqueuePending(ctx context.Context, p storage.PendingAssertion) (storage.PendingAssertion, error)
}

// Observer receives mutation outcomes, typically backed by metrics counters.
type Observer interface {
	LabelCreated(val string)
	LabelNegated(val string)
	TriggerIgnored(reason string)
	WriteDeferred()
}

// Ignore reasons reported to the Observer.
const (
	IgnoreReasonSelf          = "self"
	IgnoreReasonUnknown       = "unknown_trigger"
	IgnoreReasonAlreadyActive = "already_active"
	IgnoreReasonNothingActive = "nothing_active"
)

// NopObserver discards all outcomes.
type NopObserver struct{}

func (NopObserver) LabelCreated(string)   {}
func (NopObserver) LabelNegated(string)   {}
func (NopObserver) TriggerIgnored(string) {}
func (NopObserver) WriteDeferred()        {}

// LabelView is the externally visible rendering of one active label.
type LabelView struct {
	Src string    `json:"src"`
	URI string    `json:"uri"`
	Val string    `json:"val"`
	Cts time.Time `json:"cts"`
}

// Config carries the orchestrator dependencies.
type Config struct {
	Catalog *Catalog
	Ledger  Ledger
	Pending PendingQueue
	// IssuerDID is the identity on whose behalf assertions are made.
	IssuerDID string
	// LabelLimit caps simultaneously active labels per subject. Zero means
	// unlimited.
	LabelLimit int
	Observer   Observer
}

// Service maps inbound triggers to ledger mutations and serves the label
// read path. Each trigger is a one-shot transition evaluated against the
// ledger's current resolved state.
type Service struct {
	catalog    *Catalog
	ledger     Ledger
	pending    PendingQueue
	issuerDID  string
	labelLimit int
	observer   Observer
}

// NewService validates the config and builds the orchestrator.
func NewService(cfg Config) (*Service, error) {
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Pending == nil {
		return nil, fmt.Errorf("pending queue is required")
	}
	issuerDID := strings.TrimSpace(cfg.IssuerDID)
	if issuerDID == "" {
		return nil, errors.New(errors.CodeConfigMissingDID, "issuer did is required")
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	limit := cfg.LabelLimit
	if limit < 0 {
		limit = 0
	}
	return &Service{
		catalog:    catalog,
		ledger:     cfg.Ledger,
		pending:    cfg.Pending,
		issuerDID:  issuerDID,
		labelLimit: limit,
		observer:   observer,
	}, nil
}

// IssuerDID returns the identity assertions are issued under.
func (s *Service) IssuerDID() string {
	return s.issuerDID
}

// Catalog returns the label catalog the orchestrator resolves triggers with.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// ApplyTrigger evaluates one inbound (subject, trigger key) pair. Self and
// unknown triggers are no-ops; the delete sentinel negates every active
// label; a catalog hit adds its label unless it is already active. A ledger
// failure is absorbed into the pending queue and reported as an error for
// logging, never re-delivered by the caller.
func (s *Service) ApplyTrigger(ctx context.Context, subject, triggerKey string) error {
	subject = strings.TrimSpace(subject)
	triggerKey = strings.TrimSpace(triggerKey)
	if subject == "" {
		return errors.New(errors.CodeSubjectRequired, "subject is required")
	}
	if triggerKey == "" {
		return errors.New(errors.CodeMalformedEvent, "trigger key is empty")
	}

	switch triggerKey {
	case SelfTriggerKey:
		s.observer.TriggerIgnored(IgnoreReasonSelf)
		return nil
	case DeleteTriggerKey:
		return s.negateAll(ctx, subject)
	}

	def, ok := s.catalog.ByRKey(triggerKey)
	if !ok {
		log.Printf("ignoring trigger %q from %s: not in catalog", triggerKey, subject)
		s.observer.TriggerIgnored(IgnoreReasonUnknown)
		return nil
	}
	return s.addLabel(ctx, subject, def.Identifier)
}

func (s *Service) negateAll(ctx context.Context, subject string) error {
	active, err := s.ledger.ResolveActive(ctx, subject)
	if err != nil {
		return errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("resolve active labels for %s", subject), err)
	}
	if len(active) == 0 {
		s.observer.TriggerIgnored(IgnoreReasonNothingActive)
		return nil
	}
	plan := make([]storage.Assertion, 0, len(active))
	for _, a := range active {
		plan = append(plan, s.newAssertion(subject, a.Val, true))
	}
	return s.applyPlan(ctx, plan)
}

func (s *Service) addLabel(ctx context.Context, subject, val string) error {
	active, err := s.ledger.ResolveActive(ctx, subject)
	if err != nil {
		return errors.Wrap(errors.CodeStorageUnavailable, fmt.Sprintf("resolve active labels for %s", subject), err)
	}
	for _, a := range active {
		if a.Val == val {
			s.observer.TriggerIgnored(IgnoreReasonAlreadyActive)
			return nil
		}
	}

	var plan []storage.Assertion
	if s.labelLimit > 0 && len(active)+1 > s.labelLimit {
		for _, a := range active {
			plan = append(plan, s.newAssertion(subject, a.Val, true))
		}
	}
	plan = append(plan, s.newAssertion(subject, val, false))
	return s.applyPlan(ctx, plan)
}

// applyPlan appends assertions in order. Negations always precede the
// creation they make room for, and each append draws the next sequence
// number, so the creation wins any timestamp tie. On the first failure the
// failed assertion and everything after it move to the pending queue in the
// same order, preserving negate-before-create across replay.
func (s *Service) applyPlan(ctx context.Context, plan []storage.Assertion) error {
	for i, a := range plan {
		if _, err := s.ledger.AppendAssertion(ctx, a); err != nil {
			writeErr := errors.Wrap(errors.CodeStorageUnavailable,
				fmt.Sprintf("append assertion (%s, %s, neg=%v)", a.URI, a.Val, a.Neg), err)
			if deferErr := s.deferAssertions(ctx, plan[i:]); deferErr != nil {
				return stderrors.Join(writeErr, deferErr)
			}
			return writeErr
		}
		if a.Neg {
			s.observer.LabelNegated(a.Val)
		} else {
			s.observer.LabelCreated(a.Val)
		}
	}
	return nil
}

func (s *Service) deferAssertions(ctx context.Context, assertions []storage.Assertion) error {
	var errs []error
	for _, a := range assertions {
		_, err := s.pending.EnqueuePending(ctx, storage.PendingAssertion{
			URI:           a.URI,
			Val:           a.Val,
			Neg:           a.Neg,
			Src:           a.Src,
			Status:        storage.PendingStatusPending,
			NextAttemptAt: time.Now().UTC(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue pending (%s, %s, neg=%v): %w", a.URI, a.Val, a.Neg, err))
			continue
		}
		s.observer.WriteDeferred()
	}
	return stderrors.Join(errs...)
}

func (s *Service) newAssertion(subject, val string, neg bool) storage.Assertion {
	return storage.Assertion{
		URI: subject,
		Val: val,
		Neg: neg,
		Src: s.issuerDID,
	}
}

// QueryLabels returns the active labels for a subject, or for every subject
// when the subject is blank. A pure read.
func (s *Service) QueryLabels(ctx context.Context, subject string) ([]LabelView, error) {
	subject = strings.TrimSpace(subject)

	var (
		assertions []storage.Assertion
		err        error
	)
	if subject == "" {
		assertions, err = s.ledger.ResolveAll(ctx)
	} else {
		assertions, err = s.ledger.ResolveActive(ctx, subject)
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeStorageUnavailable, "resolve labels", err)
	}

	views := make([]LabelView, 0, len(assertions))
	for _, a := range assertions {
		views = append(views, LabelView{
			Src: a.Src,
			URI: a.URI,
			Val: a.Val,
			Cts: a.CreatedAt,
		})
	}
	return views, nil
}

// CreateLabels applies an explicit mutation request: negations first, then
// creations, drawing sequence numbers in that order. Returns the subject's
// resolved labels after the mutation.
func (s *Service) CreateLabels(ctx context.Context, subject string, negate, create []string) ([]LabelView, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, errors.New(errors.CodeSubjectRequired, "subject is required")
	}

	plan := make([]storage.Assertion, 0, len(negate)+len(create))
	for _, val := range negate {
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, errors.New(errors.CodeInvalidRequest, "negate value is empty")
		}
		plan = append(plan, s.newAssertion(subject, val, true))
	}
	for _, val := range create {
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, errors.New(errors.CodeInvalidRequest, "create value is empty")
		}
		plan = append(plan, s.newAssertion(subject, val, false))
	}
	if len(plan) == 0 {
		return nil, errors.New(errors.CodeInvalidRequest, "request has no labels to create or negate")
	}

	if err := s.applyPlan(ctx, plan); err != nil {
		return nil, err
	}
	return s.QueryLabels(ctx, subject)
}
