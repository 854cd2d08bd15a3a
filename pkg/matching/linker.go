package matching

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/errs"
	"github.com/Ramsey-B/fern/pkg/linkstore"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/platform/tracing"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeJoined  ChangeKind = "joined"
	ChangeMerged  ChangeKind = "merged"
)

// LinkChange describes one committed link write.
type LinkChange struct {
	Kind     ChangeKind
	Link     *models.Link
	Absorbed []string
	Added    []models.EntityReference
}

// LinkObserver is told about every committed change. Observers are best effort and
// cannot fail a merge.
type LinkObserver interface {
	LinkCommitted(ctx context.Context, change LinkChange)
}

type LinkRequest struct {
	LinkType  string
	Source    models.EntityReference
	Candidate models.EntityReference
	CreatedBy string
	Reason    string
}

type LinkerConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultLinkerConfig() LinkerConfig {
	return LinkerConfig{
		MaxAttempts:     5,
		InitialInterval: 25 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Linker merges matched references into link groups with optimistic concurrency.
type Linker struct {
	store     linkstore.Store
	logger    ectologger.Logger
	config    LinkerConfig
	observers []LinkObserver
	newID     func() string
	now       func() time.Time
}

func NewLinker(store linkstore.Store, logger ectologger.Logger, config LinkerConfig, observers ...LinkObserver) *Linker {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Linker{
		store:     store,
		logger:    logger,
		config:    config,
		observers: observers,
		newID:     func() string { return uuid.NewString() },
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (l *Linker) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = l.config.InitialInterval
	exp.MaxInterval = l.config.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(l.config.MaxAttempts-1)), ctx)
}

// Link puts both references into one group of req.LinkType. It joins an existing
// group, unions two groups, or creates a new one. Every attempt re-reads the groups
// and commits once; a lost version race is retried with backoff and surfaces as
// errs.Retryable once attempts run out.
func (l *Linker) Link(ctx context.Context, req LinkRequest) (*models.Link, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Linker.Link")
	defer span.End()

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type": req.LinkType,
		"source":    req.Source.String(),
		"candidate": req.Candidate.String(),
	})

	var result *models.Link
	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		link, err := l.attempt(ctx, req)
		if err == nil {
			result = link
			return nil
		}
		if errs.IsConflict(err) || errs.IsNotFound(err) {
			metrics.LinkConflictsTotal.WithLabelValues(req.LinkType).Inc()
			log.WithError(err).WithField("attempt", attempts).Debug("Link merge lost a race, retrying")
			return err
		}
		return backoff.Permanent(err)
	}, l.newBackOff(ctx))

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return nil, errs.Transient(ctx.Err(), "link merge cancelled")
	case errs.IsConflict(err) || errs.IsNotFound(err):
		log.WithError(err).WithField("attempts", attempts).Warn("Link merge did not settle")
		return nil, errs.Retryable(err, "link merge of %s and %s did not settle after %d attempts", req.Source, req.Candidate, attempts)
	default:
		return nil, err
	}
}

func (l *Linker) attempt(ctx context.Context, req LinkRequest) (*models.Link, error) {
	sourceLink, err := l.lookup(ctx, req.LinkType, req.Source)
	if err != nil {
		return nil, err
	}
	candidateLink, err := l.lookup(ctx, req.LinkType, req.Candidate)
	if err != nil {
		return nil, err
	}

	at := l.now()
	member := func(ref models.EntityReference) models.LinkMember {
		return models.LinkMember{EntityReference: ref, CreatedBy: req.CreatedBy, CreatedAt: at, CreatedReason: req.Reason}
	}

	commit := linkstore.Commit{LinkType: req.LinkType, At: at}
	change := LinkChange{}

	switch {
	case sourceLink != nil && candidateLink != nil && sourceLink.ID == candidateLink.ID:
		return sourceLink, nil
	case sourceLink != nil && candidateLink != nil:
		target, absorbed := sourceLink, candidateLink
		if absorbed.Older(target) {
			target, absorbed = absorbed, target
		}
		commit.Target = target
		commit.Absorbed = []*models.Link{absorbed}
		change.Kind = ChangeMerged
		change.Absorbed = []string{absorbed.ID}
		change.Added = absorbed.References()
	case sourceLink != nil:
		commit.Target = sourceLink
		commit.Added = []models.LinkMember{member(req.Candidate)}
		change.Kind = ChangeJoined
		change.Added = []models.EntityReference{req.Candidate}
	case candidateLink != nil:
		commit.Target = candidateLink
		commit.Added = []models.LinkMember{member(req.Source)}
		change.Kind = ChangeJoined
		change.Added = []models.EntityReference{req.Source}
	default:
		commit.NewID = l.newID()
		commit.Added = []models.LinkMember{member(req.Source), member(req.Candidate)}
		change.Kind = ChangeCreated
		change.Added = []models.EntityReference{req.Source, req.Candidate}
	}

	link, err := l.store.Commit(ctx, commit)
	if err != nil {
		return nil, err
	}

	change.Link = link
	metrics.LinkCommitsTotal.WithLabelValues(req.LinkType, string(change.Kind)).Inc()
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"link_type": req.LinkType,
		"link_id":   link.ID,
		"kind":      change.Kind,
		"version":   link.Version,
		"members":   len(link.Members),
	}).Info("Committed link")

	for _, o := range l.observers {
		o.LinkCommitted(ctx, change)
	}
	return link, nil
}

func (l *Linker) lookup(ctx context.Context, linkType string, ref models.EntityReference) (*models.Link, error) {
	link, err := l.store.GetByMember(ctx, linkType, ref)
	if errs.IsNotFound(err) {
		return nil, nil
	}
	return link, err
}
