package orgs

import (
	"context"
	"errors"
	"fmt"

	"github.com/docuvault/docuvault/pkg/auth"
	"github.com/docuvault/docuvault/pkg/observability"
)

// Bootstrapper creates a personal single-user organization the first
// time a user's profile is materialized. Bootstrap is idempotent and
// non-fatal: a user without a personal workspace is degraded but
// usable, so failures are logged and swallowed, never propagated.
type Bootstrapper struct {
	service  *Service
	contexts *ContextStore
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewBootstrapper creates a personal-organization bootstrapper.
func NewBootstrapper(service *Service, contexts *ContextStore, metrics *observability.Metrics, logger *observability.Logger) *Bootstrapper {
	return &Bootstrapper{
		service:  service,
		contexts: contexts,
		metrics:  metrics,
		logger:   logger,
	}
}

// PersonalSlug derives the deterministic personal-organization slug
// for a user ID. Determinism is what makes bootstrap idempotent, and
// the full ID keeps slugs distinct across users.
func PersonalSlug(userID string) string {
	return "personal-" + userID
}

// EnsurePersonalOrganization creates the user's personal organization
// and sets it as their current context, unless it already exists.
func (b *Bootstrapper) EnsurePersonalOrganization(ctx context.Context, identity auth.Identity) {
	log := b.logger.WithField("user_id", identity.UserID)
	slug := PersonalSlug(identity.UserID)

	existing, err := b.service.GetOrganizationBySlug(ctx, slug)
	if err == nil {
		b.ensureContext(ctx, identity.UserID, existing.ID, log)
		b.outcome("already_exists")
		return
	}
	if !errors.Is(err, ErrNotFound) {
		log.WithError(err).Warn("personal organization lookup failed, skipping bootstrap")
		b.outcome("error")
		return
	}

	org, err := b.service.CreateOrganization(ctx, &CreateOrgRequest{
		Name: personalName(identity),
		Slug: slug,
	}, identity.UserID)
	if err != nil {
		// A concurrent bootstrap may have won the slug.
		if errors.Is(err, ErrSlugTaken) {
			b.outcome("already_exists")
			return
		}
		log.WithError(err).Warn("personal organization bootstrap failed")
		b.outcome("error")
		return
	}

	b.ensureContext(ctx, identity.UserID, org.ID, log)
	log.WithField("org_id", org.ID).Info("personal organization created")
	b.outcome("created")
}

func (b *Bootstrapper) ensureContext(ctx context.Context, userID string, orgID int64, log *observability.Logger) {
	if _, err := b.contexts.CurrentOrganization(ctx, userID); err == nil {
		return
	}
	if err := b.contexts.SetCurrentOrganization(ctx, userID, orgID); err != nil {
		log.WithError(err).Warn("failed to set default organization context")
	}
}

func (b *Bootstrapper) outcome(outcome string) {
	if b.metrics != nil {
		b.metrics.BootstrapRunsTotal.WithLabelValues(outcome).Inc()
	}
}

func personalName(identity auth.Identity) string {
	switch {
	case identity.Name != "":
		return fmt.Sprintf("%s's Workspace", identity.Name)
	case identity.Email != "":
		return fmt.Sprintf("%s's Workspace", identity.Email)
	default:
		return "Personal Workspace"
	}
}
