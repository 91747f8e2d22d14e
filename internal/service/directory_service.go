package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pilotdeskhq/pilotdesk/internal/domain"
)

// DirectoryService resolves API tokens to actors and serves org, member,
// and notification reads. Token resolutions are cached so steady-state
// requests skip the bcrypt compare.
type DirectoryService struct {
	orgs          domain.OrgStore
	notifications domain.NotificationStore
	actors        domain.ActorCache
	logger        *slog.Logger
}

// NewDirectoryService creates a DirectoryService. actors may be nil to
// disable caching.
func NewDirectoryService(orgs domain.OrgStore, notifications domain.NotificationStore, actors domain.ActorCache, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		orgs:          orgs,
		notifications: notifications,
		actors:        actors,
		logger:        logger.With(slog.String("component", "directory_service")),
	}
}

// ResolveToken authenticates a wire token of the form "<id>.<secret>"
// against the stored bcrypt hash and returns the acting identity. Unknown
// IDs and bad secrets both come back as ErrUnauthorized.
func (s *DirectoryService) ResolveToken(ctx context.Context, token string) (domain.Actor, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return domain.Actor{}, fmt.Errorf("directory_service: malformed token: %w", domain.ErrUnauthorized)
	}

	if s.actors != nil {
		actor, found, err := s.actors.Get(ctx, id)
		if err != nil {
			s.logger.WarnContext(ctx, "actor cache read failed", slog.String("error", err.Error()))
		} else if found {
			return actor, nil
		}
	}

	rec, err := s.orgs.GetToken(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("directory_service: unknown token: %w", domain.ErrUnauthorized)
		}
		return domain.Actor{}, fmt.Errorf("directory_service: resolve token: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(rec.SecretHash, []byte(secret)); err != nil {
		return domain.Actor{}, fmt.Errorf("directory_service: bad token secret: %w", domain.ErrUnauthorized)
	}

	org, err := s.orgs.GetOrganization(ctx, rec.OrgID)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("directory_service: resolve token org: %w", err)
	}

	actor := domain.Actor{
		OrgID:    org.ID,
		MemberID: rec.MemberID,
		Role:     org.Role,
	}
	if s.actors != nil {
		if err := s.actors.Set(ctx, id, actor); err != nil {
			s.logger.WarnContext(ctx, "actor cache write failed", slog.String("error", err.Error()))
		}
	}
	return actor, nil
}

// RevokeToken drops a token's cached resolution so the next request re-reads
// the store. The row deletion itself happens out of band.
func (s *DirectoryService) RevokeToken(ctx context.Context, tokenID string) error {
	if s.actors == nil {
		return nil
	}
	if err := s.actors.Delete(ctx, tokenID); err != nil {
		return fmt.Errorf("directory_service: revoke token %q: %w", tokenID, err)
	}
	return nil
}

// GetOrganization returns a registered organization.
func (s *DirectoryService) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	org, err := s.orgs.GetOrganization(ctx, id)
	if err != nil {
		return domain.Organization{}, fmt.Errorf("directory_service: get organization %q: %w", id, err)
	}
	return org, nil
}

// ListMembers returns an organization's members.
func (s *DirectoryService) ListMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	members, err := s.orgs.ListMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("directory_service: list members of %q: %w", orgID, err)
	}
	return members, nil
}

// ListNotifications returns the actor's own notification feed, newest first.
func (s *DirectoryService) ListNotifications(ctx context.Context, actor domain.Actor, opts domain.ListOpts) ([]domain.Notification, error) {
	ns, err := s.notifications.ListByRecipient(ctx, actor.MemberID, opts)
	if err != nil {
		return nil, fmt.Errorf("directory_service: list notifications: %w", err)
	}
	return ns, nil
}
