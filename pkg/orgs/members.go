package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/docuvault/docuvault/pkg/rbac"
)

const memberColumns = `m.id, m.organization_id, m.user_id, m.role_id, m.is_active, m.invited_by, m.joined_at, m.invitation_accepted_at, r.name, r.display_name`

// ListMembers lists all members of an organization with role details,
// active members first.
func (s *Service) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM organization_members m
		JOIN roles r ON r.id = m.role_id
		WHERE m.organization_id = $1
		ORDER BY m.is_active DESC, m.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember retrieves one membership row scoped to the organization.
func (s *Service) GetMember(ctx context.Context, orgID, memberID int64) (*Member, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM organization_members m
		JOIN roles r ON r.id = m.role_id
		WHERE m.id = $1 AND m.organization_id = $2
	`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, memberID, orgID))
	if err != nil {
		return nil, err
	}
	return member, nil
}

// AddMember adds a user to the organization with the named role. A
// second active membership for the same (organization, user) pair is
// rejected with ErrAlreadyMember; the database unique index enforces
// the same rule under concurrent adds.
func (s *Service) AddMember(ctx context.Context, orgID int64, req *AddMemberRequest, invitedBy string) (*Member, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}
	roleName := req.RoleName
	if roleName == "" {
		roleName = rbac.RoleViewer
	}

	role, err := s.roles.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrUnknownRole, roleName, err)
	}

	member := &Member{
		OrganizationID:  orgID,
		UserID:          req.UserID,
		RoleID:          role.ID,
		RoleName:        role.Name,
		RoleDisplayName: role.DisplayName,
		IsActive:        true,
		InvitedBy:       invitedBy,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO organization_members (organization_id, user_id, role_id, is_active, invited_by)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING id, joined_at
	`, orgID, req.UserID, role.ID, nullableUserID(invitedBy)).Scan(&member.ID, &member.JoinedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	s.invalidateDecisions(ctx, req.UserID, "member_added")
	return member, nil
}

// UpdateMember changes a member's role or active flag. Nil fields are
// left unchanged.
func (s *Service) UpdateMember(ctx context.Context, orgID, memberID int64, req *UpdateMemberRequest) (*Member, error) {
	member, err := s.GetMember(ctx, orgID, memberID)
	if err != nil {
		return nil, err
	}

	roleID := member.RoleID
	if req.RoleName != nil {
		role, err := s.roles.GetRoleByName(ctx, *req.RoleName)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrUnknownRole, *req.RoleName, err)
		}
		roleID = role.ID
	}

	isActive := member.IsActive
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE organization_members
		SET role_id = $1, is_active = $2
		WHERE id = $3 AND organization_id = $4
	`, roleID, isActive, memberID, orgID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	s.invalidateDecisions(ctx, member.UserID, "role_changed")
	return s.GetMember(ctx, orgID, memberID)
}

// RemoveMember deactivates a membership. The row is kept for audit
// history; only is_active flips. The member's context pointer to this
// organization is cleared so the gate cannot resolve a membership
// that no longer exists.
func (s *Service) RemoveMember(ctx context.Context, orgID, memberID int64) error {
	member, err := s.GetMember(ctx, orgID, memberID)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE organization_members
		SET is_active = FALSE
		WHERE id = $1 AND organization_id = $2 AND is_active = TRUE
	`, memberID, orgID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM user_organization_context
		WHERE user_id = $1 AND current_organization_id = $2
	`, member.UserID, orgID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", member.UserID).Warn("failed to clear organization context")
	}

	s.invalidateDecisions(ctx, member.UserID, "member_removed")
	return nil
}

func scanMember(scanner rowScanner) (*Member, error) {
	member := &Member{}
	var invitedBy sql.NullString
	var acceptedAt sql.NullTime

	err := scanner.Scan(
		&member.ID,
		&member.OrganizationID,
		&member.UserID,
		&member.RoleID,
		&member.IsActive,
		&invitedBy,
		&member.JoinedAt,
		&acceptedAt,
		&member.RoleName,
		&member.RoleDisplayName,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}

	if invitedBy.Valid {
		member.InvitedBy = invitedBy.String
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		member.InvitationAcceptedAt = &t
	}
	return member, nil
}

func nullableUserID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
