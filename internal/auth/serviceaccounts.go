package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/corvidsec/identity/internal/audit"
	"github.com/corvidsec/identity/internal/authz"
)

const clientSecretBytes = 32

// RegisterService provisions a SERVICE principal under a caller-chosen
// service id, grants it catalog permissions, and returns the client secret.
// The cleartext secret appears in this response and nowhere else, ever.
func (s *Service) RegisterService(ctx context.Context, serviceID string, permissionNames []string) (*ServiceRegistration, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id required", ErrValidation)
	}

	// 1. Resolve every requested permission up front: one unknown name fails
	//    the whole registration before anything is written.
	permissions, err := s.catalog.FindByNames(ctx, permissionNames)
	if err != nil {
		if errors.Is(err, authz.ErrPermissionNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownPermission, err)
		}
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}

	// 2. Service ids are unique across the principal table.
	if _, err := s.principals.FindByKindAndExternalID(ctx, PrincipalKindService, serviceID); err == nil {
		return nil, ErrServiceIDTaken
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		return nil, fmt.Errorf("check service id uniqueness: %w", err)
	}

	// 3. Mint the secret and store only its hash, with the same KDF as user
	//    passwords.
	secret, err := GenerateSecureToken(clientSecretBytes)
	if err != nil {
		return nil, err
	}
	secretHash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash client secret: %w", err)
	}

	principal := &Principal{
		ID:         uuid.New(),
		Kind:       PrincipalKindService,
		ExternalID: serviceID,
		Enabled:    true,
	}
	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			return nil, ErrServiceIDTaken
		}
		return nil, fmt.Errorf("create service principal: %w", err)
	}
	if err := s.serviceCreds.Create(ctx, &ServiceCredential{
		PrincipalID:      principal.ID,
		ClientSecretHash: secretHash,
	}); err != nil {
		return nil, fmt.Errorf("store service credential: %w", err)
	}

	granted := make([]string, 0, len(permissions))
	if len(permissions) > 0 {
		ids := make([]uuid.UUID, 0, len(permissions))
		for _, p := range permissions {
			ids = append(ids, p.ID)
			granted = append(granted, p.Name)
		}
		if err := s.servicePerms.Grant(ctx, principal.ID, ids); err != nil {
			return nil, fmt.Errorf("grant service permissions: %w", err)
		}
	}

	s.audit.Log(ctx, principal.ID, audit.EventServiceRegistered, serviceID, map[string]string{
		"permissions": strings.Join(granted, ","),
	})
	return &ServiceRegistration{
		PrincipalID:  principal.ID,
		ServiceID:    serviceID,
		ClientSecret: secret,
		Permissions:  granted,
	}, nil
}

// ValidateServiceCredentials checks a service id/secret pair with the same
// uniform failure surface as password logins.
func (s *Service) ValidateServiceCredentials(ctx context.Context, serviceID, secret string) (*Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrInvalidCredentials
	}
	principal, err := s.principals.FindByKindAndExternalID(ctx, PrincipalKindService, strings.TrimSpace(serviceID))
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup service principal: %w", err)
	}
	cred, err := s.serviceCreds.FindByPrincipalID(ctx, principal.ID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup service credential: %w", err)
	}
	if !s.hasher.Verify(secret, cred.ClientSecretHash) {
		return nil, ErrInvalidCredentials
	}
	if !principal.Enabled {
		return nil, ErrInvalidCredentials
	}
	return principal, nil
}

// IssueServiceToken exchanges valid service credentials for a signed token
// scoped to one audience and carrying the permissions granted at
// registration.
func (s *Service) IssueServiceToken(ctx context.Context, serviceID, secret, audience string) (string, error) {
	principal, err := s.ValidateServiceCredentials(ctx, serviceID, secret)
	if err != nil {
		return "", err
	}
	permissions, err := s.servicePerms.ListNames(ctx, principal.ID)
	if err != nil {
		return "", fmt.Errorf("load service permissions: %w", err)
	}
	token, err := s.codec.IssueService(principal.ExternalID, audience, permissions)
	if err != nil {
		return "", fmt.Errorf("issue service token: %w", err)
	}
	s.audit.Log(ctx, principal.ID, audit.EventServiceTokenIssued, audience, nil)
	return token, nil
}

// IssueServiceTokenOnBehalf is IssueServiceToken plus propagated user
// context: the token additionally names the user the service is acting for
// together with that user's effective permissions at issuance.
func (s *Service) IssueServiceTokenOnBehalf(ctx context.Context, serviceID, secret, audience string, userID uuid.UUID) (string, error) {
	principal, err := s.ValidateServiceCredentials(ctx, serviceID, secret)
	if err != nil {
		return "", err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrAuthenticationRequired
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if !s.principalEnabled(ctx, PrincipalKindUser, user.ID.String()) {
		return "", ErrAuthenticationRequired
	}

	permissions, err := s.servicePerms.ListNames(ctx, principal.ID)
	if err != nil {
		return "", fmt.Errorf("load service permissions: %w", err)
	}
	_, userPermissions := s.resolver.Resolve(ctx, user.ID)

	token, err := s.codec.IssueServiceOnBehalf(principal.ExternalID, audience, permissions, user.ID, userPermissions)
	if err != nil {
		return "", fmt.Errorf("issue service token: %w", err)
	}
	s.audit.Log(ctx, principal.ID, audit.EventServiceTokenIssued, audience, map[string]string{
		"on_behalf_of": user.ID.String(),
	})
	return token, nil
}
