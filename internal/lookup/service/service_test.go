package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"claimstack/internal/authz"
	dirmodels "claimstack/internal/directory/models"
	dirstore "claimstack/internal/directory/store"
	"claimstack/internal/lifecycle"
	policymodels "claimstack/internal/policy/models"
	policystore "claimstack/internal/policy/store"
	domainerrors "claimstack/pkg/domain-errors"
	"claimstack/pkg/requestcontext"
)

// mapCache records hits and misses so the read-through behavior is checkable
// without redis.
type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	hits    int
	misses  int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return raw, ok
}

func (c *mapCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
}

type ServiceSuite struct {
	suite.Suite

	directory *dirstore.InMemory
	policies  *policystore.InMemory
	cache     *mapCache
	svc       *Service

	orgID     uuid.UUID
	managerID uuid.UUID
	adminID   uuid.UUID
	memberID  uuid.UUID

	clientID     uuid.UUID
	subscriberID uuid.UUID
	dependentID  uuid.UUID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.directory = dirstore.NewInMemory()
	s.policies = policystore.NewInMemory()
	s.cache = newMapCache()

	s.orgID = uuid.New()
	s.managerID = uuid.New()
	s.adminID = uuid.New()
	s.memberID = uuid.New()
	s.clientID = uuid.New()
	s.subscriberID = uuid.New()
	s.dependentID = uuid.New()

	s.directory.PutClient(&dirmodels.Client{
		ID: s.clientID, OrgID: s.orgID, Name: "Acme Benefits", Active: true,
	})
	s.directory.PutAffiliate(&dirmodels.Affiliate{
		ID: s.subscriberID, OrgID: s.orgID, ClientID: s.clientID,
		UserID: s.memberID, Name: "Jordan Alvarez", Active: true,
	})
	s.directory.PutAffiliate(&dirmodels.Affiliate{
		ID: s.dependentID, OrgID: s.orgID, ClientID: s.clientID,
		PrimaryAffiliateID: &s.subscriberID, Name: "Sam Alvarez", Active: true,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(s.directory, s.policies, authz.New(s.directory, s.directory), s.cache, logger)
}

func (s *ServiceSuite) ctxAs(userID uuid.UUID, role string) context.Context {
	return requestcontext.WithIdentity(context.Background(), requestcontext.Identity{
		UserID: userID, OrgID: s.orgID, Role: role,
	})
}

func (s *ServiceSuite) seedPolicy(number string, status lifecycle.Status, holder *uuid.UUID) *policymodels.Policy {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &policymodels.Policy{
		ID:                uuid.New(),
		OrgID:             s.orgID,
		PolicyNumber:      number,
		Status:            status,
		ClientID:          s.clientID,
		HolderAffiliateID: holder,
		StartDate:         &start,
	}
	s.Require().NoError(s.policies.Create(context.Background(), p))
	return p
}

func (s *ServiceSuite) TestClients() {
	s.Run("manager sees every active client through the cache", func() {
		s.directory.PutClient(&dirmodels.Client{
			ID: uuid.New(), OrgID: s.orgID, Name: "Borealis Group", Active: false,
		})

		clients, err := s.svc.Clients(s.ctxAs(s.managerID, authz.RoleOrgManager))
		s.Require().NoError(err)
		s.Require().Len(clients, 1)
		s.Equal("Acme Benefits", clients[0].Name)
		s.Equal(1, s.cache.misses)

		clients, err = s.svc.Clients(s.ctxAs(s.managerID, authz.RoleOrgManager))
		s.Require().NoError(err)
		s.Len(clients, 1)
		s.Equal(1, s.cache.hits)
	})

	s.Run("admin sees only assigned clients", func() {
		clients, err := s.svc.Clients(s.ctxAs(s.adminID, authz.RoleClientAdmin))
		s.Require().NoError(err)
		s.Empty(clients)

		s.directory.Assign(s.adminID, s.clientID)
		clients, err = s.svc.Clients(s.ctxAs(s.adminID, authz.RoleClientAdmin))
		s.Require().NoError(err)
		s.Require().Len(clients, 1)
		s.Equal(s.clientID, clients[0].ID)
	})

	s.Run("member sees their own client only while active", func() {
		clients, err := s.svc.Clients(s.ctxAs(s.memberID, authz.RoleMember))
		s.Require().NoError(err)
		s.Require().Len(clients, 1)
		s.Equal(s.clientID, clients[0].ID)

		s.directory.PutAffiliate(&dirmodels.Affiliate{
			ID: s.subscriberID, OrgID: s.orgID, ClientID: s.clientID,
			UserID: s.memberID, Name: "Jordan Alvarez", Active: false,
		})
		clients, err = s.svc.Clients(s.ctxAs(s.memberID, authz.RoleMember))
		s.Require().NoError(err)
		s.Empty(clients)
	})
}

func (s *ServiceSuite) TestMainAffiliates() {
	s.Run("manager lists a client's subscribers", func() {
		affiliates, err := s.svc.MainAffiliates(s.ctxAs(s.managerID, authz.RoleOrgManager), s.clientID)
		s.Require().NoError(err)
		s.Require().Len(affiliates, 1)
		s.Equal(s.subscriberID, affiliates[0].ID)
	})

	s.Run("unknown client is not found", func() {
		_, err := s.svc.MainAffiliates(s.ctxAs(s.managerID, authz.RoleOrgManager), uuid.New())
		s.True(domainerrors.HasCode(err, domainerrors.NotFound("client")))
	})

	s.Run("unassigned admin is denied", func() {
		_, err := s.svc.MainAffiliates(s.ctxAs(s.adminID, authz.RoleClientAdmin), s.clientID)
		s.True(domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	})

	s.Run("member only sees their own subscriber", func() {
		affiliates, err := s.svc.MainAffiliates(s.ctxAs(s.memberID, authz.RoleMember), s.clientID)
		s.Require().NoError(err)
		s.Require().Len(affiliates, 1)
		s.Equal(s.subscriberID, affiliates[0].ID)
	})
}

func (s *ServiceSuite) TestFamily() {
	s.Run("resolves the family from a dependent", func() {
		family, err := s.svc.Family(s.ctxAs(s.managerID, authz.RoleOrgManager), s.dependentID)
		s.Require().NoError(err)
		s.Require().Len(family, 2)
		s.Equal(s.subscriberID, family[0].ID)
		s.Equal(s.dependentID, family[1].ID)
	})

	s.Run("member reads their own family", func() {
		family, err := s.svc.Family(s.ctxAs(s.memberID, authz.RoleMember), s.subscriberID)
		s.Require().NoError(err)
		s.Len(family, 2)
	})

	s.Run("member is denied another family", func() {
		otherID := uuid.New()
		s.directory.PutAffiliate(&dirmodels.Affiliate{
			ID: otherID, OrgID: s.orgID, ClientID: s.clientID,
			Name: "Robin Okafor", Active: true,
		})
		_, err := s.svc.Family(s.ctxAs(s.memberID, authz.RoleMember), otherID)
		s.True(domainerrors.HasCode(err, domainerrors.CodePermissionDenied))
	})
}

func (s *ServiceSuite) TestActivePolicies() {
	held := s.seedPolicy("POL-1", lifecycle.PolicyActive, &s.subscriberID)
	s.seedPolicy("POL-2", lifecycle.PolicyActive, nil)
	s.seedPolicy("POL-3", lifecycle.PolicyPending, &s.subscriberID)

	s.Run("manager sees all active policies through the cache", func() {
		policies, err := s.svc.ActivePolicies(s.ctxAs(s.managerID, authz.RoleOrgManager), s.clientID)
		s.Require().NoError(err)
		s.Len(policies, 2)

		policies, err = s.svc.ActivePolicies(s.ctxAs(s.managerID, authz.RoleOrgManager), s.clientID)
		s.Require().NoError(err)
		s.Len(policies, 2)
		s.Equal(1, s.cache.hits)
	})

	s.Run("member only sees held policies", func() {
		policies, err := s.svc.ActivePolicies(s.ctxAs(s.memberID, authz.RoleMember), s.clientID)
		s.Require().NoError(err)
		s.Require().Len(policies, 1)
		s.Equal(held.ID, policies[0].ID)
	})

	s.Run("unknown client is not found", func() {
		_, err := s.svc.ActivePolicies(s.ctxAs(s.managerID, authz.RoleOrgManager), uuid.New())
		s.True(domainerrors.HasCode(err, domainerrors.NotFound("client")))
	})
}
