package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"claimstack/pkg/requestcontext"
)

type AuditSuite struct {
	suite.Suite
	ctx      context.Context
	store    *InMemoryStore
	recorder *Recorder
	orgID    uuid.UUID
	userID   uuid.UUID
}

func (s *AuditSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.recorder = NewRecorder(s.store, nil, slog.Default())
	s.orgID = uuid.New()
	s.userID = uuid.New()
	ctx := requestcontext.WithIdentity(context.Background(), requestcontext.Identity{
		UserID: s.userID,
		OrgID:  s.orgID,
		Role:   "org_manager",
	})
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}

func (s *AuditSuite) TestRecordCapturesRequestContext() {
	claimID := uuid.New()
	err := s.recorder.Record(s.ctx, s.orgID, ActionClaimTransitioned, "claim", claimID,
		map[string]any{"fromStatus": "DRAFT", "toStatus": "IN_REVIEW"})
	s.Require().NoError(err)

	entries := s.store.All()
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal(ActionClaimTransitioned, e.Action)
	s.Equal("claim", e.Resource)
	s.Equal(claimID, e.ResourceID)
	s.Require().NotNil(e.UserID)
	s.Equal(s.userID, *e.UserID)
	s.Equal("203.0.113.7", e.IPAddress)
	s.Contains(e.Device, "Chrome")
	s.Equal("DRAFT", e.Metadata["fromStatus"])
	s.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), e.CreatedAt)
}

func (s *AuditSuite) TestRecordWithoutIdentityLeavesUserNil() {
	err := s.recorder.Record(context.Background(), s.orgID, ActionPolicyTransitioned, "policy", uuid.New(), nil)
	s.Require().NoError(err)
	s.Nil(s.store.All()[0].UserID)
}

func (s *AuditSuite) TestUserAgentIsCapped() {
	longUA := strings.Repeat("x", MaxUserAgentLen*3)
	ctx := requestcontext.WithClientMetadata(context.Background(), "", longUA)
	err := s.recorder.Record(ctx, s.orgID, ActionClaimCreated, "claim", uuid.New(), nil)
	s.Require().NoError(err)
	s.Len(s.store.All()[0].UserAgent, MaxUserAgentLen)
}

func TestCapUserAgentKeepsRunesWhole(t *testing.T) {
	// Every rune is three bytes, so the cap lands mid-rune.
	ua := strings.Repeat("テ", MaxUserAgentLen)
	capped := CapUserAgent(ua)
	require.LessOrEqual(t, len(capped), MaxUserAgentLen)
	require.True(t, utf8.ValidString(capped))

	short := "Mozilla/5.0"
	require.Equal(t, short, CapUserAgent(short))
}

func (s *AuditSuite) TestTimelineFiltersToAllowList() {
	claimID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, action := range []Action{
		ActionClaimCreated,
		ActionClaimUpdated, // not on the timeline
		ActionClaimTransitioned,
		ActionInvoiceUpdated, // not on the timeline
		ActionInvoiceCreated,
	} {
		ctx := requestcontext.WithTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.recorder.Record(ctx, s.orgID, action, "claim", claimID, nil))
	}

	entries, total, err := s.recorder.ListTimeline(context.Background(), s.orgID, "claim", claimID, 0, 10)
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(entries, 3)
	// Newest first.
	s.Equal(ActionInvoiceCreated, entries[0].Action)
	s.Equal(ActionClaimTransitioned, entries[1].Action)
	s.Equal(ActionClaimCreated, entries[2].Action)
}

func (s *AuditSuite) TestListByResourcePagination() {
	claimID := uuid.New()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ctx := requestcontext.WithTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.recorder.Record(ctx, s.orgID, ActionClaimUpdated, "claim", claimID, nil))
	}

	entries, total, err := s.recorder.ListByResource(context.Background(), s.orgID, "claim", claimID, 2, 2)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Len(entries, 2)

	entries, total, err = s.recorder.ListByResource(context.Background(), s.orgID, "claim", claimID, 10, 2)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Empty(entries)
}

func TestKafkaDeliveryFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	p := &KafkaPublisher{logger: slog.New(slog.NewTextHandler(&buf, nil))}
	record := &kgo.Record{Key: []byte("claim-1")}

	p.onDelivery(record, nil)
	require.Empty(t, buf.String())

	p.onDelivery(record, errors.New("broker unreachable"))
	require.Contains(t, buf.String(), "audit publish failed")
	require.Contains(t, buf.String(), "claim-1")
}

func TestDeviceSummary(t *testing.T) {
	suite.Run(t, new(DeviceSuite))
}

type DeviceSuite struct {
	suite.Suite
}

func (s *DeviceSuite) TestEmptyUserAgent() {
	s.Equal("Unknown Device", DeviceSummary(""))
}

func (s *DeviceSuite) TestChromeOnMac() {
	ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	summary := DeviceSummary(ua)
	s.Contains(summary, "Chrome")
	s.Contains(summary, "on")
}
