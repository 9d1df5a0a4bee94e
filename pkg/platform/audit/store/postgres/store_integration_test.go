//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "assent/pkg/platform/audit"
	auditpostgres "assent/pkg/platform/audit/store/postgres"
	txcontext "assent/pkg/platform/tx"
	"assent/pkg/testutil/containers"
)

var errAbortTx = errors.New("abort transaction")

type PostgresAuditSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
}

func TestPostgresAuditSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditSuite))
}

func (s *PostgresAuditSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())

	err := auditpostgres.EnsureSchema(context.Background(), s.postgres.DB)
	s.Require().NoError(err)

	s.store = auditpostgres.New(s.postgres.DB)
}

func (s *PostgresAuditSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_events")
	s.Require().NoError(err)
}

func grantEvent(action audit.Action, subject string, at time.Time) audit.Event {
	return audit.Event{
		Timestamp: at,
		Action:    action,
		SubjectID: subject,
		Purposes:  []string{"analytics", "marketing"},
		Decision:  audit.DecisionGranted,
		Driver:    "postgres",
	}
}

func (s *PostgresAuditSuite) TestAppendAndListBySubject() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Append(ctx, grantEvent(audit.ActionConsentSet, "alice", base)))
	s.Require().NoError(s.store.Append(ctx, grantEvent(audit.ActionConsentRevoked, "alice", base.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, grantEvent(audit.ActionConsentSet, "bob", base.Add(2*time.Second))))

	events, err := s.store.ListBySubject(ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.ActionConsentRevoked, events[0].Action, "most recent first")
	s.Equal(audit.ActionConsentSet, events[1].Action)
	s.Equal([]string{"analytics", "marketing"}, events[0].Purposes)
	s.Equal(audit.CategoryCompliance, events[0].Category)
}

func (s *PostgresAuditSuite) TestListRecentHonorsLimit() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 0; i < 5; i++ {
		ev := grantEvent(audit.ActionConsentChecked, "alice", base.Add(time.Duration(i)*time.Second))
		s.Require().NoError(s.store.Append(ctx, ev))
	}

	events, err := s.store.ListRecent(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.True(events[0].Timestamp.After(events[2].Timestamp), "most recent first")
}

// TestCategoryFollowsAction verifies the stored category comes from the
// action's own classification, not from whatever the event carried.
func (s *PostgresAuditSuite) TestCategoryFollowsAction() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	compliance := grantEvent(audit.ActionConsentSet, "alice", base)
	compliance.Category = audit.CategoryOperations // deliberately wrong
	s.Require().NoError(s.store.Append(ctx, compliance))

	ops := grantEvent(audit.ActionBannerEvaluated, "alice", base.Add(time.Second))
	s.Require().NoError(s.store.Append(ctx, ops))

	events, err := s.store.ListBySubject(ctx, "alice")
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.CategoryOperations, events[0].Category)
	s.Equal(audit.CategoryCompliance, events[1].Category)
}

func (s *PostgresAuditSuite) TestEmptyPurposesRoundTrip() {
	ctx := context.Background()

	ev := audit.Event{
		Timestamp: time.Now().UTC(),
		Action:    audit.ActionStorageFallback,
		Driver:    "redis",
		Reason:    "ping failed",
	}
	s.Require().NoError(s.store.Append(ctx, ev))

	events, err := s.store.ListRecent(ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Nil(events[0].Purposes)
	s.Equal("ping failed", events[0].Reason)
}

func (s *PostgresAuditSuite) TestAppendJoinsContextTransaction() {
	ctx := context.Background()

	err := txcontext.Run(ctx, s.postgres.DB, 0, func(txCtx context.Context) error {
		if err := s.store.Append(txCtx, grantEvent(audit.ActionConsentSet, "ghost", time.Now().UTC())); err != nil {
			return err
		}
		return errAbortTx
	})
	s.ErrorIs(err, errAbortTx)

	events, err := s.store.ListBySubject(ctx, "ghost")
	s.Require().NoError(err)
	s.Empty(events, "rolled-back append must not be visible")
}

// TestOpenOwnsItsHandle exercises the DSN constructor the binaries use:
// it pings, ensures the schema, and closes its own connection.
func (s *PostgresAuditSuite) TestOpenOwnsItsHandle() {
	ctx := context.Background()

	owned, err := auditpostgres.Open(ctx, s.postgres.DSN)
	s.Require().NoError(err)

	s.Require().NoError(owned.Append(ctx, grantEvent(audit.ActionConsentSet, "carol", time.Now().UTC())))

	events, err := owned.ListBySubject(ctx, "carol")
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	s.Require().NoError(owned.Close())

	// The suite's shared handle must survive the owned store's Close.
	_, err = s.store.ListRecent(ctx, 1)
	s.NoError(err)
}
