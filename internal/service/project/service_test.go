package project

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solarcrm/internal/model"
	"solarcrm/internal/pipeline"
	"solarcrm/internal/repository"
	"solarcrm/internal/service/report"
	"solarcrm/pkg/rbac"
)

type memoryStore struct {
	docs      map[string]*model.Project
	upserts   int
	upsertErr error
}

func newMemoryStore(docs ...*model.Project) *memoryStore {
	s := &memoryStore{docs: map[string]*model.Project{}}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *memoryStore) Get(_ context.Context, id string) (*model.Project, error) {
	p, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrProjectNotFound, id)
	}
	return p, nil
}

func (s *memoryStore) Upsert(_ context.Context, p *model.Project) (*model.ProjectUpdatedPayload, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	s.upserts++
	s.docs[p.ID] = p
	return &model.ProjectUpdatedPayload{EventID: "ev-1", ProjectID: p.ID, PartnerID: p.PartnerID, Type: p.Type}, nil
}

var (
	admin   = report.Caller{UserID: "u-admin", Role: rbac.RoleAdmin}
	partner = report.Caller{UserID: "u-p1", PartnerID: "p-1", Role: rbac.RolePartner}
)

func newProject(id, partnerID string) *model.Project {
	return &model.Project{ID: id, Type: pipeline.TypeResidential, PartnerID: partnerID}
}

func TestUpsert_PartnerWritesOwnProject(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(store, pipeline.DefaultGraph(), zap.NewNop())

	ev, err := svc.Upsert(context.Background(), partner, &model.Project{
		ID: " prj-1 ", Type: pipeline.TypeResidential, PartnerID: "p-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "prj-1", ev.ProjectID)
	assert.Equal(t, 1, store.upserts)
}

func TestUpsert_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		caller  report.Caller
		doc     *model.Project
		existed *model.Project
		wantErr func(error) bool
	}{
		{
			name:    "unknown type",
			caller:  admin,
			doc:     &model.Project{ID: "prj-1", Type: "SPACESHIP", PartnerID: "p-1"},
			wantErr: func(err error) bool { return errors.Is(err, model.ErrInvalidProject) },
		},
		{
			name:    "missing partner",
			caller:  admin,
			doc:     &model.Project{ID: "prj-1", Type: pipeline.TypeRural},
			wantErr: func(err error) bool { return errors.Is(err, model.ErrInvalidProject) },
		},
		{
			name:   "payload partner mismatch",
			caller: partner,
			doc:    newProject("prj-1", "p-2"),
			wantErr: func(err error) bool {
				var mismatch *rbac.PartnerMismatchError
				return errors.As(err, &mismatch)
			},
		},
		{
			name:    "overwrite other partner",
			caller:  partner,
			doc:     newProject("prj-1", "p-1"),
			existed: newProject("prj-1", "p-2"),
			wantErr: func(err error) bool { return errors.Is(err, ErrForbidden) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			if tt.existed != nil {
				store = newMemoryStore(tt.existed)
			}
			svc := NewService(store, pipeline.DefaultGraph(), zap.NewNop())

			_, err := svc.Upsert(context.Background(), tt.caller, tt.doc)
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			assert.Zero(t, store.upserts)
		})
	}
}

func TestUpsert_AdminMayReassignPartner(t *testing.T) {
	store := newMemoryStore(newProject("prj-1", "p-2"))
	svc := NewService(store, pipeline.DefaultGraph(), zap.NewNop())

	_, err := svc.Upsert(context.Background(), admin, newProject("prj-1", "p-1"))
	require.NoError(t, err)
	assert.Equal(t, "p-1", store.docs["prj-1"].PartnerID)
}

func TestUpsert_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.upsertErr = errors.New("tx aborted")
	svc := NewService(store, pipeline.DefaultGraph(), zap.NewNop())

	_, err := svc.Upsert(context.Background(), admin, newProject("prj-1", "p-1"))
	assert.EqualError(t, err, "tx aborted")
}

func TestGet(t *testing.T) {
	store := newMemoryStore(newProject("prj-1", "p-1"), newProject("prj-2", "p-2"))
	svc := NewService(store, pipeline.DefaultGraph(), zap.NewNop())
	ctx := context.Background()

	p, err := svc.Get(ctx, partner, "prj-1")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.PartnerID)

	_, err = svc.Get(ctx, partner, "prj-2")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Get(ctx, admin, "prj-2")
	assert.NoError(t, err)

	_, err = svc.Get(ctx, admin, "missing")
	assert.ErrorIs(t, err, repository.ErrProjectNotFound)
}
