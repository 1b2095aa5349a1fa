package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newMiddlewareFixture() (Middleware, *memoryStore) {
	store := newMemoryStore()
	catalog := NewCatalog(store, nil, time.Minute, nil)
	service := NewService(store, catalog)
	resolver := NewResolver(store, store, store, catalog)
	return Middleware{Service: service, Resolver: resolver}, store
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestResolveActorRejectsMissingSubject(t *testing.T) {
	mw, _ := newMiddlewareFixture()
	handler := mw.ResolveActor(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveActorRejectsUnknownSubject(t *testing.T) {
	mw, _ := newMiddlewareFixture()
	handler := mw.ResolveActor(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SubjectHeader, "ghost@example.edu")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResolveActorStoresActor(t *testing.T) {
	mw, store := newMiddlewareFixture()
	store.addUser(7, 1, "alice@example.edu")

	var got Actor
	handler := mw.ResolveActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		require.True(t, ok)
		got = actor
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SubjectHeader, "alice@example.edu")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, int64(7), got.UserID)
	require.Equal(t, int64(1), got.OrganisationID)
}

func TestRequireAny(t *testing.T) {
	mw, store := newMiddlewareFixture()
	store.addUser(7, 1, "alice@example.edu")
	ctx := context.Background()
	role, err := store.InsertRole(ctx, Role{OrganisationID: 1, Name: "Viewer", Permissions: []string{"users.view"}})
	require.NoError(t, err)
	require.NoError(t, store.ReplaceAssignments(ctx, 7, 1, []int64{role.ID}, 1))

	chain := mw.ResolveActor(mw.RequireAny("users.edit", "users.view")(okHandler()))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SubjectHeader, "alice@example.edu")
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	denied := mw.ResolveActor(mw.RequireAny("users.delete")(okHandler()))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SubjectHeader, "alice@example.edu")
	denied.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}
