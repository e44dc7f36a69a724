package indexing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rtoassure/backend/internal/auth"
	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
)

func newTestHandler(docs *stubDocumentRepo, ops *stubOperationRepo, sessions *stubSessionRepo, provider *stubProvider) http.Handler {
	svc := newTestService(docs, ops, sessions, &stubCredits{balance: 10}, newStubObjectStore(), provider)
	reconciler := NewReconciler(ops, docs, sessions, provider, testLogger(), time.Now)
	return NewHTTPHandler(svc, reconciler, docs, sessions)
}

func scopedGet(handler http.Handler, rtoID uuid.UUID, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.ContextWithRTOID(req.Context(), rtoID))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestListDocumentsHidesForeignSession(t *testing.T) {
	ops := newStubOperationRepo()
	docs := newStubDocumentRepo(ops)
	sessions := newStubSessionRepo()
	provider := newStubProvider()

	session, _ := sessions.Create(context.Background(), domain.NewValidationSession(uuid.New(), "CHCCCS015"))
	handler := newTestHandler(docs, ops, sessions, provider)

	rec := scopedGet(handler, session.RTOID, "/api/documents?session_id="+session.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("owner list: expected 200, got %d", rec.Code)
	}

	rec = scopedGet(handler, uuid.New(), "/api/documents?session_id="+session.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant must get 404, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), session.ID.String()) {
		t.Error("response must not leak the session to another tenant")
	}
}

func TestSessionOperationsHidesForeignSession(t *testing.T) {
	ops := newStubOperationRepo()
	docs := newStubDocumentRepo(ops)
	sessions := newStubSessionRepo()
	provider := newStubProvider()

	session, _ := sessions.Create(context.Background(), domain.NewValidationSession(uuid.New(), "CHCCCS015"))
	handler := newTestHandler(docs, ops, sessions, provider)

	rec := scopedGet(handler, session.RTOID, "/api/documents/operations?session_id="+session.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("owner poll: expected 200, got %d", rec.Code)
	}

	rec = scopedGet(handler, uuid.New(), "/api/documents/operations?session_id="+session.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign tenant must get 404, got %d", rec.Code)
	}
}

func TestSessionListingRequiresTenantScope(t *testing.T) {
	ops := newStubOperationRepo()
	docs := newStubDocumentRepo(ops)
	sessions := newStubSessionRepo()
	provider := newStubProvider()

	session, _ := sessions.Create(context.Background(), domain.NewValidationSession(uuid.New(), "CHCCCS015"))
	handler := newTestHandler(docs, ops, sessions, provider)

	for _, target := range []string{
		"/api/documents?session_id=" + session.ID.String(),
		"/api/documents/operations?session_id=" + session.ID.String(),
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without tenant scope, got %d", target, rec.Code)
		}
	}
}
