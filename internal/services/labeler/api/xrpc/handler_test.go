package xrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imigueldiaz/pride-labeler/internal/platform/errors"
	"github.com/imigueldiaz/pride-labeler/internal/services/labeler/domain"
)

type stubLabeler struct {
	views    []domain.LabelView
	err      error
	subject  string
	negate   []string
	create   []string
	mutation bool
}

func (s *stubLabeler) QueryLabels(_ context.Context, subject string) ([]domain.LabelView, error) {
	s.subject = subject
	return s.views, s.err
}

func (s *stubLabeler) CreateLabels(_ context.Context, subject string, negate, create []string) ([]domain.LabelView, error) {
	s.mutation = true
	s.subject = subject
	s.negate = negate
	s.create = create
	return s.views, s.err
}

type stubSigner struct {
	sig []byte
	err error
}

func (s *stubSigner) Sign(context.Context, domain.LabelView) ([]byte, error) {
	return s.sig, s.err
}

func newTestRouter(t *testing.T, labeler Labeler, signer Signer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router, err := NewRouter(labeler, signer, "labeler-test")
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func TestQueryLabelsBySubject(t *testing.T) {
	labeler := &stubLabeler{views: []domain.LabelView{{
		Src: "did:plc:labeler",
		URI: "did:plc:subject",
		Val: "lesbian",
		Cts: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}}
	router := newTestRouter(t, labeler, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
		"/xrpc/com.atproto.label.queryLabels?uriPatterns=did:plc:subject", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if labeler.subject != "did:plc:subject" {
		t.Fatalf("queried subject = %q, want did:plc:subject", labeler.subject)
	}

	var resp queryLabelsResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Cursor != "1" || len(resp.Labels) != 1 {
		t.Fatalf("response = %+v, want cursor 1 and one label", resp)
	}
	label := resp.Labels[0]
	if label.Val != "lesbian" || label.Src != "did:plc:labeler" || label.URI != "did:plc:subject" {
		t.Fatalf("label = %+v", label)
	}
	if label.Cts != "2026-03-01T12:00:00Z" {
		t.Fatalf("cts = %q, want RFC3339 UTC", label.Cts)
	}
	if label.Ver != 1 {
		t.Fatalf("ver = %d, want 1", label.Ver)
	}
}

func TestQueryLabelsWithoutPatternIsBulk(t *testing.T) {
	labeler := &stubLabeler{subject: "sentinel"}
	router := newTestRouter(t, labeler, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
		"/xrpc/com.atproto.label.queryLabels", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if labeler.subject != "" {
		t.Fatalf("queried subject = %q, want blank for bulk", labeler.subject)
	}
	var resp queryLabelsResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Labels == nil || len(resp.Labels) != 0 {
		t.Fatalf("labels = %v, want empty array", resp.Labels)
	}
}

func TestCreateLabelsForwardsNegationsAndCreations(t *testing.T) {
	labeler := &stubLabeler{views: []domain.LabelView{{
		Src: "did:plc:labeler",
		URI: "did:plc:subject",
		Val: "gay",
		Cts: time.Now().UTC(),
	}}}
	router := newTestRouter(t, labeler, nil)

	body := strings.NewReader(`{"uri":"did:plc:subject","negate":["lesbian"],"create":["gay"]}`)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/xrpc/com.atproto.label.createLabels", body)
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}
	if !labeler.mutation || labeler.subject != "did:plc:subject" {
		t.Fatalf("mutation = %v subject = %q", labeler.mutation, labeler.subject)
	}
	if len(labeler.negate) != 1 || labeler.negate[0] != "lesbian" {
		t.Fatalf("negate = %v, want [lesbian]", labeler.negate)
	}
	if len(labeler.create) != 1 || labeler.create[0] != "gay" {
		t.Fatalf("create = %v, want [gay]", labeler.create)
	}
}

func TestCreateLabelsRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t, &stubLabeler{}, nil)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/xrpc/com.atproto.label.createLabels",
		strings.NewReader(`{not json`))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != string(errors.CodeInvalidRequest) {
		t.Fatalf("error = %q, want %q", resp.Error, errors.CodeInvalidRequest)
	}
}

func TestErrorCodesMapToStatus(t *testing.T) {
	cases := []struct {
		code errors.Code
		want int
	}{
		{errors.CodeSubjectRequired, http.StatusBadRequest},
		{errors.CodeStorageUnavailable, http.StatusServiceUnavailable},
		{errors.CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		labeler := &stubLabeler{err: errors.New(tc.code, "boom")}
		router := newTestRouter(t, labeler, nil)

		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
			"/xrpc/com.atproto.label.queryLabels?uriPatterns=did:plc:subject", nil))

		if recorder.Code != tc.want {
			t.Fatalf("status for %s = %d, want %d", tc.code, recorder.Code, tc.want)
		}
	}
}

func TestSignerSignatureIsIncluded(t *testing.T) {
	labeler := &stubLabeler{views: []domain.LabelView{{
		Src: "did:plc:labeler",
		URI: "did:plc:subject",
		Val: "queer",
		Cts: time.Now().UTC(),
	}}}
	router := newTestRouter(t, labeler, &stubSigner{sig: []byte("signed")})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet,
		"/xrpc/com.atproto.label.queryLabels?uriPatterns=did:plc:subject", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	var resp queryLabelsResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Labels) != 1 || string(resp.Labels[0].Sig) != "signed" {
		t.Fatalf("labels = %+v, want signed label", resp.Labels)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubLabeler{}, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
}
