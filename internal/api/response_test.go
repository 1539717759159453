// Homedoor - Railway Platform Screen Door Installation Tracker
// Copyright 2026 Homedoor Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/railnav/homedoor/internal/logging"
)

func newTestResponseWriter(t *testing.T) (*ResponseWriter, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(logging.ContextWithRequestID(req.Context(), "req-123"))
	return NewResponseWriter(rec, req), rec
}

func TestResponseWriterSuccess(t *testing.T) {
	rw, rec := newTestResponseWriter(t)

	rw.Success(map[string]string{"key": "value"})

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Meta == nil || resp.Meta.RequestID != "req-123" {
		t.Error("expected request ID in metadata")
	}
	data := resp.Data.(map[string]interface{})
	if data["key"] != "value" {
		t.Errorf("unexpected data: %v", data)
	}
}

func TestResponseWriterError(t *testing.T) {
	rw, rec := newTestResponseWriter(t)

	rw.ErrorWithDetails(http.StatusForbidden, ErrCodeForbidden, "insufficient permissions",
		map[string]string{"actual": "viewer", "required": "editor"})

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error == nil {
		t.Fatal("expected error payload")
	}
	if resp.Error.Code != ErrCodeForbidden {
		t.Errorf("expected %s, got %s", ErrCodeForbidden, resp.Error.Code)
	}
	if resp.Error.RequestID != "req-123" {
		t.Error("expected request ID in error payload")
	}
	details := resp.Error.Details.(map[string]interface{})
	if details["actual"] != "viewer" || details["required"] != "editor" {
		t.Errorf("expected actual/required detail, got %v", details)
	}
}

func TestResponseWriterPagination(t *testing.T) {
	rw, rec := newTestResponseWriter(t)

	rw.SuccessWithPagination([]int{1, 2, 3}, &PaginationMeta{
		Count:   3,
		Limit:   10,
		HasMore: false,
	})

	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.Meta.Pagination == nil || resp.Meta.Pagination.Count != 3 {
		t.Error("expected pagination metadata")
	}
}

func TestResponseWriterNoContent(t *testing.T) {
	rw, rec := newTestResponseWriter(t)

	rw.NoContent()

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("expected empty body")
	}
}
