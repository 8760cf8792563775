package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tipjar-social/contentcheck/moderation"

	"github.com/stretchr/testify/assert"
)

func testServer(verify moderation.VerificationResult) (*Server, *moderation.MockLabeler, *moderation.MockVerifier) {
	checker, labeler, verifier := moderation.CheckerTestFixture(verify)
	srv := NewServer(checker, Config{Logger: slog.Default()})
	return srv, labeler, verifier
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)

	srv, _, _ := testServer(moderation.VerificationResult{})
	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	assert.JSONEq(`{"daemon": "contentcheck", "status": "ok"}`, rec.Body.String())
}

func TestHandleModerate(t *testing.T) {
	assert := assert.New(t)

	srv, labeler, verifier := testServer(moderation.VerificationResult{Success: true, Confidence: 0.7})
	labeler.Results["https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/a.pdf"] = moderation.ExtractionResult{Success: true, Labels: []string{"cat"}}
	labeler.Results["https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/c.pdf"] = moderation.ExtractionResult{Success: true, Labels: []string{"cat", "dog"}}

	body := `{"title": "t", "description": "d", "author": "0xabc", "directoryCID": "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", "fileNames": ["a.pdf", "b.png", "c.pdf"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/moderate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	var resp ModerateResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(moderation.VerdictPassed, resp.Verdict)
	assert.Equal([]string{"cat", "dog"}, resp.Labels)
	assert.Equal([]string{"https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/a.pdf", "https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/c.pdf"}, resp.Artifacts)
	assert.Equal(0.7, resp.Confidence)
	assert.True(resp.Verified)
	assert.Len(verifier.Calls(), 1)
}

func TestHandleModerateZeroConfidence(t *testing.T) {
	assert := assert.New(t)

	srv, labeler, _ := testServer(moderation.VerificationResult{Success: true, Confidence: 0})
	labeler.Results["https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/a.pdf"] = moderation.ExtractionResult{Success: true, Labels: []string{"weapon"}}

	body := `{"title": "t", "directoryCID": "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", "fileNames": ["a.pdf"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/moderate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	var raw map[string]any
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal("needs-review", raw["verdict"])
	assert.Equal(true, raw["verified"])
	assert.Contains(raw, "confidence")
	assert.Equal(0.0, raw["confidence"])
}

func TestHandleModerateNotStarted(t *testing.T) {
	assert := assert.New(t)

	// no labeler results configured: every extraction fails
	srv, _, verifier := testServer(moderation.VerificationResult{Success: true, Confidence: 0.9})

	body := `{"title": "t", "directoryCID": "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", "fileNames": ["a.pdf"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/moderate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	var raw map[string]any
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal("not-started", raw["verdict"])
	assert.Equal(moderation.VerdictNotStarted.Message(), raw["message"])
	assert.Equal(false, raw["verified"])
	assert.Equal(0.0, raw["confidence"])
	assert.Empty(verifier.Calls())
}

func TestHandleModerateBadRequest(t *testing.T) {
	assert := assert.New(t)

	srv, _, verifier := testServer(moderation.VerificationResult{Success: true, Confidence: 0.9})

	for _, body := range []string{`{{`, `{"title": "missing directory"}`, `{"title": "t", "directoryCID": "not-a-cid"}`} {
		req := httptest.NewRequest(http.MethodPost, "/api/moderate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(http.StatusBadRequest, rec.Code, body)
		var resp GenericError
		assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal("InvalidRequest", resp.Error)
	}
	assert.Empty(verifier.Calls())

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(http.StatusNotFound, rec.Code)
}

func TestReadSubmission(t *testing.T) {
	assert := assert.New(t)

	sub, err := readSubmission(strings.NewReader(`{"title": "t", "description": "d", "author": "a", "directoryCID": "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi", "fileNames": ["x.pdf"]}`))
	assert.NoError(err)
	assert.Equal(&moderation.Submission{
		Title:        "t",
		Description:  "d",
		Author:       "a",
		DirectoryCID: "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi",
		FileNames:    []string{"x.pdf"},
	}, sub)

	_, err = readSubmission(strings.NewReader(`{"title": "t"}`))
	assert.Error(err)
	_, err = readSubmission(strings.NewReader(`nope`))
	assert.Error(err)
}

func TestWriteReport(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	assert.NoError(writeReport(&buf, &moderation.Report{
		Verdict:    moderation.VerdictNeedsReview,
		Artifacts:  []string{"https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/a.pdf"},
		Labels:     []string{"cat"},
		Verified:   true,
		Confidence: 0.25,
	}))
	assert.JSONEq(`{
		"verdict": "needs-review",
		"message": "a human must approve this submission before it is published",
		"artifacts": ["https://ipfs.io/ipfs/bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi/a.pdf"],
		"failedExtractions": 0,
		"labels": ["cat"],
		"verified": true,
		"confidence": 0.25
	}`, buf.String())
}
