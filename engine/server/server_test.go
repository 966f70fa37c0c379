package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docbed/docbed/engine/core"
	"github.com/docbed/docbed/engine/pipeline"
	"github.com/docbed/docbed/engine/search"
	"github.com/docbed/docbed/engine/server"
)

type fakeJobs struct {
	uploads    []pipeline.UploadRequest
	embeddings []pipeline.EmbeddingRequest
	status     pipeline.JobStatus
	state      *pipeline.UploadState
	err        error
}

func (f *fakeJobs) StartUpload(_ context.Context, req pipeline.UploadRequest) (*pipeline.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.uploads = append(f.uploads, req)
	return &pipeline.Handle{
		WorkflowID: pipeline.UploadWorkflowID(req.Doc, req.CollectionName),
		RunID:      "run-1",
		Name:       "upload",
	}, nil
}

func (f *fakeJobs) StartEmbedding(_ context.Context, req pipeline.EmbeddingRequest) (*pipeline.Handle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.embeddings = append(f.embeddings, req)
	return &pipeline.Handle{
		WorkflowID: pipeline.EmbeddingWorkflowID(req.SubjectType, req.SubjectID),
		RunID:      "run-2",
		Name:       "embedding",
	}, nil
}

func (f *fakeJobs) Describe(_ context.Context, _ pipeline.Handle) (pipeline.JobStatus, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.status, nil
}

func (f *fakeJobs) Result(
	_ context.Context,
	_ pipeline.Handle,
	_ bool,
	_ time.Duration,
) (*pipeline.UploadState, error) {
	return f.state, nil
}

type fakeDocs struct {
	resp *search.DocsResponse
	err  error
}

func (f *fakeDocs) Docs(_ context.Context, query search.DocsQuery) (*search.DocsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.resp
	resp.Query = query.Normalized()
	return &resp, nil
}

type serverFixture struct {
	jobs *fakeJobs
	docs *fakeDocs
	srv  *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	jobs := &fakeJobs{status: pipeline.JobStatusRunning}
	docs := &fakeDocs{resp: &search.DocsResponse{Docs: []*search.Content{
		{Summary: "A failover drill went long.", Mode: search.ModeSummary,
			Metadata: map[string]any{"id": "42"}},
	}}}
	s := server.NewServer(&server.Config{SigningKey: "test-key"}, jobs, docs)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &serverFixture{jobs: jobs, docs: docs, srv: srv}
}

func (f *serverFixture) postJSON(t *testing.T, path string, payload any) (*http.Response, server.Response) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var envelope server.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return resp, envelope
}

func decodeJob(t *testing.T, envelope server.Response) server.Job {
	t.Helper()
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var job server.Job
	require.NoError(t, json.Unmarshal(raw, &job))
	return job
}

func TestServerUpload(t *testing.T) {
	t.Run("Should start an upload and return a signed job envelope", func(t *testing.T) {
		f := newServerFixture(t)
		resp, envelope := f.postJSON(t, "/api/v1/embedding/upload", pipeline.UploadRequest{
			Doc: pipeline.Doc{SubjectID: "42", SubjectType: "doc", Pages: []string{"hello"}},
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		job := decodeJob(t, envelope)
		assert.Equal(t, "upload-doc-42", job.UUID)
		assert.Equal(t, "running", job.Status)
		assert.True(t, server.VerifyJob([]byte("test-key"), job))
		require.Len(t, f.jobs.uploads, 1)
		assert.Equal(t, []string{"hello"}, f.jobs.uploads[0].Doc.Pages)
	})
	t.Run("Should reject an upload without a subject key", func(t *testing.T) {
		f := newServerFixture(t)
		resp, envelope := f.postJSON(t, "/api/v1/embedding/upload", pipeline.UploadRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, envelope.Error, "subject id and type are required")
		assert.Empty(t, f.jobs.uploads)
	})
	t.Run("Should reject a malformed body", func(t *testing.T) {
		f := newServerFixture(t)
		resp, err := http.Post(f.srv.URL+"/api/v1/embedding/upload", "application/json",
			bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServerEmbed(t *testing.T) {
	t.Run("Should start an embedding run for a subject key", func(t *testing.T) {
		f := newServerFixture(t)
		resp, envelope := f.postJSON(t, "/api/v1/embedding/embed", pipeline.EmbeddingRequest{
			SubjectID:   "42",
			SubjectType: "doc",
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		job := decodeJob(t, envelope)
		assert.Equal(t, "embedding-doc-42", job.UUID)
		require.Len(t, f.jobs.embeddings, 1)
	})
	t.Run("Should reject an embedding request with no identity", func(t *testing.T) {
		f := newServerFixture(t)
		resp, _ := f.postJSON(t, "/api/v1/embedding/embed", pipeline.EmbeddingRequest{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("Should map a not-found start error to 404", func(t *testing.T) {
		f := newServerFixture(t)
		f.jobs.err = fmt.Errorf("vfile x: %w", core.ErrNotFound)
		resp, _ := f.postJSON(t, "/api/v1/embedding/embed", pipeline.EmbeddingRequest{
			SubjectID:   "42",
			SubjectType: "doc",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServerJob(t *testing.T) {
	t.Run("Should report a running job without fetching its result", func(t *testing.T) {
		f := newServerFixture(t)
		resp, err := http.Get(f.srv.URL + "/api/v1/embedding/jobs/upload-doc-42")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var envelope server.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		job := decodeJob(t, envelope)
		assert.Equal(t, "upload-doc-42", job.UUID)
		assert.Equal(t, "running", job.Status)
		assert.Nil(t, job.Result)
	})
	t.Run("Should include the state for a finished job", func(t *testing.T) {
		f := newServerFixture(t)
		f.jobs.status = pipeline.JobStatusCompleted
		f.jobs.state = &pipeline.UploadState{Ready: true}
		resp, err := http.Get(f.srv.URL + "/api/v1/embedding/jobs/upload-doc-42")
		require.NoError(t, err)
		defer resp.Body.Close()
		var envelope server.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
		job := decodeJob(t, envelope)
		assert.Equal(t, "completed", job.Status)
		require.NotNil(t, job.Result)
	})
	t.Run("Should propagate a describe failure", func(t *testing.T) {
		f := newServerFixture(t)
		f.jobs.err = errors.New("temporal unreachable")
		resp, err := http.Get(f.srv.URL + "/api/v1/embedding/jobs/upload-doc-42")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestServerDocs(t *testing.T) {
	t.Run("Should answer a JSON docs query with the envelope", func(t *testing.T) {
		f := newServerFixture(t)
		resp, envelope := f.postJSON(t, "/api/v1/docs", search.DocsQuery{Mode: search.ModeSummary})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		var docs search.DocsResponse
		require.NoError(t, json.Unmarshal(raw, &docs))
		require.Len(t, docs.Docs, 1)
		assert.Equal(t, "A failover drill went long.", docs.Docs[0].Summary)
	})
	t.Run("Should answer a markdown docs query with rendered text", func(t *testing.T) {
		f := newServerFixture(t)
		raw, err := json.Marshal(search.DocsQuery{Output: search.OutputMarkdown})
		require.NoError(t, err)
		resp, err := http.Post(f.srv.URL+"/api/v1/docs", "application/json", bytes.NewReader(raw))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	})
	t.Run("Should map an invalid query to 400", func(t *testing.T) {
		f := newServerFixture(t)
		f.docs.err = fmt.Errorf("%w: content mode %q", core.ErrInvalidConfig, "verbose")
		resp, _ := f.postJSON(t, "/api/v1/docs", search.DocsQuery{})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestJobSignature(t *testing.T) {
	t.Run("Should round-trip a signature under the same key", func(t *testing.T) {
		job := server.Job{UUID: "upload-doc-42", RunID: "run-1", Name: "upload"}
		job.Signature = server.SignJob([]byte("k1"), job)
		assert.True(t, server.VerifyJob([]byte("k1"), job))
	})
	t.Run("Should reject a signature under a different key", func(t *testing.T) {
		job := server.Job{UUID: "upload-doc-42", RunID: "run-1", Name: "upload"}
		job.Signature = server.SignJob([]byte("k1"), job)
		assert.False(t, server.VerifyJob([]byte("k2"), job))
	})
	t.Run("Should not sign with an empty key", func(t *testing.T) {
		job := server.Job{UUID: "upload-doc-42"}
		assert.Empty(t, server.SignJob(nil, job))
		assert.False(t, server.VerifyJob(nil, job))
	})
}
