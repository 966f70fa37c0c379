package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/docbed/docbed/engine/pipeline"
)

// Job is the envelope returned for every workflow handle. The signature
// covers the identifying fields so a caller can hand the envelope to a
// third party and still prove where it came from.
type Job struct {
	UUID      string `json:"uuid"`
	RunID     string `json:"run_id,omitempty"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	Attached  bool   `json:"attached,omitempty"`
	Result    any    `json:"result,omitempty"`
	Signature string `json:"signature,omitempty"`
}

func newJob(handle *pipeline.Handle, status pipeline.JobStatus, key []byte) Job {
	job := Job{
		UUID:     handle.WorkflowID,
		RunID:    handle.RunID,
		Name:     handle.Name,
		Status:   string(status),
		Attached: handle.Attached,
	}
	job.Signature = SignJob(key, job)
	return job
}

// SignJob computes the hex HMAC-SHA256 of the job's identity under key.
// An empty key disables signing.
func SignJob(key []byte, job Job) string {
	if len(key) == 0 {
		return ""
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(job.UUID))
	mac.Write([]byte{0})
	mac.Write([]byte(job.RunID))
	mac.Write([]byte{0})
	mac.Write([]byte(job.Name))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyJob reports whether the job's signature matches its identity.
func VerifyJob(key []byte, job Job) bool {
	expected := SignJob(key, job)
	return expected != "" && hmac.Equal([]byte(expected), []byte(job.Signature))
}
