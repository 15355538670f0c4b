package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/mindmapgen/internal/document"
)

// JobStatus represents the state of a mindmap generation job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusParsing     JobStatus = "parsing"
	StatusChunking    JobStatus = "chunking"
	StatusClassifying JobStatus = "classifying"
	StatusExtracting  JobStatus = "extracting"
	StatusVerifying   JobStatus = "verifying"
	StatusAssembling  JobStatus = "assembling"
	StatusCompleted   JobStatus = "completed"
	// StatusPartial means the run stopped early (budget or failed tasks)
	// and the stored tree is a valid partial result.
	StatusPartial JobStatus = "partial"
	StatusFailed  JobStatus = "failed"
)

// Job tracks the state of a single mindmap generation.
type Job struct {
	mu sync.Mutex

	ID string `json:"job_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	tree     *document.Tree
	errors   []string
}

// Progress tracks generation progress.
type Progress struct {
	TotalChunks     int      `json:"total_chunks"`
	ChunksProcessed int      `json:"chunks_processed"`
	Candidates      int      `json:"candidates_extracted"`
	NodesVerified   int      `json:"nodes_verified"`
	NodesDropped    int      `json:"nodes_dropped"`
	LLMCalls        int      `json:"llm_calls"`
	Errors          []string `json:"errors"`
}

// NewJob builds a queued job for an uploaded file.
func NewJob(filename, title string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:        generateULID(),
		Status:    StatusQueued,
		Phase:     "queued",
		Filename:  filename,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		fileData:  data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetTitle records the document title resolved during parsing.
func (j *Job) SetTitle(title string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Title = title
	j.UpdatedAt = time.Now()
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// IncrChunksProcessed atomically increments chunks processed.
func (j *Job) IncrChunksProcessed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunksProcessed++
	j.UpdatedAt = time.Now()
}

// AddCandidates records newly extracted candidate counts.
func (j *Job) AddCandidates(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Candidates += n
	j.UpdatedAt = time.Now()
}

// SetVerification records verification outcomes.
func (j *Job) SetVerification(verified, dropped int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.NodesVerified += verified
	j.Progress.NodesDropped += dropped
	j.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (j *Job) SetTotalChunks(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalChunks = n
	j.UpdatedAt = time.Now()
}

// SetLLMCalls records the total completion calls spent on this job.
func (j *Job) SetLLMCalls(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.LLMCalls = n
	j.UpdatedAt = time.Now()
}

// FileData returns the raw uploaded bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// SetTree stores the finished (possibly partial) tree and releases the
// uploaded bytes, which are no longer needed.
func (j *Job) SetTree(t *document.Tree) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tree = t
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// Tree returns the stored tree, or nil while the job is still running.
func (j *Job) Tree() *document.Tree {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tree
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`
	Progress Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:       j.ID,
		Status:   j.Status,
		Phase:    j.Phase,
		Filename: j.Filename,
		Title:    j.Title,
		Progress: Progress{
			TotalChunks:     j.Progress.TotalChunks,
			ChunksProcessed: j.Progress.ChunksProcessed,
			Candidates:      j.Progress.Candidates,
			NodesVerified:   j.Progress.NodesVerified,
			NodesDropped:    j.Progress.NodesDropped,
			LLMCalls:        j.Progress.LLMCalls,
			Errors:          errs,
		},
	}
}
