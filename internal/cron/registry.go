package cron

import "context"

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry binds a job to a six-field cron expression (seconds first).
type Entry struct {
	Spec string
	Job  Job
}

// Registry tracks registered cron jobs.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry preloaded with the provided entries.
func NewRegistry(entries ...Entry) *Registry {
	registry := &Registry{}
	for _, entry := range entries {
		registry.Register(entry.Spec, entry.Job)
	}
	return registry
}

// Register adds a job to the registry. Jobs with an empty spec are disabled.
func (r *Registry) Register(spec string, job Job) {
	if job == nil || spec == "" {
		return
	}
	r.entries = append(r.entries, Entry{Spec: spec, Job: job})
}

// Entries returns the registered entries in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
