package runner

import (
	"fmt"
	"log/slog"
	"sync"
)

// LocalClient is the dispatcher used when no cluster is configured. Jobs are
// recorded but nothing is executed; single-machine deployments run transform
// scripts by hand against the same argument schema.
type LocalClient struct {
	mu   sync.Mutex
	jobs map[string]JobInfo
}

func NewLocalClient() *LocalClient {
	return &LocalClient{jobs: make(map[string]JobInfo)}
}

func (c *LocalClient) StartJob(job Job) error {
	slog.Info("recording local job", "job_name", job.GetJobName(), "args", job.Args())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[job.GetJobName()] = JobInfo{Name: job.GetJobName(), Status: StatusPending}
	return nil
}

func (c *LocalClient) StopJob(jobName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.jobs[jobName]; !ok {
		return fmt.Errorf("no job named %v", jobName)
	}
	delete(c.jobs, jobName)
	return nil
}

func (c *LocalClient) JobInfo(jobName string) (JobInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.jobs[jobName]
	if !ok {
		return JobInfo{}, fmt.Errorf("no job named %v", jobName)
	}
	return info, nil
}
