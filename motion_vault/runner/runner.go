package runner

import (
	"fmt"
	"strconv"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusActive    JobStatus = "active"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusUnknown   JobStatus = "unknown"
)

type JobInfo struct {
	Name   string
	Status JobStatus
}

type Job interface {
	GetJobName() string

	JobTemplatePath() string

	Args() []string
}

// Client dispatches jobs to whatever executes them. The service never
// observes child-process failures; progress flows back through the
// experiment log.
type Client interface {
	StartJob(job Job) error

	StopJob(jobName string) error

	JobInfo(jobName string) (JobInfo, error)
}

// TransformJob runs one data transform against the vault. The argument
// schema is fixed: transform scripts parse exactly these flags.
type TransformJob struct {
	JobName string
	Image   string

	InputSkeleton  string
	OutputSkeleton string
	OutputId       uint
	InputIds       []uint
	InputTypes     []string

	Url   string
	Port  int
	User  string
	Token string

	ExpName     string
	HparamsFile string
}

func (j TransformJob) GetJobName() string {
	return j.JobName
}

func (j TransformJob) JobTemplatePath() string {
	return "transform"
}

func (j TransformJob) Args() []string {
	args := []string{
		"--input_skeleton", j.InputSkeleton,
		"--output_skeleton", j.OutputSkeleton,
		"--output_id", strconv.FormatUint(uint64(j.OutputId), 10),
	}

	args = append(args, "--input_ids")
	for _, id := range j.InputIds {
		args = append(args, strconv.FormatUint(uint64(id), 10))
	}
	args = append(args, "--input_types")
	args = append(args, j.InputTypes...)

	args = append(args,
		"--url", j.Url,
		"--port", strconv.Itoa(j.Port),
		"--user", j.User,
		"--token", j.Token,
		"--exp_name", j.ExpName,
	)

	if j.HparamsFile != "" {
		args = append(args, "--hparams_file", j.HparamsFile)
	}

	return args
}

// ServerJob launches a registered job server process.
type ServerJob struct {
	JobName string
	Image   string

	Address string
	Port    int
	Url     string
	Token   string
}

func (j ServerJob) GetJobName() string {
	return j.JobName
}

func (j ServerJob) JobTemplatePath() string {
	return "server"
}

func (j ServerJob) Args() []string {
	return []string{
		"--address", j.Address,
		"--port", strconv.Itoa(j.Port),
		"--url", j.Url,
		"--token", j.Token,
	}
}

func JobName(kind string, id uint) string {
	return fmt.Sprintf("%s-%d", kind, id)
}
