package runner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mocap_platform/motion_vault/runner"
)

func TestTransformJobArgs(t *testing.T) {
	job := runner.TransformJob{
		JobName:        "transform-3",
		InputSkeleton:  "cmu_38",
		OutputSkeleton: "game_engine",
		OutputId:       12,
		InputIds:       []uint{4, 5},
		InputTypes:     []string{"motion", "motion"},
		Url:            "http://vault",
		Port:           8888,
		User:           "alice",
		Token:          "tok",
		ExpName:        "retarget",
	}

	assert.Equal(t, []string{
		"--input_skeleton", "cmu_38",
		"--output_skeleton", "game_engine",
		"--output_id", "12",
		"--input_ids", "4", "5",
		"--input_types", "motion", "motion",
		"--url", "http://vault",
		"--port", "8888",
		"--user", "alice",
		"--token", "tok",
		"--exp_name", "retarget",
	}, job.Args())

	job.HparamsFile = "hparams.json"
	args := job.Args()
	assert.Equal(t, "hparams.json", args[len(args)-1])
}

func TestLocalClient(t *testing.T) {
	client := runner.NewLocalClient()

	job := runner.ServerJob{JobName: runner.JobName("server", 1), Address: "0.0.0.0", Port: 9000}
	require.NoError(t, client.StartJob(job))

	info, err := client.JobInfo("server-1")
	require.NoError(t, err)
	assert.Equal(t, runner.StatusPending, info.Status)

	require.NoError(t, client.StopJob("server-1"))
	_, err = client.JobInfo("server-1")
	assert.Error(t, err)
	assert.Error(t, client.StopJob("server-1"))
}
