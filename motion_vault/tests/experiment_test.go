package tests

import (
	"fmt"
	"testing"

	"mocap_platform/motion_vault/runner"
	"mocap_platform/motion_vault/schema"
)

func addTransform(t *testing.T, admin *client, name, outputType string, inputTypes ...string) uint {
	inputs := []map[string]interface{}{}
	for _, inputType := range inputTypes {
		inputs = append(inputs, map[string]interface{}{"data_type": inputType})
	}

	var res struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err := admin.postJson("/data_transforms/add", map[string]interface{}{
		"name": name, "script": "retarget.py", "output_type": outputType, "inputs": inputs,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("transform creation failed for %v", name)
	}
	return res.Id
}

func addExperiment(t *testing.T, c *client, name string, collection, transform uint) uint {
	var res struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err := c.postJson("/experiments/add", map[string]interface{}{
		"name": name, "collection_id": collection, "skeleton": "skel", "transform_id": transform,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("experiment creation failed for %v", name)
	}
	return res.Id
}

func TestExperimentRunDispatchesJob(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	collectionId, err := alice.createCollection("clips", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	addFile(t, alice, collectionId, "clipA", "motion", motionPayload(t, 2))
	addFile(t, alice, collectionId, "clipB", "motion", motionPayload(t, 3))

	transformId := addTransform(t, admin, "retarget", "processed_motion", "motion")
	experimentId := addExperiment(t, alice, "exp1", collectionId, transformId)

	var run struct {
		Success  bool   `json:"success"`
		Job      string `json:"job"`
		OutputId uint   `json:"output_id"`
	}
	if err := alice.postJson("/experiments/run", map[string]interface{}{"experiment_id": experimentId}, &run); err != nil {
		t.Fatal(err)
	}
	if !run.Success || run.OutputId == 0 {
		t.Fatalf("unexpected run response: %+v", run)
	}

	jobName := fmt.Sprintf("transform-%d", experimentId)
	if run.Job != jobName {
		t.Fatalf("unexpected job name %v", run.Job)
	}
	info, err := env.jobs.JobInfo(jobName)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != runner.StatusPending {
		t.Fatalf("unexpected job status %v", info.Status)
	}

	// The output row is reserved up front with the transform's output type.
	output, err := schema.GetFile(run.OutputId, env.db)
	if err != nil {
		t.Fatal(err)
	}
	if output.DataType != "processed_motion" || output.Processed != 1 || output.CollectionID != collectionId {
		t.Fatalf("unexpected output row: %+v", output)
	}

	var status struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := alice.postJson("/experiments/status", map[string]interface{}{"experiment_id": experimentId}, &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != string(runner.StatusPending) {
		t.Fatalf("unexpected status %v", status.Status)
	}
}

func TestExperimentRunRequiresInputs(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	collectionId, err := alice.createCollection("empty", 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	transformId := addTransform(t, admin, "retarget", "processed_motion", "motion")
	experimentId := addExperiment(t, alice, "exp1", collectionId, transformId)

	// A collection with no files of the input types cannot run.
	err = alice.postJson("/experiments/run", map[string]interface{}{"experiment_id": experimentId}, nil)
	if err == nil {
		t.Fatal("run should fail when no input files match")
	}
}

func TestExperimentLogRoundTrip(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	collectionId, err := alice.createCollection("clips", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	transformId := addTransform(t, admin, "retarget", "processed_motion", "motion")
	experimentId := addExperiment(t, alice, "exp1", collectionId, transformId)

	var res struct {
		Success bool `json:"success"`
	}
	for epoch := 0; epoch < 2; epoch++ {
		err := alice.postJson("/experiments/append_log", map[string]interface{}{
			"experiment_id": experimentId,
			"entry":         [][]string{{"epoch", fmt.Sprint(epoch)}, {"loss", "0.5"}},
		}, &res)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Success {
			t.Fatal("log append failed")
		}
	}

	var log struct {
		Success bool       `json:"success"`
		Fields  []string   `json:"fields"`
		Rows    [][]string `json:"rows"`
	}
	if err := alice.postJson("/experiments/log", map[string]interface{}{"experiment_id": experimentId}, &log); err != nil {
		t.Fatal(err)
	}
	if len(log.Fields) != 2 || log.Fields[0] != "epoch" || log.Fields[1] != "loss" {
		t.Fatalf("unexpected log fields: %v", log.Fields)
	}
	if len(log.Rows) != 2 || log.Rows[1][0] != "1" {
		t.Fatalf("unexpected log rows: %v", log.Rows)
	}
}

func TestExperimentRemovalRequiresAdminOwner(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	collectionId, err := alice.createCollection("clips", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	transformId := addTransform(t, admin, "retarget", "processed_motion", "motion")
	aliceExp := addExperiment(t, alice, "alice_exp", collectionId, transformId)

	var res struct {
		Success bool `json:"success"`
	}

	// The owner alone cannot remove an experiment, and neither can an admin
	// who does not own it.
	if err := alice.postJson("/experiments/remove", map[string]interface{}{"experiment_id": aliceExp}, &res); err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-admin owner should not remove experiments")
	}
	if err := admin.postJson("/experiments/remove", map[string]interface{}{"experiment_id": aliceExp}, &res); err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("admin non-owner should not remove experiments")
	}

	adminExp := addExperiment(t, admin, "admin_exp", collectionId, transformId)
	if err := admin.postJson("/experiments/remove", map[string]interface{}{"experiment_id": adminExp}, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("admin owner should remove their experiment")
	}
	if _, err := schema.GetExperiment(adminExp, env.db); err != schema.ErrExperimentNotFound {
		t.Fatalf("expected experiment to be gone, got %v", err)
	}
}
