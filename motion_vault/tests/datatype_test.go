package tests

import (
	"testing"
)

func TestDataTypeEditAndInfo(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	addDataType(t, admin, "motion", map[string]interface{}{"is_time_series": 1})
	tagDataType(t, admin, "motion", "time_series")

	var res struct {
		Success bool `json:"success"`
	}
	err := admin.postJson("/data_types/edit", map[string]interface{}{
		"name": "motion", "requirements": "numpy", "is_model": 1,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("data type edit failed")
	}

	var info struct {
		Success      bool     `json:"success"`
		Name         string   `json:"name"`
		Requirements string   `json:"requirements"`
		IsModel      int      `json:"is_model"`
		IsTimeSeries int      `json:"is_time_series"`
		Tags         []string `json:"tags"`
	}
	if err := alice.postJson("/data_types/info", map[string]interface{}{"name": "motion"}, &info); err != nil {
		t.Fatal(err)
	}
	if !info.Success || info.Requirements != "numpy" || info.IsModel != 1 {
		t.Fatalf("edit not reflected in info: %+v", info)
	}
	// Untouched fields and tags survive the edit.
	if info.IsTimeSeries != 1 || len(info.Tags) != 1 || info.Tags[0] != "time_series" {
		t.Fatalf("unexpected info after edit: %+v", info)
	}

	// Edits are admin-only.
	err = alice.postJson("/data_types/edit", map[string]interface{}{
		"name": "motion", "requirements": "scipy",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-admin should not edit data types")
	}

	err = alice.postJson("/data_types/info", map[string]interface{}{"name": "ghost"}, &info)
	if err != nil {
		t.Fatal(err)
	}
	if info.Success {
		t.Fatal("info for unknown data type should fail")
	}
}

func TestDataLoaderEditAndInfo(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	addDataType(t, admin, "motion_primitive", map[string]interface{}{"is_model": 1})

	var res struct {
		Success bool `json:"success"`
	}
	err := admin.postJson("/data_loaders/add", map[string]interface{}{
		"data_type": "motion_primitive", "engine": "db", "script": "v1",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("loader creation failed")
	}

	err = admin.postJson("/data_loaders/edit", map[string]interface{}{
		"data_type": "motion_primitive", "engine": "db", "script": "v2", "requirements": "torch",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("loader edit failed")
	}

	var info struct {
		Success      bool   `json:"success"`
		DataType     string `json:"data_type"`
		Engine       string `json:"engine"`
		Script       string `json:"script"`
		Requirements string `json:"requirements"`
	}
	err = alice.postJson("/data_loaders/info", map[string]interface{}{
		"data_type": "motion_primitive", "engine": "db",
	}, &info)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Success || info.Script != "v2" || info.Requirements != "torch" {
		t.Fatalf("edit not reflected in loader info: %+v", info)
	}

	err = alice.postJson("/data_loaders/edit", map[string]interface{}{
		"data_type": "motion_primitive", "engine": "db", "script": "v3",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-admin should not edit loaders")
	}

	// Editing an unregistered loader fails rather than upserting.
	err = admin.postJson("/data_loaders/edit", map[string]interface{}{
		"data_type": "motion_primitive", "engine": "gpu", "script": "v1",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("edit of unknown loader should fail")
	}
}

func TestTransformEdit(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)
	alice := env.newUser(t, "alice")

	transformId := addTransform(t, admin, "retarget", "processed_motion", "motion")

	var res struct {
		Success bool `json:"success"`
	}
	err := admin.postJson("/data_transforms/edit", map[string]interface{}{
		"transform_id": transformId,
		"name":         "retarget_v2",
		"output_type":  "motion_primitive",
		"inputs": []map[string]interface{}{
			{"data_type": "motion"},
			{"data_type": "skeleton_map"},
		},
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("transform edit failed")
	}

	var info struct {
		Success    bool   `json:"success"`
		Name       string `json:"name"`
		OutputType string `json:"output_type"`
		Inputs     []struct {
			DataType string `json:"data_type"`
		} `json:"inputs"`
	}
	err = alice.postJson("/data_transforms/info", map[string]interface{}{"transform_id": transformId}, &info)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Success || info.Name != "retarget_v2" || info.OutputType != "motion_primitive" {
		t.Fatalf("edit not reflected in transform info: %+v", info)
	}
	if len(info.Inputs) != 2 || info.Inputs[1].DataType != "skeleton_map" {
		t.Fatalf("inputs not replaced: %+v", info.Inputs)
	}

	err = alice.postJson("/data_transforms/edit", map[string]interface{}{
		"transform_id": transformId, "name": "stolen",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-admin should not edit transforms")
	}
}
