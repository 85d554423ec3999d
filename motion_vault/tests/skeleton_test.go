package tests

import (
	"encoding/base64"
	"testing"
)

func addSkeleton(t *testing.T, c *client, name string, data []byte) {
	var res struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err := c.postJson("/skeletons/add", map[string]interface{}{
		"name": name,
		"data": base64.StdEncoding.EncodeToString(data),
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatalf("skeleton creation failed for %v", name)
	}
}

func TestSkeletonLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	hierarchy := []byte("joint-hierarchy")
	addSkeleton(t, alice, "human", hierarchy)

	var listing [][]interface{}
	if err := alice.postJson("/skeletons", nil, &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing) != 1 || listing[0][1] != "human" {
		t.Fatalf("unexpected skeleton listing: %v", listing)
	}

	var download struct {
		Data     string `json:"data"`
		MetaData string `json:"meta_data"`
	}
	if err := alice.postJson("/download_skeleton", map[string]interface{}{"name": "human"}, &download); err != nil {
		t.Fatal(err)
	}
	if download.Data != base64.StdEncoding.EncodeToString(hierarchy) {
		t.Fatal("downloaded skeleton differs from upload")
	}

	// Unknown names yield empty payloads.
	if err := alice.postJson("/download_skeleton", map[string]interface{}{"name": "ghost"}, &download); err != nil {
		t.Fatal(err)
	}
	if download.Data != "" {
		t.Fatal("unknown skeleton should download empty payloads")
	}
}

func TestSkeletonNamesAreUnique(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	addSkeleton(t, alice, "human", []byte("v1"))

	var res struct {
		Success bool `json:"success"`
	}
	err := alice.postJson("/skeletons/add", map[string]interface{}{
		"name": "human", "data": base64.StdEncoding.EncodeToString([]byte("v2")),
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("duplicate skeleton name should be rejected")
	}
}

func TestSkeletonMutationRequiresOwner(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	addSkeleton(t, alice, "human", []byte("v1"))

	var res struct {
		Success bool `json:"success"`
	}
	err := bob.postJson("/skeletons/remove", map[string]interface{}{"name": "human"}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-owner should not remove skeletons")
	}

	// Owners and admins can remove; the blob goes with the row.
	if env.blobCount(t, "skeletons") != 1 {
		t.Fatalf("expected 1 skeleton blob, found %d", env.blobCount(t, "skeletons"))
	}
	if err := alice.postJson("/skeletons/remove", map[string]interface{}{"name": "human"}, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("owner should remove their skeleton")
	}
	if env.blobCount(t, "skeletons") != 0 {
		t.Fatalf("expected no skeleton blobs, found %d", env.blobCount(t, "skeletons"))
	}
}
