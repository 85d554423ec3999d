package tests

import (
	"encoding/base64"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"mocap_platform/motion_vault/codec"
	"mocap_platform/motion_vault/schema"
)

type collectionNode struct {
	Id       uint             `json:"id"`
	Name     string           `json:"name"`
	Children []collectionNode `json:"children"`
}

func TestCollectionTree(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	rootId, err := alice.createCollection("root", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	childId, err := alice.createCollection("child", rootId, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.createCollection("grandchild", childId, 1); err != nil {
		t.Fatal(err)
	}

	var tree []collectionNode
	if err := alice.postJson("/collections/tree", map[string]interface{}{"collection_id": rootId}, &tree); err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 || tree[0].Name != "root" {
		t.Fatalf("unexpected tree root: %+v", tree)
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Name != "child" {
		t.Fatalf("unexpected children: %+v", tree[0].Children)
	}
	if len(tree[0].Children[0].Children) != 1 || tree[0].Children[0].Children[0].Name != "grandchild" {
		t.Fatalf("unexpected grandchildren: %+v", tree[0].Children[0].Children)
	}
}

func TestCollectionTreePrunesUnreadableBranches(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	rootId, err := alice.createCollection("root", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alice.createCollection("open", rootId, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.createCollection("hidden", rootId, 0); err != nil {
		t.Fatal(err)
	}

	var tree []collectionNode
	if err := bob.postJson("/collections/tree", map[string]interface{}{"collection_id": rootId}, &tree); err != nil {
		t.Fatal(err)
	}
	if len(tree) != 1 || len(tree[0].Children) != 1 || tree[0].Children[0].Name != "open" {
		t.Fatalf("private branch should be pruned for non-owners: %+v", tree)
	}
}

func TestCollectionRemoveLeavesChildren(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	rootId, err := alice.createCollection("root", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	childId, err := alice.createCollection("child", rootId, 0)
	if err != nil {
		t.Fatal(err)
	}

	var res struct {
		Success bool `json:"success"`
	}
	if err := alice.postJson("/collections/remove", map[string]interface{}{"collection_id": rootId}, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("collection removal failed")
	}

	// Only the row itself is removed; children keep their rows.
	if _, err := schema.GetCollection(rootId, env.db); err != schema.ErrCollectionNotFound {
		t.Fatalf("expected root to be gone, got %v", err)
	}
	if _, err := schema.GetCollection(childId, env.db); err != nil {
		t.Fatalf("child should survive non-recursive removal: %v", err)
	}
}

func TestCollectionRemoveRecursive(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	rootId, err := alice.createCollection("root", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	childId, err := alice.createCollection("child", rootId, 0)
	if err != nil {
		t.Fatal(err)
	}

	payload, err := codec.Encode(bson.M{"poses": bson.A{bson.M{"frame": int32(0)}}})
	if err != nil {
		t.Fatal(err)
	}

	var added struct {
		Success bool `json:"success"`
		Id      uint `json:"id"`
	}
	err = alice.postJson("/files/add", map[string]interface{}{
		"collection_id": childId,
		"name":          "clip",
		"skeleton":      "skel",
		"data":          base64.StdEncoding.EncodeToString(payload),
		"meta_data":     base64.StdEncoding.EncodeToString([]byte("annotation")),
		"data_type":     "motion",
	}, &added)
	if err != nil {
		t.Fatal(err)
	}
	if !added.Success {
		t.Fatal("file creation failed")
	}
	if env.blobCount(t, "files") != 2 {
		t.Fatalf("expected 2 blobs, found %d", env.blobCount(t, "files"))
	}

	var res struct {
		Success bool `json:"success"`
	}
	if err := alice.postJson("/collections/remove_recursive", map[string]interface{}{"collection_id": rootId}, &res); err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("recursive removal failed")
	}

	if _, err := schema.GetCollection(childId, env.db); err != schema.ErrCollectionNotFound {
		t.Fatalf("expected child to be gone, got %v", err)
	}
	if _, err := schema.GetFile(added.Id, env.db); err != schema.ErrFileNotFound {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	if env.blobCount(t, "files") != 0 {
		t.Fatalf("expected no blobs after recursive removal, found %d", env.blobCount(t, "files"))
	}
}
