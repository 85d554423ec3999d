package tests

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestCharacterMeshLifecycle(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	mesh := []byte("glTF-binary-payload")

	var res struct {
		Success bool `json:"success"`
	}
	err := alice.postJson("/characters/add", map[string]interface{}{
		"skeleton_type": "human", "name": "knight",
		"data": base64.StdEncoding.EncodeToString(mesh),
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("mesh upload failed")
	}

	// The mesh lands at characters/<skeleton_type>/<name>.glb.
	stored, err := os.ReadFile(filepath.Join(env.dataDir, "characters", "human", "knight.glb"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(stored, mesh) {
		t.Fatal("stored mesh differs from upload")
	}

	var names []string
	if err := alice.postJson("/characters", map[string]interface{}{"skeleton_type": "human"}, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "knight" {
		t.Fatalf("unexpected mesh listing: %v", names)
	}

	body, err := alice.postRaw("/characters/download", map[string]interface{}{
		"skeleton_type": "human", "name": "knight",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, mesh) {
		t.Fatal("downloaded mesh differs from upload")
	}

	err = alice.postJson("/characters/remove", map[string]interface{}{
		"skeleton_type": "human", "name": "knight",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("mesh removal failed")
	}

	// Removal is idempotent and the listing is empty afterwards.
	err = alice.postJson("/characters/remove", map[string]interface{}{
		"skeleton_type": "human", "name": "knight",
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("repeated removal should succeed")
	}
	if err := alice.postJson("/characters", map[string]interface{}{"skeleton_type": "human"}, &names); err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Fatalf("expected empty listing after removal: %v", names)
	}
}

func TestCharacterKeysAreValidated(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	// Path separators in keys are rejected rather than traversed.
	body, err := alice.postRaw("/characters/download", map[string]interface{}{
		"skeleton_type": "../secrets", "name": "x",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 0 {
		t.Fatal("invalid keys should yield an empty body")
	}
}

func TestCharacterUnknownMeshReturnsEmptyBody(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")

	body, err := alice.postRaw("/download_character_model", map[string]interface{}{
		"skeleton_type": "human", "name": "ghost",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(body) != 0 {
		t.Fatalf("missing mesh should yield an empty body, got %d bytes", len(body))
	}
}
