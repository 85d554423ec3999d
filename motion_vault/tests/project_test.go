package tests

import (
	"testing"

	"mocap_platform/motion_vault/schema"
)

func TestProjectCreation(t *testing.T) {
	env := setupTestEnv(t)
	admin := env.adminClient(t)

	projectId, err := admin.createProject("demo", 1)
	if err != nil {
		t.Fatal(err)
	}

	project, err := schema.GetProject(projectId, env.db, true)
	if err != nil {
		t.Fatal(err)
	}
	if project.Name != "demo" || project.Public != 1 {
		t.Fatalf("unexpected project row: %+v", project)
	}

	// The root collection is created with the project.
	collection, err := schema.GetCollection(project.CollectionID, env.db)
	if err != nil {
		t.Fatal(err)
	}
	if collection.Name != "demo" || collection.ParentID != 0 || collection.Public != 1 {
		t.Fatalf("unexpected root collection: %+v", collection)
	}

	// The owner is automatically a member.
	if len(project.Members) != 1 || project.Members[0].UserID != uint(admin.userId) {
		t.Fatalf("expected owner membership, got %+v", project.Members)
	}

	var listing [][]interface{}
	if err := admin.postJson("/projects", nil, &listing); err != nil {
		t.Fatal(err)
	}
	if len(listing) != 1 || len(listing[0]) != 2 {
		t.Fatalf("unexpected project listing: %v", listing)
	}
	if listing[0][1] != "demo" {
		t.Fatalf("unexpected project name in listing: %v", listing[0])
	}
}

func TestProjectVisibility(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	if _, err := alice.createProject("open", 1); err != nil {
		t.Fatal(err)
	}
	privateId, err := alice.createProject("closed", 0)
	if err != nil {
		t.Fatal(err)
	}

	listNames := func(c *client) map[string]bool {
		var listing [][]interface{}
		if err := c.postJson("/projects", nil, &listing); err != nil {
			t.Fatal(err)
		}
		names := map[string]bool{}
		for _, pair := range listing {
			names[pair[1].(string)] = true
		}
		return names
	}

	// A public project is visible to everyone; a private one only to members.
	bobView := listNames(bob)
	if !bobView["open"] || bobView["closed"] {
		t.Fatalf("unexpected visibility for non-member: %v", bobView)
	}

	aliceView := listNames(alice)
	if !aliceView["open"] || !aliceView["closed"] {
		t.Fatalf("owner should see both projects: %v", aliceView)
	}

	// Admins see everything.
	adminView := listNames(env.adminClient(t))
	if !adminView["open"] || !adminView["closed"] {
		t.Fatalf("admin should see both projects: %v", adminView)
	}

	// Membership makes the private project visible.
	var res struct {
		Success bool `json:"success"`
	}
	err = alice.postJson("/add_project_member", map[string]interface{}{
		"project_id": privateId, "user_id": bob.userId,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("adding project member failed")
	}

	bobView = listNames(bob)
	if !bobView["closed"] {
		t.Fatal("member should see the private project")
	}
}

func TestProjectMembersAndRemoval(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.newUser(t, "alice")
	bob := env.newUser(t, "bob")

	projectId, err := alice.createProject("team", 0)
	if err != nil {
		t.Fatal(err)
	}

	// Non-owners cannot add members.
	var res struct {
		Success bool `json:"success"`
	}
	err = bob.postJson("/add_project_member", map[string]interface{}{
		"project_id": projectId, "user_id": bob.userId,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Fatal("non-owner should not add members")
	}

	err = alice.postJson("/add_project_member", map[string]interface{}{
		"project_id": projectId, "user_id": bob.userId,
	}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("owner should add members")
	}

	var members []uint
	err = alice.postJson("/project_members", map[string]interface{}{"project_id": projectId}, &members)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}

	// Removing the project deletes memberships but leaves the root collection.
	project, err := schema.GetProject(projectId, env.db, false)
	if err != nil {
		t.Fatal(err)
	}

	err = alice.postJson("/projects/remove", map[string]interface{}{"project_id": projectId}, &res)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("project removal failed")
	}

	if _, err := schema.GetProject(projectId, env.db, false); err != schema.ErrProjectNotFound {
		t.Fatalf("expected project to be gone, got %v", err)
	}
	if _, err := schema.GetCollection(project.CollectionID, env.db); err != nil {
		t.Fatalf("root collection should survive project removal: %v", err)
	}
}
