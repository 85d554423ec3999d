package auth_test

import (
	"crypto/sha256"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
)

func setupDb(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(schema.AllModels()...))
	return db
}

func TestPasswordHashShape(t *testing.T) {
	hash := auth.HashPassword("pw")
	expected := sha256.Sum256([]byte("pw"))
	assert.Equal(t, expected[:], hash)
	assert.Len(t, hash, 32)
}

func TestAuthenticate(t *testing.T) {
	db := setupDb(t)

	user := schema.User{Name: "alice", Email: "a@x", Password: auth.HashPassword("pw"), Role: schema.RoleAdmin}
	require.NoError(t, db.Create(&user).Error)

	assert.Equal(t, int(user.ID), auth.Authenticate("alice", "pw", db))
	assert.Equal(t, auth.NoUser, auth.Authenticate("alice", "wrong", db))
	assert.Equal(t, auth.NoUser, auth.Authenticate("bob", "pw", db))
}

func TestTokenRoundTrip(t *testing.T) {
	manager := auth.NewJwtManager([]byte("test secret"))

	token, err := manager.CreateUserJwt(7)
	require.NoError(t, err)

	assert.Equal(t, 7, manager.UserIdFromToken(token))
}

func TestInvalidTokensYieldNoUser(t *testing.T) {
	manager := auth.NewJwtManager([]byte("test secret"))

	assert.Equal(t, auth.NoUser, manager.UserIdFromToken(""))
	assert.Equal(t, auth.NoUser, manager.UserIdFromToken("not a jwt"))

	other := auth.NewJwtManager([]byte("different secret"))
	token, err := other.CreateUserJwt(7)
	require.NoError(t, err)
	assert.Equal(t, auth.NoUser, manager.UserIdFromToken(token))
}

func TestGeneratePassword(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Za-z0-9]{6}$`)
	for i := 0; i < 20; i++ {
		password, err := auth.GeneratePassword()
		require.NoError(t, err)
		assert.True(t, pattern.MatchString(password), "unexpected password %q", password)
	}
}

func TestPermissions(t *testing.T) {
	db := setupDb(t)

	admin := schema.User{Name: "root", Email: "r@x", Role: schema.RoleAdmin}
	owner := schema.User{Name: "alice", Email: "a@x", Role: schema.RoleUser}
	other := schema.User{Name: "bob", Email: "b@x", Role: schema.RoleUser}
	require.NoError(t, db.Create(&admin).Error)
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&other).Error)

	private := schema.Collection{Name: "private", OwnerID: owner.ID, Public: 0}
	public := schema.Collection{Name: "public", OwnerID: owner.ID, Public: 1}

	assert.True(t, auth.CanMutateCollection(owner, private))
	assert.True(t, auth.CanMutateCollection(admin, private))
	assert.False(t, auth.CanMutateCollection(other, private))

	assert.False(t, auth.CanReadCollection(other, private))
	assert.True(t, auth.CanReadCollection(other, public))
	assert.True(t, auth.CanReadCollection(admin, private))
}

func TestProjectVisibility(t *testing.T) {
	db := setupDb(t)

	owner := schema.User{Name: "alice", Email: "a@x", Role: schema.RoleUser}
	outsider := schema.User{Name: "bob", Email: "b@x", Role: schema.RoleUser}
	require.NoError(t, db.Create(&owner).Error)
	require.NoError(t, db.Create(&outsider).Error)

	project := schema.Project{Name: "demo", OwnerID: owner.ID, CollectionID: 1, Public: 0}
	require.NoError(t, db.Create(&project).Error)
	require.NoError(t, db.Create(&schema.ProjectMember{UserID: owner.ID, ProjectID: project.ID}).Error)

	visible, err := auth.ProjectVisible(owner, project, db)
	require.NoError(t, err)
	assert.True(t, visible)

	visible, err = auth.ProjectVisible(outsider, project, db)
	require.NoError(t, err)
	assert.False(t, visible)

	require.NoError(t, db.Model(&project).Update("public", 1).Error)
	project.Public = 1
	visible, err = auth.ProjectVisible(outsider, project, db)
	require.NoError(t, err)
	assert.True(t, visible)
}
