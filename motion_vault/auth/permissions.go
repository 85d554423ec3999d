package auth

import (
	"gorm.io/gorm"

	"mocap_platform/motion_vault/schema"
)

func IsAdmin(user schema.User) bool {
	return user.Role == schema.RoleAdmin
}

// CanMutate is the generic owner-or-admin check applied by every mutating
// handler.
func CanMutate(ownerId uint, user schema.User) bool {
	return user.ID == ownerId || IsAdmin(user)
}

func CanMutateCollection(user schema.User, collection schema.Collection) bool {
	return CanMutate(collection.OwnerID, user)
}

func CanReadCollection(user schema.User, collection schema.Collection) bool {
	return collection.Public == 1 || CanMutate(collection.OwnerID, user)
}

// ProjectVisible decides whether a project shows up in listings: public
// projects are visible to everyone, private ones to members and admins.
func ProjectVisible(user schema.User, project schema.Project, db *gorm.DB) (bool, error) {
	if project.Public == 1 || IsAdmin(user) {
		return true, nil
	}
	return schema.IsProjectMember(user.ID, project.ID, db)
}
