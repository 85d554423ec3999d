package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/utils"
)

type ProjectService struct {
	db  *gorm.DB
	jwt *auth.JwtManager
}

func (s *ProjectService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/edit", s.Edit)
	r.Post("/remove", s.Remove)
	r.Post("/info", s.Info)

	return r
}

// List returns [id, name] pairs for every project visible to the caller:
// public projects, projects the caller belongs to, and everything for admins.
func (s *ProjectService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, [][]interface{}{})
		return
	}

	var projects []schema.Project
	if result := s.db.Find(&projects); result.Error != nil {
		slog.Error("sql error listing projects", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	visible := make([][]interface{}, 0, len(projects))
	for _, project := range projects {
		ok, err := auth.ProjectVisible(user, project, s.db)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if ok {
			visible = append(visible, []interface{}{project.ID, project.Name})
		}
	}

	utils.WriteJsonResponse(w, visible)
}

type addProjectRequest struct {
	Token  string `json:"token"`
	Name   string `json:"name"`
	Public int    `json:"public"`
}

// Add creates the project, its root collection, and the owner's membership
// in one transaction.
func (s *ProjectService) Add(w http.ResponseWriter, r *http.Request) {
	var params addProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "project name is required", http.StatusBadRequest)
		return
	}

	var projectId uint
	err = s.db.Transaction(func(txn *gorm.DB) error {
		collection := schema.Collection{Name: params.Name, OwnerID: user.ID, ParentID: 0, Public: params.Public}
		if result := txn.Create(&collection); result.Error != nil {
			slog.Error("sql error creating root collection", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		project := schema.Project{Name: params.Name, OwnerID: user.ID, CollectionID: collection.ID, Public: params.Public}
		if result := txn.Create(&project); result.Error != nil {
			slog.Error("sql error creating project", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		member := schema.ProjectMember{UserID: user.ID, ProjectID: project.ID}
		if result := txn.Create(&member); result.Error != nil {
			slog.Error("sql error creating project membership", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		projectId = project.ID
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("created project", "project_id", projectId, "owner", user.ID)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": projectId})
}

type editProjectRequest struct {
	Token     string `json:"token"`
	ProjectId uint   `json:"project_id"`
	Name      string `json:"name"`
	Public    *int   `json:"public"`
}

func (s *ProjectService) Edit(w http.ResponseWriter, r *http.Request) {
	var params editProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, false)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(project.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Name != "" {
		updates["name"] = params.Name
	}
	if params.Public != nil {
		updates["public"] = *params.Public
	}
	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	if result := s.db.Model(&schema.Project{}).Where("id = ?", project.ID).Updates(updates); result.Error != nil {
		slog.Error("sql error editing project", "project_id", project.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

type removeProjectRequest struct {
	Token     string `json:"token"`
	ProjectId uint   `json:"project_id"`
}

// Remove deletes the project and its memberships. The root collection and
// its files are left in place; collection removal is a separate operation.
func (s *ProjectService) Remove(w http.ResponseWriter, r *http.Request) {
	var params removeProjectRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, false)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(project.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Where("project_id = ?", project.ID).Delete(&schema.ProjectMember{}); result.Error != nil {
			slog.Error("sql error deleting project members", "project_id", project.ID, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.Project{}, project.ID); result.Error != nil {
			slog.Error("sql error deleting project", "project_id", project.ID, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed project", "project_id", project.ID)
	utils.WriteSuccess(w)
}

type projectInfoRequest struct {
	Token     string `json:"token"`
	ProjectId uint   `json:"project_id"`
}

func (s *ProjectService) Info(w http.ResponseWriter, r *http.Request) {
	var params projectInfoRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrProjectNotFound) {
			utils.WriteFailure(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	visible, err := auth.ProjectVisible(user, project, s.db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !visible {
		utils.WriteFailure(w)
		return
	}

	members := make([]uint, 0, len(project.Members))
	for _, member := range project.Members {
		members = append(members, member.UserID)
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success":    true,
		"id":         project.ID,
		"name":       project.Name,
		"owner":      project.OwnerID,
		"collection": project.CollectionID,
		"public":     project.Public,
		"members":    members,
	})
}

type projectMemberRequest struct {
	Token     string `json:"token"`
	ProjectId uint   `json:"project_id"`
	UserId    uint   `json:"user_id"`
}

// Members lists the member ids of a project.
func (s *ProjectService) Members(w http.ResponseWriter, r *http.Request) {
	var params projectMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []uint{})
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, true)
	if err != nil {
		utils.WriteJsonResponse(w, []uint{})
		return
	}

	visible, err := auth.ProjectVisible(user, project, s.db)
	if err != nil || !visible {
		utils.WriteJsonResponse(w, []uint{})
		return
	}

	members := make([]uint, 0, len(project.Members))
	for _, member := range project.Members {
		members = append(members, member.UserID)
	}
	utils.WriteJsonResponse(w, members)
}

func (s *ProjectService) AddMember(w http.ResponseWriter, r *http.Request) {
	var params projectMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, false)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(project.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, params.UserId); err != nil {
			return err
		}
		member := schema.ProjectMember{UserID: params.UserId, ProjectID: project.ID}
		if result := txn.Create(&member); result.Error != nil {
			slog.Error("sql error adding project member", "project_id", project.ID, "user_id", params.UserId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

func (s *ProjectService) RemoveMember(w http.ResponseWriter, r *http.Request) {
	var params projectMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	project, err := schema.GetProject(params.ProjectId, s.db, false)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(project.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	result := s.db.Where("project_id = ? and user_id = ?", project.ID, params.UserId).Delete(&schema.ProjectMember{})
	if result.Error != nil {
		slog.Error("sql error removing project member", "project_id", project.ID, "user_id", params.UserId, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

type userProjectsRequest struct {
	Token  string `json:"token"`
	UserId uint   `json:"user_id"`
}

// UserProjects lists [id, name] pairs for the projects a user belongs to.
func (s *ProjectService) UserProjects(w http.ResponseWriter, r *http.Request) {
	var params userProjectsRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, [][]interface{}{})
		return
	}

	targetId := params.UserId
	if targetId == 0 || (targetId != user.ID && !auth.IsAdmin(user)) {
		targetId = user.ID
	}

	var memberships []schema.ProjectMember
	if result := s.db.Find(&memberships, "user_id = ?", targetId); result.Error != nil {
		slog.Error("sql error listing user projects", "user_id", targetId, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	projects := make([][]interface{}, 0, len(memberships))
	for _, membership := range memberships {
		project, err := schema.GetProject(membership.ProjectID, s.db, false)
		if err != nil {
			continue
		}
		projects = append(projects, []interface{}{project.ID, project.Name})
	}

	utils.WriteJsonResponse(w, projects)
}
