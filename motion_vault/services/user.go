package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/utils"
)

type UserService struct {
	db     *gorm.DB
	jwt    *auth.JwtManager
	mailer auth.Mailer
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/verify", s.Verify)
	r.Post("/", s.List)
	r.Post("/info", s.Info)
	r.Post("/add", s.Add)
	r.Post("/edit", s.Edit)
	r.Post("/remove", s.Remove)
	r.Post("/reset_password", s.ResetPassword)

	return r
}

type verifyRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyResponse struct {
	UserId   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Verify authenticates a username/password pair and issues a token. Bad
// credentials report user_id -1 rather than an error status.
func (s *UserService) Verify(w http.ResponseWriter, r *http.Request) {
	var params verifyRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	userId := auth.Authenticate(params.Username, params.Password, s.db)
	if userId == auth.NoUser {
		authFailureMetric.Inc()
		utils.WriteJsonResponse(w, verifyResponse{UserId: auth.NoUser})
		return
	}

	user, err := schema.GetUser(uint(userId), s.db)
	if err != nil {
		http.Error(w, fmt.Sprintf("error verifying user: %v", err), http.StatusInternalServerError)
		return
	}

	token, err := s.jwt.CreateUserJwt(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("user authenticated", "user_id", user.ID)
	utils.WriteJsonResponse(w, verifyResponse{
		UserId: int(user.ID), Username: user.Name, Token: token, Role: user.Role,
	})
}

type tokenRequest struct {
	Token string `json:"token"`
}

type userInfo struct {
	Id    uint   `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}

	var users []schema.User
	if result := s.db.Find(&users); result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]userInfo, 0, len(users))
	for _, u := range users {
		infos = append(infos, userInfo{Id: u.ID, Name: u.Name, Email: u.Email, Role: u.Role})
	}

	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "users": infos})
}

type userInfoRequest struct {
	Token  string `json:"token"`
	UserId uint   `json:"user_id"`
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	var params userInfoRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	targetId := params.UserId
	if targetId == 0 {
		targetId = user.ID
	}
	if targetId != user.ID && !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}

	target, err := schema.GetUser(targetId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			utils.WriteFailure(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true,
		"user":    userInfo{Id: target.ID, Name: target.Name, Email: target.Email, Role: target.Role},
	})
}

type addUserRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func (s *UserService) Add(w http.ResponseWriter, r *http.Request) {
	var params addUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil || !auth.IsAdmin(user) {
		utils.WriteFailure(w)
		return
	}

	if params.Name == "" || params.Email == "" {
		http.Error(w, "name and email are required", http.StatusBadRequest)
		return
	}
	role := params.Role
	if role == "" {
		role = schema.RoleUser
	}
	if role != schema.RoleAdmin && role != schema.RoleUser {
		http.Error(w, fmt.Sprintf("invalid role %q", role), http.StatusBadRequest)
		return
	}

	newUser := schema.User{
		Name: params.Name, Email: params.Email,
		Password: auth.HashPassword(params.Password), Role: role,
	}

	// Duplicate names and emails violate the unique constraints and surface
	// as {success: false} rather than an error status.
	if result := s.db.Create(&newUser); result.Error != nil {
		slog.Error("error creating user", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("created user", "user_id", newUser.ID, "role", role)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": newUser.ID})
}

type editUserRequest struct {
	Token    string `json:"token"`
	UserId   uint   `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (s *UserService) Edit(w http.ResponseWriter, r *http.Request) {
	var params editUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	targetId := params.UserId
	if targetId == 0 {
		targetId = user.ID
	}
	if !auth.CanMutate(targetId, user) {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Name != "" {
		updates["name"] = params.Name
	}
	if params.Email != "" {
		updates["email"] = params.Email
	}
	if params.Password != "" {
		updates["password"] = auth.HashPassword(params.Password)
	}
	if params.Role != "" {
		// Only admins reassign roles.
		if !auth.IsAdmin(user) {
			utils.WriteFailure(w)
			return
		}
		updates["role"] = params.Role
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, targetId); err != nil {
			return err
		}
		if result := txn.Model(&schema.User{}).Where("id = ?", targetId).Updates(updates); result.Error != nil {
			slog.Error("sql error editing user", "user_id", targetId, "error", result.Error)
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

type removeUserRequest struct {
	Token  string `json:"token"`
	UserId uint   `json:"user_id"`
}

func (s *UserService) Remove(w http.ResponseWriter, r *http.Request) {
	var params removeUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(params.UserId, user) {
		utils.WriteFailure(w)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, params.UserId); err != nil {
			return err
		}
		if result := txn.Delete(&schema.User{}, params.UserId); result.Error != nil {
			slog.Error("sql error deleting user", "user_id", params.UserId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed user", "user_id", params.UserId)
	utils.WriteSuccess(w)
}

type resetPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPassword rewrites the stored hash with a random 6 character password
// and hands it to the mailer. Succeeds iff a user with that email exists.
func (s *UserService) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var params resetPasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var user schema.User
	result := s.db.First(&user, "email = ?", params.Email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			utils.WriteFailure(w)
			return
		}
		slog.Error("sql error looking up user for password reset", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	newPassword, err := auth.GeneratePassword()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	update := s.db.Model(&schema.User{}).Where("id = ?", user.ID).
		Update("password", auth.HashPassword(newPassword))
	if update.Error != nil {
		slog.Error("sql error resetting password", "user_id", user.ID, "error", update.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.mailer.SendPasswordReset(user.Email, newPassword); err != nil {
		slog.Error("error sending password reset email", "user_id", user.ID, "error", err)
	}

	utils.WriteSuccess(w)
}
