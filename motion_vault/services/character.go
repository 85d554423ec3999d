package services

import (
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/characters"
	"mocap_platform/motion_vault/utils"
)

// CharacterService serves the .glb mesh directory. Meshes live outside the
// catalog, keyed by (skeleton_type, name).
type CharacterService struct {
	db         *gorm.DB
	jwt        *auth.JwtManager
	characters *characters.Store
}

func (s *CharacterService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Upload)
	r.Post("/remove", s.Delete)
	r.Post("/download", s.Download)

	return r
}

type characterListRequest struct {
	Token        string `json:"token"`
	SkeletonType string `json:"skeleton_type"`
}

func (s *CharacterService) List(w http.ResponseWriter, r *http.Request) {
	var params characterListRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []string{})
		return
	}

	names, err := s.characters.List(params.SkeletonType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	utils.WriteJsonResponse(w, names)
}

type uploadCharacterRequest struct {
	Token        string `json:"token"`
	SkeletonType string `json:"skeleton_type"`
	Name         string `json:"name"`
	Data         string `json:"data"`
}

func (s *CharacterService) Upload(w http.ResponseWriter, r *http.Request) {
	var params uploadCharacterRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	data, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
		return
	}

	if err := s.characters.Save(params.SkeletonType, params.Name, data); err != nil {
		slog.Error("error saving character mesh", "skeleton_type", params.SkeletonType, "name", params.Name, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("saved character mesh", "skeleton_type", params.SkeletonType, "name", params.Name)
	utils.WriteSuccess(w)
}

type characterRequest struct {
	Token        string `json:"token"`
	SkeletonType string `json:"skeleton_type"`
	Name         string `json:"name"`
}

func (s *CharacterService) Delete(w http.ResponseWriter, r *http.Request) {
	var params characterRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	if err := s.characters.Delete(params.SkeletonType, params.Name); err != nil {
		slog.Error("error deleting character mesh", "skeleton_type", params.SkeletonType, "name", params.Name, "error", err)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

// Download returns the raw mesh bytes. A missing mesh yields an empty body.
func (s *CharacterService) Download(w http.ResponseWriter, r *http.Request) {
	var params characterRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	data, err := s.characters.Load(params.SkeletonType, params.Name)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	utils.WriteBinary(w, data)
}
