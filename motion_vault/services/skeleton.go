package services

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/utils"
)

// Skeleton payloads travel base64-encoded inside JSON bodies; the stored form
// is the decoded bytes (a compressed joint-hierarchy document).
type SkeletonService struct {
	db        *gorm.DB
	jwt       *auth.JwtManager
	skeletons *table.Table
}

func (s *SkeletonService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/info", s.Info)
	r.Post("/download", s.Download)
	r.Post("/replace", s.Replace)
	r.Post("/remove", s.Remove)

	return r
}

func (s *SkeletonService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, [][]interface{}{})
		return
	}

	var skeletons []schema.Skeleton
	if result := s.db.Find(&skeletons); result.Error != nil {
		slog.Error("sql error listing skeletons", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	names := make([][]interface{}, 0, len(skeletons))
	for _, skeleton := range skeletons {
		names = append(names, []interface{}{skeleton.ID, skeleton.Name})
	}
	utils.WriteJsonResponse(w, names)
}

type addSkeletonRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Data     string `json:"data"`
	MetaData string `json:"meta_data"`
}

func (s *SkeletonService) Add(w http.ResponseWriter, r *http.Request) {
	var params addSkeletonRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "skeleton name is required", http.StatusBadRequest)
		return
	}

	// Skeleton names are unique; an existing name is an integrity violation,
	// not an overwrite.
	if _, err := schema.GetSkeletonByName(params.Name, s.db); err == nil {
		utils.WriteFailure(w)
		return
	} else if !errors.Is(err, schema.ErrSkeletonNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
		return
	}
	metaData, err := base64.StdEncoding.DecodeString(params.MetaData)
	if err != nil {
		http.Error(w, "invalid base64 in meta_data field", http.StatusBadRequest)
		return
	}

	id, err := s.skeletons.Create(table.Record{
		"name": params.Name, "data": data, "meta_data": metaData, "owner_id": user.ID,
	})
	if err != nil {
		slog.Error("error creating skeleton", "name", params.Name, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("created skeleton", "skeleton_id", id, "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": id})
}

type skeletonByNameRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (s *SkeletonService) Info(w http.ResponseWriter, r *http.Request) {
	var params skeletonByNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	skeleton, err := schema.GetSkeletonByName(params.Name, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true,
		"id":      skeleton.ID,
		"name":    skeleton.Name,
		"owner":   skeleton.OwnerID,
	})
}

// Download returns the skeleton's payloads base64 encoded. Unknown names
// yield empty payloads.
func (s *SkeletonService) Download(w http.ResponseWriter, r *http.Request) {
	var params skeletonByNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	row, err := s.skeletons.GetByName(params.Name, []string{"data", "meta_data"})
	if err != nil {
		if errors.Is(err, table.ErrRowNotFound) {
			utils.WriteJsonResponse(w, map[string]string{"data": "", "meta_data": ""})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, _ := row["data"].([]byte)
	metaData, _ := row["meta_data"].([]byte)
	utils.WriteJsonResponse(w, map[string]string{
		"data":      base64.StdEncoding.EncodeToString(data),
		"meta_data": base64.StdEncoding.EncodeToString(metaData),
	})
}

type replaceSkeletonRequest struct {
	Token    string  `json:"token"`
	Name     string  `json:"name"`
	Data     *string `json:"data"`
	MetaData *string `json:"meta_data"`
}

func (s *SkeletonService) Replace(w http.ResponseWriter, r *http.Request) {
	var params replaceSkeletonRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	skeleton, err := schema.GetSkeletonByName(params.Name, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(skeleton.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	record := table.Record{}
	if params.Data != nil {
		data, err := base64.StdEncoding.DecodeString(*params.Data)
		if err != nil {
			http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
			return
		}
		record["data"] = data
	}
	if params.MetaData != nil {
		metaData, err := base64.StdEncoding.DecodeString(*params.MetaData)
		if err != nil {
			http.Error(w, "invalid base64 in meta_data field", http.StatusBadRequest)
			return
		}
		record["meta_data"] = metaData
	}
	if len(record) == 0 {
		utils.WriteSuccess(w)
		return
	}

	if err := s.skeletons.Update(skeleton.ID, record); err != nil {
		slog.Error("error replacing skeleton payloads", "skeleton_id", skeleton.ID, "error", err)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

func (s *SkeletonService) Remove(w http.ResponseWriter, r *http.Request) {
	var params skeletonByNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	skeleton, err := schema.GetSkeletonByName(params.Name, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutate(skeleton.OwnerID, user) {
		utils.WriteFailure(w)
		return
	}

	if err := s.skeletons.Delete(skeleton.ID); err != nil {
		slog.Error("error removing skeleton", "skeleton_id", skeleton.ID, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed skeleton", "skeleton_id", skeleton.ID, "name", skeleton.Name)
	utils.WriteSuccess(w)
}
