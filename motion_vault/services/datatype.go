package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/registry"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/utils"
)

// DataTypeService manages the type registry rows: data types, their tags, and
// the per-engine loaders. All mutations are admin-only; the decoder scripts a
// loader row carries are trusted administrator input.
type DataTypeService struct {
	db       *gorm.DB
	jwt      *auth.JwtManager
	registry *registry.Registry
}

func (s *DataTypeService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/add", s.Add)
	r.Post("/edit", s.Edit)
	r.Post("/remove", s.Remove)
	r.Post("/info", s.Info)
	r.Post("/tag", s.TagDataType)
	r.Post("/untag", s.UntagDataType)
	r.Post("/tags", s.ListTags)
	r.Post("/tags/add", s.AddTag)
	r.Post("/tags/remove", s.RemoveTag)

	return r
}

func (s *DataTypeService) LoaderRoutes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.ListLoaders)
	r.Post("/add", s.AddLoader)
	r.Post("/edit", s.EditLoader)
	r.Post("/remove", s.RemoveLoader)
	r.Post("/info", s.LoaderInfo)

	return r
}

func (s *DataTypeService) adminFromToken(token string) (schema.User, error) {
	user, err := principalFromToken(token, s.jwt, s.db)
	if err != nil {
		return user, err
	}
	if !auth.IsAdmin(user) {
		return user, CodedError(ErrUnauthorized, http.StatusUnauthorized)
	}
	return user, nil
}

type dataTypeInfo struct {
	Id               uint     `json:"id"`
	Name             string   `json:"name"`
	Requirements     string   `json:"requirements"`
	IsModel          int      `json:"is_model"`
	IsTimeSeries     int      `json:"is_time_series"`
	IsSkeletonMotion int      `json:"is_skeleton_motion"`
	IsProcessed      int      `json:"is_processed"`
	Tags             []string `json:"tags"`
}

// List is readable by any authenticated user; clients need the type catalog
// to label uploads.
func (s *DataTypeService) List(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []dataTypeInfo{})
		return
	}

	var dataTypes []schema.DataType
	if result := s.db.Find(&dataTypes); result.Error != nil {
		slog.Error("sql error listing data types", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	var taggings []schema.DataTypeTagging
	if result := s.db.Find(&taggings); result.Error != nil {
		slog.Error("sql error listing data type taggings", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	tagsByType := map[string][]string{}
	for _, tagging := range taggings {
		tagsByType[tagging.DataType] = append(tagsByType[tagging.DataType], tagging.Tag)
	}

	infos := make([]dataTypeInfo, 0, len(dataTypes))
	for _, dt := range dataTypes {
		tags := tagsByType[dt.Name]
		if tags == nil {
			tags = []string{}
		}
		infos = append(infos, dataTypeInfo{
			Id: dt.ID, Name: dt.Name, Requirements: dt.Requirements,
			IsModel: dt.IsModel, IsTimeSeries: dt.IsTimeSeries,
			IsSkeletonMotion: dt.IsSkeletonMotion, IsProcessed: dt.IsProcessed,
			Tags: tags,
		})
	}

	utils.WriteJsonResponse(w, infos)
}

type addDataTypeRequest struct {
	Token            string `json:"token"`
	Name             string `json:"name"`
	Requirements     string `json:"requirements"`
	IsModel          int    `json:"is_model"`
	IsTimeSeries     int    `json:"is_time_series"`
	IsSkeletonMotion int    `json:"is_skeleton_motion"`
	IsProcessed      int    `json:"is_processed"`
}

func (s *DataTypeService) Add(w http.ResponseWriter, r *http.Request) {
	var params addDataTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "data type name is required", http.StatusBadRequest)
		return
	}

	dataType := schema.DataType{
		Name: params.Name, Requirements: params.Requirements,
		IsModel: params.IsModel, IsTimeSeries: params.IsTimeSeries,
		IsSkeletonMotion: params.IsSkeletonMotion, IsProcessed: params.IsProcessed,
	}
	if result := s.db.Create(&dataType); result.Error != nil {
		slog.Error("error creating data type", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("created data type", "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": dataType.ID})
}

type editDataTypeRequest struct {
	Token            string  `json:"token"`
	Name             string  `json:"name"`
	Requirements     *string `json:"requirements"`
	IsModel          *int    `json:"is_model"`
	IsTimeSeries     *int    `json:"is_time_series"`
	IsSkeletonMotion *int    `json:"is_skeleton_motion"`
	IsProcessed      *int    `json:"is_processed"`
}

func (s *DataTypeService) Edit(w http.ResponseWriter, r *http.Request) {
	var params editDataTypeRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataTypeByName(params.Name, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Requirements != nil {
		updates["requirements"] = *params.Requirements
	}
	if params.IsModel != nil {
		updates["is_model"] = *params.IsModel
	}
	if params.IsTimeSeries != nil {
		updates["is_time_series"] = *params.IsTimeSeries
	}
	if params.IsSkeletonMotion != nil {
		updates["is_skeleton_motion"] = *params.IsSkeletonMotion
	}
	if params.IsProcessed != nil {
		updates["is_processed"] = *params.IsProcessed
	}
	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	result := s.db.Model(&schema.DataType{}).Where("name = ?", params.Name).Updates(updates)
	if result.Error != nil {
		slog.Error("sql error editing data type", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("edited data type", "name", params.Name)
	utils.WriteSuccess(w)
}

func (s *DataTypeService) Info(w http.ResponseWriter, r *http.Request) {
	var params dataTypeNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	dataType, err := schema.GetDataTypeByName(params.Name, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	var taggings []schema.DataTypeTagging
	if result := s.db.Find(&taggings, "data_type = ?", params.Name); result.Error != nil {
		slog.Error("sql error listing taggings", "name", params.Name, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}
	tags := make([]string, 0, len(taggings))
	for _, tagging := range taggings {
		tags = append(tags, tagging.Tag)
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success":            true,
		"id":                 dataType.ID,
		"name":               dataType.Name,
		"requirements":       dataType.Requirements,
		"is_model":           dataType.IsModel,
		"is_time_series":     dataType.IsTimeSeries,
		"is_skeleton_motion": dataType.IsSkeletonMotion,
		"is_processed":       dataType.IsProcessed,
		"tags":               tags,
	})
}

type dataTypeNameRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

// Remove deletes the type row, its taggings, and any loaders registered for
// it, unloading the in-process decoder as well.
func (s *DataTypeService) Remove(w http.ResponseWriter, r *http.Request) {
	var params dataTypeNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.DataType{}, "name = ?", params.Name); result.Error != nil {
			slog.Error("sql error deleting data type", "name", params.Name, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.DataTypeTagging{}, "data_type = ?", params.Name); result.Error != nil {
			slog.Error("sql error deleting data type taggings", "name", params.Name, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.DataLoader{}, "data_type = ?", params.Name); result.Error != nil {
			slog.Error("sql error deleting data loaders", "name", params.Name, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	s.registry.Unload(params.Name)
	slog.Info("removed data type", "name", params.Name)
	utils.WriteSuccess(w)
}

type taggingRequest struct {
	Token    string `json:"token"`
	DataType string `json:"data_type"`
	Tag      string `json:"tag"`
}

func (s *DataTypeService) TagDataType(w http.ResponseWriter, r *http.Request) {
	var params taggingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataTypeByName(params.DataType, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	tagging := schema.DataTypeTagging{DataType: params.DataType, Tag: params.Tag}
	if result := s.db.Create(&tagging); result.Error != nil {
		slog.Error("error tagging data type", "data_type", params.DataType, "tag", params.Tag, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

func (s *DataTypeService) UntagDataType(w http.ResponseWriter, r *http.Request) {
	var params taggingRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	result := s.db.Delete(&schema.DataTypeTagging{}, "data_type = ? and tag = ?", params.DataType, params.Tag)
	if result.Error != nil {
		slog.Error("sql error untagging data type", "data_type", params.DataType, "tag", params.Tag, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

func (s *DataTypeService) ListTags(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []string{})
		return
	}

	var tags []schema.Tag
	if result := s.db.Find(&tags); result.Error != nil {
		slog.Error("sql error listing tags", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	utils.WriteJsonResponse(w, names)
}

type tagRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (s *DataTypeService) AddTag(w http.ResponseWriter, r *http.Request) {
	var params tagRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "tag name is required", http.StatusBadRequest)
		return
	}

	tag := schema.Tag{Name: params.Name}
	if result := s.db.Create(&tag); result.Error != nil {
		slog.Error("error creating tag", "name", params.Name, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

// RemoveTag drops the tag and every tagging that references it.
func (s *DataTypeService) RemoveTag(w http.ResponseWriter, r *http.Request) {
	var params tagRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Delete(&schema.Tag{}, "name = ?", params.Name); result.Error != nil {
			slog.Error("sql error deleting tag", "name", params.Name, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result := txn.Delete(&schema.DataTypeTagging{}, "tag = ?", params.Name); result.Error != nil {
			slog.Error("sql error deleting taggings for tag", "name", params.Name, "error", result.Error)
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

type loaderInfo struct {
	Id           uint   `json:"id"`
	DataType     string `json:"data_type"`
	Engine       string `json:"engine"`
	Requirements string `json:"requirements"`
}

func (s *DataTypeService) ListLoaders(w http.ResponseWriter, r *http.Request) {
	var params tokenRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteJsonResponse(w, []loaderInfo{})
		return
	}

	var loaders []schema.DataLoader
	if result := s.db.Find(&loaders); result.Error != nil {
		slog.Error("sql error listing data loaders", "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	infos := make([]loaderInfo, 0, len(loaders))
	for _, loader := range loaders {
		infos = append(infos, loaderInfo{
			Id: loader.ID, DataType: loader.DataType,
			Engine: loader.Engine, Requirements: loader.Requirements,
		})
	}
	utils.WriteJsonResponse(w, infos)
}

type addLoaderRequest struct {
	Token        string `json:"token"`
	DataType     string `json:"data_type"`
	Engine       string `json:"engine"`
	Script       string `json:"script"`
	Requirements string `json:"requirements"`
}

// AddLoader registers a loader row; loaders for the in-process engine are
// activated in the registry immediately.
func (s *DataTypeService) AddLoader(w http.ResponseWriter, r *http.Request) {
	var params addLoaderRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.DataType == "" || params.Engine == "" {
		http.Error(w, "data_type and engine are required", http.StatusBadRequest)
		return
	}

	if _, err := schema.GetDataTypeByName(params.DataType, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	loader := schema.DataLoader{
		DataType: params.DataType, Engine: params.Engine,
		Script: params.Script, Requirements: params.Requirements,
	}
	if result := s.db.Create(&loader); result.Error != nil {
		slog.Error("error creating data loader", "data_type", params.DataType, "engine", params.Engine, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	if params.Engine == schema.EngineDB {
		if err := s.registry.Load(params.DataType, params.Script); err != nil {
			slog.Error("error activating data loader", "data_type", params.DataType, "error", err)
		}
	}

	slog.Info("created data loader", "data_type", params.DataType, "engine", params.Engine)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": loader.ID})
}

type editLoaderRequest struct {
	Token        string  `json:"token"`
	DataType     string  `json:"data_type"`
	Engine       string  `json:"engine"`
	Script       *string `json:"script"`
	Requirements *string `json:"requirements"`
}

// EditLoader updates a loader row in place; a new script for the in-process
// engine replaces the active decoder entry.
func (s *DataTypeService) EditLoader(w http.ResponseWriter, r *http.Request) {
	var params editLoaderRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataLoader(params.DataType, params.Engine, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	updates := map[string]interface{}{}
	if params.Script != nil {
		updates["script"] = *params.Script
	}
	if params.Requirements != nil {
		updates["requirements"] = *params.Requirements
	}
	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	result := s.db.Model(&schema.DataLoader{}).
		Where("data_type = ? and engine = ?", params.DataType, params.Engine).
		Updates(updates)
	if result.Error != nil {
		slog.Error("sql error editing data loader", "data_type", params.DataType, "engine", params.Engine, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	if params.Script != nil && params.Engine == schema.EngineDB {
		if err := s.registry.Load(params.DataType, *params.Script); err != nil {
			slog.Error("error reloading data loader", "data_type", params.DataType, "error", err)
		}
	}

	slog.Info("edited data loader", "data_type", params.DataType, "engine", params.Engine)
	utils.WriteSuccess(w)
}

func (s *DataTypeService) LoaderInfo(w http.ResponseWriter, r *http.Request) {
	var params removeLoaderRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := principalFromToken(params.Token, s.jwt, s.db); err != nil {
		utils.WriteFailure(w)
		return
	}

	loader, err := schema.GetDataLoader(params.DataType, params.Engine, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success":      true,
		"id":           loader.ID,
		"data_type":    loader.DataType,
		"engine":       loader.Engine,
		"script":       loader.Script,
		"requirements": loader.Requirements,
	})
}

type removeLoaderRequest struct {
	Token    string `json:"token"`
	DataType string `json:"data_type"`
	Engine   string `json:"engine"`
}

func (s *DataTypeService) RemoveLoader(w http.ResponseWriter, r *http.Request) {
	var params removeLoaderRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if _, err := s.adminFromToken(params.Token); err != nil {
		utils.WriteFailure(w)
		return
	}

	if _, err := schema.GetDataLoader(params.DataType, params.Engine, s.db); err != nil {
		if errors.Is(err, schema.ErrDataLoaderNotFound) {
			utils.WriteSuccess(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := s.db.Delete(&schema.DataLoader{}, "data_type = ? and engine = ?", params.DataType, params.Engine)
	if result.Error != nil {
		slog.Error("sql error deleting data loader", "data_type", params.DataType, "engine", params.Engine, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	if params.Engine == schema.EngineDB {
		s.registry.Unload(params.DataType)
	}

	slog.Info("removed data loader", "data_type", params.DataType, "engine", params.Engine)
	utils.WriteSuccess(w)
}
