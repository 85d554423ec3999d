package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/catalog"
	"mocap_platform/motion_vault/codec"
	"mocap_platform/motion_vault/registry"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/utils"
)

// ModelService is the view over files whose data type is flagged as a model.
// Sampling goes through the same registry hook as the polymorphic file read,
// but here a missing loader is a failure rather than a raw-blob fallback.
type ModelService struct {
	db       *gorm.DB
	jwt      *auth.JwtManager
	files    *table.Table
	registry *registry.Registry
}

func (s *ModelService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/get_sample", s.GetSample)
	r.Post("/download_sample_as_bvh", s.DownloadSampleAsBvh)
	r.Post("/get_time_function", s.GetTimeFunction)

	return r
}

type modelListRequest struct {
	Token        string `json:"token"`
	CollectionId uint   `json:"collection_id"`
	Skeleton     string `json:"skeleton"`
}

func (s *ModelService) List(w http.ResponseWriter, r *http.Request) {
	var params modelListRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []fileListEntry{})
		return
	}

	if params.CollectionId != 0 {
		collection, err := schema.GetCollection(params.CollectionId, s.db)
		if err != nil || !auth.CanReadCollection(user, collection) {
			utils.WriteJsonResponse(w, []fileListEntry{})
			return
		}
	}

	q := catalog.Query{
		Joins: []catalog.Join{
			{Table: schema.DataTypesTable, On: "files.data_type = data_types.name"},
		},
		Filters: []catalog.Filter{
			{Column: "data_types.is_model", Value: 1, ExactMatch: true},
		},
	}
	if params.CollectionId != 0 {
		q.Filters = append(q.Filters, catalog.Filter{Column: "files.collection_id", Value: params.CollectionId})
	}
	if params.Skeleton != "" {
		q.Filters = append(q.Filters, catalog.Filter{Column: "files.skeleton", Value: params.Skeleton, ExactMatch: true})
	}

	cols := []string{
		"files.id", "files.name", "files.skeleton", "files.data_type",
		"files.num_frames", "files.processed",
	}
	rows, err := s.files.List(cols, q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]fileListEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fileListEntry{
			Id:        uint(asInt64(row["id"])),
			Name:      asString(row["name"]),
			Skeleton:  asString(row["skeleton"]),
			DataType:  asString(row["data_type"]),
			NumFrames: asInt64(row["num_frames"]),
			Processed: asInt64(row["processed"]),
		})
	}

	utils.WriteJsonResponse(w, entries)
}

// sample runs the registered decoder for the file's data type over its blob.
func (s *ModelService) sample(user schema.User, fileId uint) (bson.M, error) {
	file, err := schema.GetFile(fileId, s.db)
	if err != nil {
		return nil, err
	}

	collection, err := schema.GetCollection(file.CollectionID, s.db)
	if err == nil && !auth.CanReadCollection(user, collection) {
		return nil, CodedError(ErrUnauthorized, http.StatusUnauthorized)
	}

	loader, err := schema.GetDataLoader(file.DataType, schema.EngineDB, s.db)
	if err != nil {
		return nil, err
	}
	if !s.registry.IsLoaded(file.DataType) {
		if err := s.registry.Load(file.DataType, loader.Script); err != nil {
			return nil, err
		}
	}

	row, err := s.files.Get(file.ID, []string{"data"})
	if err != nil {
		return nil, err
	}
	blob, _ := row["data"].([]byte)

	return s.registry.SampleMotionFromModel(file.DataType, blob, file.Skeleton)
}

// GetSample draws one motion from a model file and returns it in the
// canonical compressed form.
func (s *ModelService) GetSample(w http.ResponseWriter, r *http.Request) {
	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	artifact, err := s.sample(user, params.FileId)
	if err != nil {
		if errors.Is(err, schema.ErrFileNotFound) || errors.Is(err, schema.ErrDataLoaderNotFound) {
			utils.WriteBinary(w, nil)
			return
		}
		slog.Error("error sampling model", "file_id", params.FileId, "error", err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	payload, err := codec.Encode(artifact)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteBinary(w, payload)
}

// DownloadSampleAsBvh returns the sampled artifact's BVH rendering. Decoders
// that do not emit one cause a failure response; the service itself performs
// no animation math.
func (s *ModelService) DownloadSampleAsBvh(w http.ResponseWriter, r *http.Request) {
	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	artifact, err := s.sample(user, params.FileId)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	bvh, ok := artifact["bvh"].(string)
	if !ok {
		utils.WriteFailure(w)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(bvh))
}

// GetTimeFunction returns the time-warping function stored alongside a
// model's poses, when the model carries one.
func (s *ModelService) GetTimeFunction(w http.ResponseWriter, r *http.Request) {
	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	file, err := schema.GetFile(params.FileId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	collection, err := schema.GetCollection(file.CollectionID, s.db)
	if err == nil && !auth.CanReadCollection(user, collection) {
		utils.WriteFailure(w)
		return
	}

	row, err := s.files.Get(file.ID, []string{"data"})
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	blob, _ := row["data"].([]byte)
	if len(blob) == 0 {
		utils.WriteFailure(w)
		return
	}

	doc, err := codec.Decode(blob)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	timeFunction, ok := doc["time_function"]
	if !ok {
		utils.WriteFailure(w)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true, "time_function": timeFunction,
	})
}
