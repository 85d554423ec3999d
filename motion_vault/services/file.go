package services

import (
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"mocap_platform/motion_vault/auth"
	"mocap_platform/motion_vault/catalog"
	"mocap_platform/motion_vault/codec"
	"mocap_platform/motion_vault/registry"
	"mocap_platform/motion_vault/schema"
	"mocap_platform/motion_vault/table"
	"mocap_platform/motion_vault/upload"
	"mocap_platform/motion_vault/utils"
)

// FileService owns the generic file rows: motion clips, preprocessed motions,
// and statistical models all share the files table, distinguished by their
// data type.
type FileService struct {
	db       *gorm.DB
	jwt      *auth.JwtManager
	files    *table.Table
	buffer   *upload.Buffer
	registry *registry.Registry

	enableEditing  bool
	enableDownload bool
}

func (s *FileService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", s.List)
	r.Post("/info", s.Info)
	r.Post("/add", s.Add)
	r.Post("/replace", s.Replace)
	r.Post("/remove", s.Remove)
	r.Post("/download", s.Download)
	r.Post("/download_annotation", s.DownloadAnnotation)
	r.Post("/upload_motion", s.UploadMotion)
	r.Post("/upload_bvh_clip", s.UploadBvhClip)
	r.Post("/get_motion", s.GetMotion)

	return r
}

type fileListRequest struct {
	Token        string   `json:"token"`
	CollectionId uint     `json:"collection_id"`
	Skeleton     string   `json:"skeleton"`
	DataType     string   `json:"data_type"`
	Tags         []string `json:"tags"`
}

type fileListEntry struct {
	Id        uint   `json:"id"`
	Name      string `json:"name"`
	Skeleton  string `json:"skeleton"`
	DataType  string `json:"data_type"`
	NumFrames int64  `json:"num_frames"`
	Processed int64  `json:"processed"`
}

// List selects files by collection, skeleton, and data type. When tags are
// requested the query left-joins the data-type taggings and keeps files whose
// data type bears any of the tags.
func (s *FileService) List(w http.ResponseWriter, r *http.Request) {
	var params fileListRequest
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

	q := catalog.Query{}
	if params.CollectionId != 0 {
		q.Filters = append(q.Filters, catalog.Filter{Column: "files.collection_id", Value: params.CollectionId})
	}
	if params.Skeleton != "" {
		q.Filters = append(q.Filters, catalog.Filter{Column: "files.skeleton", Value: params.Skeleton, ExactMatch: true})
	}
	if params.DataType != "" {
		q.Filters = append(q.Filters, catalog.Filter{Column: "files.data_type", Value: params.DataType, ExactMatch: true})
	}

	if len(params.Tags) > 0 {
		q.Joins = []catalog.Join{
			{Table: schema.DataTypesTable, On: "files.data_type = data_types.name"},
			{Table: schema.DataTypeTaggingsTable, On: "data_types.name = data_type_taggings.data_type"},
		}
		for _, tag := range params.Tags {
			q.Intersections = append(q.Intersections, catalog.Filter{
				Column: "data_type_taggings.tag", Value: tag, ExactMatch: true,
			})
		}
		q.Distinct = true
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

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return ""
	}
}

func asInt64(v interface{}) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case int:
		return int64(value)
	case uint:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

type fileIdRequest struct {
	Token  string `json:"token"`
	FileId uint   `json:"file_id"`
}

func (s *FileService) Info(w http.ResponseWriter, r *http.Request) {
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

	if !s.canReadFile(user, file) {
		utils.WriteFailure(w)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success":    true,
		"id":         file.ID,
		"name":       file.Name,
		"collection": file.CollectionID,
		"skeleton":   file.Skeleton,
		"data_type":  file.DataType,
		"num_frames": file.NumFrames,
		"processed":  file.Processed,
		"subject":    file.Subject,
		"source":     file.Source,
		"comment":    file.Comment,
	})
}

func (s *FileService) canReadFile(user schema.User, file schema.File) bool {
	collection, err := schema.GetCollection(file.CollectionID, s.db)
	if err != nil {
		return auth.IsAdmin(user)
	}
	return auth.CanReadCollection(user, collection)
}

func (s *FileService) canMutateFile(user schema.User, file schema.File) bool {
	collection, err := schema.GetCollection(file.CollectionID, s.db)
	if err != nil {
		return auth.IsAdmin(user)
	}
	return auth.CanMutateCollection(user, collection)
}

type addFileRequest struct {
	Token        string `json:"token"`
	CollectionId uint   `json:"collection_id"`
	Name         string `json:"name"`
	Skeleton     string `json:"skeleton"`
	Data         string `json:"data"`
	MetaData     string `json:"meta_data"`
	DataType     string `json:"data_type"`
	Processed    int    `json:"processed"`
	Subject      string `json:"subject"`
	Source       string `json:"source"`
	Comment      string `json:"comment"`
}

// Add stores a complete (non-chunked) payload. The payload is decoded once to
// count frames and the canonical re-encoding is what lands on disk.
func (s *FileService) Add(w http.ResponseWriter, r *http.Request) {
	var params addFileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	collection, err := schema.GetCollection(params.CollectionId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutateCollection(user, collection) {
		utils.WriteFailure(w)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
		return
	}
	metaData, err := base64.StdEncoding.DecodeString(params.MetaData)
	if err != nil {
		http.Error(w, "invalid base64 in meta_data field", http.StatusBadRequest)
		return
	}

	fileId, err := s.createFile(params, payload, metaData)
	if err != nil {
		slog.Error("error creating file", "name", params.Name, "error", err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": fileId})
}

func (s *FileService) createFile(params addFileRequest, payload, metaData []byte) (uint, error) {
	numFrames := 0
	canonical := payload
	if len(payload) > 0 {
		doc, err := codec.Decode(payload)
		if err != nil {
			return 0, CodedError(err, http.StatusBadRequest)
		}
		numFrames = codec.NumFrames(doc)
		canonical, err = codec.Encode(doc)
		if err != nil {
			return 0, CodedError(err, http.StatusInternalServerError)
		}
	}

	fileId, err := s.files.Create(table.Record{
		"name":          params.Name,
		"collection_id": params.CollectionId,
		"skeleton":      params.Skeleton,
		"data":          canonical,
		"meta_data":     metaData,
		"data_type":     params.DataType,
		"num_frames":    numFrames,
		"processed":     params.Processed,
		"subject":       params.Subject,
		"source":        params.Source,
		"comment":       params.Comment,
	})
	if err != nil {
		return 0, CodedError(err, http.StatusInternalServerError)
	}

	slog.Info("created file", "file_id", fileId, "name", params.Name, "num_frames", numFrames)
	return fileId, nil
}

type uploadMotionRequest struct {
	addFileRequest

	PartIdx int `json:"part_idx"`
	NParts  int `json:"n_parts"`
}

// UploadMotion accepts one chunk per request. Chunks are base64 text
// segments; once all parts arrive they are concatenated in part order,
// decoded, and committed through the same path as a direct add.
func (s *FileService) UploadMotion(w http.ResponseWriter, r *http.Request) {
	var params uploadMotionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	collection, err := schema.GetCollection(params.CollectionId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutateCollection(user, collection) {
		utils.WriteFailure(w)
		return
	}

	if err := s.buffer.Update(params.Name, params.PartIdx, params.NParts, []byte(params.Data)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.buffer.IsComplete(params.Name) {
		utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "status": "in progress"})
		return
	}

	assembled, err := s.buffer.Get(params.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(string(assembled))
	if err != nil {
		s.buffer.Delete(params.Name)
		http.Error(w, "assembled payload is not valid base64", http.StatusBadRequest)
		return
	}

	metaData, err := base64.StdEncoding.DecodeString(params.MetaData)
	if err != nil {
		s.buffer.Delete(params.Name)
		http.Error(w, "invalid base64 in meta_data field", http.StatusBadRequest)
		return
	}

	fileId, err := s.createFile(params.addFileRequest, payload, metaData)
	if err != nil {
		s.buffer.Delete(params.Name)
		slog.Error("error committing chunked upload", "name", params.Name, "error", err)
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	s.buffer.Delete(params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "status": "complete", "id": fileId})
}

// UploadBvhClip stores a raw BVH text clip as-is. BVH is not in the
// canonical compressed form, so no decode or frame count is attempted.
func (s *FileService) UploadBvhClip(w http.ResponseWriter, r *http.Request) {
	var params addFileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	collection, err := schema.GetCollection(params.CollectionId, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if !auth.CanMutateCollection(user, collection) {
		utils.WriteFailure(w)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
		return
	}
	metaData, err := base64.StdEncoding.DecodeString(params.MetaData)
	if err != nil {
		http.Error(w, "invalid base64 in meta_data field", http.StatusBadRequest)
		return
	}

	fileId, err := s.files.Create(table.Record{
		"name":          params.Name,
		"collection_id": params.CollectionId,
		"skeleton":      params.Skeleton,
		"data":          payload,
		"meta_data":     metaData,
		"data_type":     params.DataType,
		"processed":     params.Processed,
		"subject":       params.Subject,
		"source":        params.Source,
		"comment":       params.Comment,
	})
	if err != nil {
		slog.Error("error storing bvh clip", "name", params.Name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("stored bvh clip", "file_id", fileId, "name", params.Name)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": fileId})
}

// GetMotion is the polymorphic read: files whose data type has a loader for
// the in-process engine are sampled through the registry, everything else
// returns the stored blob. Unknown ids return an empty body.
func (s *FileService) GetMotion(w http.ResponseWriter, r *http.Request) {
	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	file, err := schema.GetFile(params.FileId, s.db)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}
	if !s.canReadFile(user, file) {
		utils.WriteBinary(w, nil)
		return
	}

	row, err := s.files.Get(file.ID, []string{"data"})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	blob, _ := row["data"].([]byte)

	loader, err := schema.GetDataLoader(file.DataType, schema.EngineDB, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrDataLoaderNotFound) {
			utils.WriteBinary(w, blob)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if !s.registry.IsLoaded(file.DataType) {
		if err := s.registry.Load(file.DataType, loader.Script); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	artifact, err := s.registry.SampleMotionFromModel(file.DataType, blob, file.Skeleton)
	if err != nil {
		slog.Error("error sampling motion from model", "file_id", file.ID, "data_type", file.DataType, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	payload, err := codec.Encode(artifact)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteBinary(w, payload)
}

type replaceFileRequest struct {
	Token    string  `json:"token"`
	FileId   uint    `json:"file_id"`
	Name     string  `json:"name"`
	Data     *string `json:"data"`
	MetaData *string `json:"meta_data"`
}

// Replace swaps payloads and scalars on an existing file. A caller without
// access to the file's collection gets the legacy "Done" body and no
// mutation.
func (s *FileService) Replace(w http.ResponseWriter, r *http.Request) {
	if !s.enableEditing {
		http.Error(w, "editing is disabled", http.StatusForbidden)
		return
	}

	var params replaceFileRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteDone(w)
		return
	}

	file, err := schema.GetFile(params.FileId, s.db)
	if err != nil {
		utils.WriteDone(w)
		return
	}
	if !s.canMutateFile(user, file) {
		utils.WriteDone(w)
		return
	}

	record := table.Record{}
	if params.Name != "" {
		record["name"] = params.Name
	}
	if params.Data != nil {
		payload, err := base64.StdEncoding.DecodeString(*params.Data)
		if err != nil {
			http.Error(w, "invalid base64 in data field", http.StatusBadRequest)
			return
		}
		doc, err := codec.Decode(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		canonical, err := codec.Encode(doc)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		record["data"] = canonical
		record["num_frames"] = codec.NumFrames(doc)
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

	if err := s.files.Update(file.ID, record); err != nil {
		slog.Error("error replacing file", "file_id", file.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("replaced file", "file_id", file.ID)
	utils.WriteSuccess(w)
}

// Remove deletes the row and its blobs. Removing an unknown id is a no-op.
func (s *FileService) Remove(w http.ResponseWriter, r *http.Request) {
	if !s.enableEditing {
		http.Error(w, "editing is disabled", http.StatusForbidden)
		return
	}

	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteDone(w)
		return
	}

	file, err := schema.GetFile(params.FileId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrFileNotFound) {
			utils.WriteSuccess(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !s.canMutateFile(user, file) {
		utils.WriteDone(w)
		return
	}

	if err := s.files.Delete(file.ID); err != nil {
		slog.Error("error deleting file", "file_id", file.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("deleted file", "file_id", file.ID)
	utils.WriteSuccess(w)
}

// Download returns the stored data blob verbatim.
func (s *FileService) Download(w http.ResponseWriter, r *http.Request) {
	if !s.enableDownload {
		http.Error(w, "downloads are disabled", http.StatusForbidden)
		return
	}
	s.downloadColumn(w, r, "data")
}

// DownloadAnnotation returns the metadata blob verbatim.
func (s *FileService) DownloadAnnotation(w http.ResponseWriter, r *http.Request) {
	if !s.enableDownload {
		http.Error(w, "downloads are disabled", http.StatusForbidden)
		return
	}
	s.downloadColumn(w, r, "meta_data")
}

func (s *FileService) downloadColumn(w http.ResponseWriter, r *http.Request, column string) {
	var params fileIdRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}

	file, err := schema.GetFile(params.FileId, s.db)
	if err != nil {
		utils.WriteBinary(w, nil)
		return
	}
	if !s.canReadFile(user, file) {
		utils.WriteBinary(w, nil)
		return
	}

	row, err := s.files.Get(file.ID, []string{column})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, _ := row[column].([]byte)
	utils.WriteBinary(w, data)
}
