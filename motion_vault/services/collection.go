package services

import (
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

type CollectionService struct {
	db    *gorm.DB
	jwt   *auth.JwtManager
	files *table.Table
}

func (s *CollectionService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/tree", s.Tree)
	r.Post("/info", s.Info)
	r.Post("/add", s.Add)
	r.Post("/replace", s.Replace)
	r.Post("/remove", s.Remove)
	r.Post("/remove_recursive", s.RemoveRecursive)
	r.Post("/by_name", s.ByName)

	return r
}

type collectionRequest struct {
	Token        string `json:"token"`
	CollectionId uint   `json:"collection_id"`
}

type collectionNode struct {
	Id       uint             `json:"id"`
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Owner    uint             `json:"owner"`
	Public   int              `json:"public"`
	Children []collectionNode `json:"children"`
}

func collectionInfo(c schema.Collection) collectionNode {
	return collectionNode{
		Id: c.ID, Name: c.Name, Type: c.Type, Owner: c.OwnerID,
		Public: c.Public, Children: []collectionNode{},
	}
}

// subtree enumerates readable descendants. Children the caller cannot read
// are pruned together with everything below them.
func (s *CollectionService) subtree(user schema.User, parentId uint) ([]collectionNode, error) {
	var children []schema.Collection
	if result := s.db.Find(&children, "parent_id = ?", parentId); result.Error != nil {
		slog.Error("sql error listing child collections", "parent_id", parentId, "error", result.Error)
		return nil, schema.ErrDbAccessFailed
	}

	nodes := make([]collectionNode, 0, len(children))
	for _, child := range children {
		if !auth.CanReadCollection(user, child) {
			continue
		}
		node := collectionInfo(child)
		grandchildren, err := s.subtree(user, child.ID)
		if err != nil {
			return nil, err
		}
		node.Children = grandchildren
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// Tree returns the subtree rooted at collection_id, or all readable root
// collections when collection_id is 0.
func (s *CollectionService) Tree(w http.ResponseWriter, r *http.Request) {
	var params collectionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []collectionNode{})
		return
	}

	if params.CollectionId == 0 {
		nodes, err := s.subtree(user, 0)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		utils.WriteJsonResponse(w, nodes)
		return
	}

	collection, err := schema.GetCollection(params.CollectionId, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []collectionNode{})
		return
	}
	if !auth.CanReadCollection(user, collection) {
		utils.WriteJsonResponse(w, []collectionNode{})
		return
	}

	node := collectionInfo(collection)
	children, err := s.subtree(user, collection.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	node.Children = children

	utils.WriteJsonResponse(w, []collectionNode{node})
}

func (s *CollectionService) Info(w http.ResponseWriter, r *http.Request) {
	var params collectionRequest
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
		if errors.Is(err, schema.ErrCollectionNotFound) {
			utils.WriteFailure(w)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !auth.CanReadCollection(user, collection) {
		utils.WriteFailure(w)
		return
	}

	utils.WriteJsonResponse(w, map[string]interface{}{
		"success": true,
		"id":      collection.ID,
		"name":    collection.Name,
		"type":    collection.Type,
		"owner":   collection.OwnerID,
		"parent":  collection.ParentID,
		"public":  collection.Public,
	})
}

type addCollectionRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	ParentId uint   `json:"parent_id"`
	Public   int    `json:"public"`
}

func (s *CollectionService) Add(w http.ResponseWriter, r *http.Request) {
	var params addCollectionRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteFailure(w)
		return
	}
	if params.Name == "" {
		http.Error(w, "collection name is required", http.StatusBadRequest)
		return
	}

	var collectionId uint
	err = s.db.Transaction(func(txn *gorm.DB) error {
		if params.ParentId != 0 {
			if err := checkCollectionExists(txn, params.ParentId); err != nil {
				return err
			}
		}

		collection := schema.Collection{
			Name: params.Name, Type: params.Type, OwnerID: user.ID,
			ParentID: params.ParentId, Public: params.Public,
		}
		if result := txn.Create(&collection); result.Error != nil {
			slog.Error("sql error creating collection", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		collectionId = collection.ID
		return nil
	})
	if err != nil {
		utils.WriteFailure(w)
		return
	}

	slog.Info("created collection", "collection_id", collectionId, "owner", user.ID)
	utils.WriteJsonResponse(w, map[string]interface{}{"success": true, "id": collectionId})
}

type replaceCollectionRequest struct {
	Token        string `json:"token"`
	CollectionId uint   `json:"collection_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	Public       *int   `json:"public"`
}

func (s *CollectionService) Replace(w http.ResponseWriter, r *http.Request) {
	var params replaceCollectionRequest
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

	updates := map[string]interface{}{}
	if params.Name != "" {
		updates["name"] = params.Name
	}
	if params.Type != "" {
		updates["type"] = params.Type
	}
	if params.Public != nil {
		updates["public"] = *params.Public
	}
	if len(updates) == 0 {
		utils.WriteSuccess(w)
		return
	}

	if result := s.db.Model(&schema.Collection{}).Where("id = ?", collection.ID).Updates(updates); result.Error != nil {
		slog.Error("sql error replacing collection", "collection_id", collection.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	utils.WriteSuccess(w)
}

// Remove deletes only the collection row. Children and files keep their rows
// and become orphans; RemoveRecursive is the opt-in cascade.
func (s *CollectionService) Remove(w http.ResponseWriter, r *http.Request) {
	var params collectionRequest
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

	if result := s.db.Delete(&schema.Collection{}, collection.ID); result.Error != nil {
		slog.Error("sql error deleting collection", "collection_id", collection.ID, "error", result.Error)
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed collection", "collection_id", collection.ID)
	utils.WriteSuccess(w)
}

// RemoveRecursive deletes the collection, every descendant collection, and
// all files attached to any of them, including their blobs.
func (s *CollectionService) RemoveRecursive(w http.ResponseWriter, r *http.Request) {
	var params collectionRequest
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

	if err := s.removeSubtree(collection.ID); err != nil {
		slog.Error("error removing collection subtree", "collection_id", collection.ID, "error", err)
		utils.WriteFailure(w)
		return
	}

	slog.Info("removed collection subtree", "collection_id", collection.ID)
	utils.WriteSuccess(w)
}

func (s *CollectionService) removeSubtree(collectionId uint) error {
	var children []schema.Collection
	if result := s.db.Find(&children, "parent_id = ?", collectionId); result.Error != nil {
		return schema.ErrDbAccessFailed
	}
	for _, child := range children {
		if err := s.removeSubtree(child.ID); err != nil {
			return err
		}
	}

	// Files go through the table façade so their blobs are removed too.
	if err := s.files.DeleteByCondition("collection_id = ?", collectionId); err != nil {
		return err
	}

	if result := s.db.Delete(&schema.Collection{}, collectionId); result.Error != nil {
		return schema.ErrDbAccessFailed
	}
	return nil
}

type collectionsByNameRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

func (s *CollectionService) ByName(w http.ResponseWriter, r *http.Request) {
	var params collectionsByNameRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := principalFromToken(params.Token, s.jwt, s.db)
	if err != nil {
		utils.WriteJsonResponse(w, []collectionNode{})
		return
	}

	var collections []schema.Collection
	if result := s.db.Find(&collections, "name = ?", params.Name); result.Error != nil {
		slog.Error("sql error listing collections by name", "name", params.Name, "error", result.Error)
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return
	}

	nodes := make([]collectionNode, 0, len(collections))
	for _, collection := range collections {
		if auth.CanReadCollection(user, collection) {
			nodes = append(nodes, collectionInfo(collection))
		}
	}

	utils.WriteJsonResponse(w, nodes)
}
