package registry

import (
	"fmt"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"mocap_platform/motion_vault/codec"
)

// Decoder turns a stored model blob into a motion artifact. Implementations
// are the fixed set of built-in modules; the script text registered alongside
// a data loader is kept as documentation of the decoder's provenance.
type Decoder interface {
	SampleMotion(blob []byte, skeleton string) (bson.M, error)
}

type module struct {
	script  string
	decoder Decoder
}

// Registry caches one materialized decoder per data type for the life of the
// process.
type Registry struct {
	mu      sync.Mutex
	modules map[string]*module
}

func New() *Registry {
	return &Registry{modules: make(map[string]*module)}
}

func normalizeScript(script string) string {
	return strings.ReplaceAll(script, "\r\n", "\n")
}

// Load materializes the decoder for a data type and caches it. Reloading with
// a new script replaces the cached entry.
func (r *Registry) Load(dataType, script string) error {
	decoder, ok := builtinDecoders[dataType]
	if !ok {
		decoder = defaultDecoder{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[dataType] = &module{script: normalizeScript(script), decoder: decoder}

	return nil
}

func (r *Registry) Unload(dataType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, dataType)
}

func (r *Registry) IsLoaded(dataType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.modules[dataType]
	return ok
}

func (r *Registry) SampleMotionFromModel(dataType string, blob []byte, skeleton string) (bson.M, error) {
	r.mu.Lock()
	mod, ok := r.modules[dataType]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no decoder loaded for data type %v", dataType)
	}

	return mod.decoder.SampleMotion(blob, skeleton)
}

var builtinDecoders = map[string]Decoder{
	"motion":           motionDecoder{},
	"motion_primitive": motionPrimitiveDecoder{},
}

// motionDecoder handles plain time-series clips: the stored document already
// is the artifact.
type motionDecoder struct{}

func (motionDecoder) SampleMotion(blob []byte, skeleton string) (bson.M, error) {
	doc, err := codec.Decode(blob)
	if err != nil {
		return nil, err
	}
	if _, ok := doc["skeleton"]; !ok {
		doc["skeleton"] = skeleton
	}
	return doc, nil
}

// motionPrimitiveDecoder samples a clip from a statistical model document by
// projecting its stored mean trajectory.
type motionPrimitiveDecoder struct{}

func (motionPrimitiveDecoder) SampleMotion(blob []byte, skeleton string) (bson.M, error) {
	doc, err := codec.Decode(blob)
	if err != nil {
		return nil, err
	}

	poses := modelPoses(doc)
	if poses == nil {
		return nil, fmt.Errorf("model document carries no sampleable trajectory")
	}

	return bson.M{"skeleton": skeleton, "poses": poses}, nil
}

func modelPoses(doc bson.M) interface{} {
	for _, key := range []string{"sample_poses", "mean_poses", "poses"} {
		if poses, ok := doc[key]; ok {
			return poses
		}
	}
	return nil
}

// defaultDecoder covers data types without a dedicated module; it validates
// the payload and returns the decoded document unchanged.
type defaultDecoder struct{}

func (defaultDecoder) SampleMotion(blob []byte, skeleton string) (bson.M, error) {
	if len(blob) == 0 {
		return bson.M{"skeleton": skeleton}, nil
	}
	doc, err := codec.Decode(blob)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
