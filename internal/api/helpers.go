package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sacahan/trailtag/internal/model"
)

// decodeJSON reads and decodes the request body, rejecting unknown fields
// and a missing body the way a validated REST surface should.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return io.EOF
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeMapVisualization converts the cache facade's any-typed return (a
// map[string]any after its JSON round-trip) back into a model.MapVisualization.
func decodeMapVisualization(raw any) (model.MapVisualization, error) {
	if mv, ok := raw.(model.MapVisualization); ok {
		return mv, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return model.MapVisualization{}, err
	}
	var mv model.MapVisualization
	if err := json.Unmarshal(data, &mv); err != nil {
		return model.MapVisualization{}, err
	}
	return mv, nil
}
