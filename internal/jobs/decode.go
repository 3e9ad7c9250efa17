package jobs

import (
	"encoding/json"

	"github.com/sacahan/trailtag/internal/model"
)

// remarshalJob re-encodes a generic map (the shape the cache facade hands
// back after its own JSON round-trip) into a model.Job.
func remarshalJob(m map[string]any) (model.Job, error) {
	var job model.Job
	data, err := json.Marshal(m)
	if err != nil {
		return job, err
	}
	err = json.Unmarshal(data, &job)
	return job, err
}
